package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

const providerTimeout = 15 * time.Second

// ProviderClient is the slice of the LLM adapter the inspection
// endpoints need.
type ProviderClient interface {
	Health(ctx context.Context) (ok bool, provider string, err error)
	ListModels(ctx context.Context) ([]llm.ModelEntry, error)
	Provider() string
}

// ProviderHandler serves provider reachability and model listings.
type ProviderHandler struct {
	llm ProviderClient
}

func NewProviderHandler(client ProviderClient) *ProviderHandler {
	return &ProviderHandler{llm: client}
}

func (h *ProviderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /models", h.handleModels)
}

// handleHealth probes the provider.
//
//	GET /health
func (h *ProviderHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	ok, provider, err := h.llm.Health(ctx)
	resp := protocol.HealthResponse{OK: ok, Provider: provider}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleModels lists installed models. Backend failure still answers 200
// with an empty list so the editor's model picker degrades instead of
// breaking.
//
//	GET /models
func (h *ProviderHandler) handleModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	resp := protocol.ModelsResponse{
		Models:   []protocol.ModelInfo{},
		Provider: h.llm.Provider(),
	}
	entries, err := h.llm.ListModels(ctx)
	if err != nil {
		slog.Warn("model listing failed", "provider", resp.Provider, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	for _, e := range entries {
		resp.Models = append(resp.Models, protocol.ModelInfo{
			ID:          e.ID,
			DisplayName: e.DisplayName,
			Size:        e.Size,
			Family:      e.Family,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
