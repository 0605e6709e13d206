package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/mcp"
)

// ConfigHandler merges runtime configuration updates and persists them
// to the user-config file. An optional external-server list rewrites
// mcp-servers.json; onApply lets the gateway rebuild the LLM client and
// resync external servers after a change.
type ConfigHandler struct {
	cfg         *config.Config
	path        string
	serversPath string
	onApply     func(config.Settings)
}

func NewConfigHandler(cfg *config.Config, path, serversPath string, onApply func(config.Settings)) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, path: path, serversPath: serversPath, onApply: onApply}
}

func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /config", h.handleGet)
	mux.HandleFunc("POST /config", h.handleUpdate)
}

// handleGet returns the active settings with the API key masked, plus a
// digest the client can use to detect changes between requests.
//
//	GET /config
func (h *ConfigHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings": h.cfg.Masked(),
		"hash":     h.cfg.Hash(),
	})
}

// configUpdateRequest is the /config body: a partial settings update plus
// an optional replacement external-server list.
type configUpdateRequest struct {
	config.Update
	MCPServers []mcp.ServerConfig `json:"mcpServers,omitempty"`
	hasServers bool
}

func (r *configUpdateRequest) UnmarshalJSON(data []byte) error {
	type alias configUpdateRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = configUpdateRequest(a)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil {
		_, r.hasServers = probe["mcpServers"]
	}
	return nil
}

// handleUpdate merges the update, persists user-config.json, rewrites the
// external-server list when one was sent, and notifies the gateway.
//
//	POST /config
func (h *ConfigHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req configUpdateRequest
	if !readJSON(w, r, &req) {
		return
	}

	h.cfg.Merge(req.Update)
	if err := h.cfg.Save(h.path); err != nil {
		slog.Warn("config save failed", "path", h.path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "config not persisted: " + err.Error()})
		return
	}

	if req.hasServers && h.serversPath != "" {
		if err := h.saveServers(req.MCPServers); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server list not persisted: " + err.Error()})
			return
		}
	}

	if h.onApply != nil {
		h.onApply(h.cfg.Snapshot())
	}
	slog.Info("config updated", "path", h.path)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ConfigHandler) saveServers(servers []mcp.ServerConfig) error {
	if err := os.MkdirAll(filepath.Dir(h.serversPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(map[string][]mcp.ServerConfig{"servers": servers}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(h.serversPath, data, 0o644)
}
