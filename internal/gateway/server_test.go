package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/httpapi"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

type stubProvider struct{}

func (stubProvider) Health(ctx context.Context) (bool, string, error) {
	return true, llm.ProviderOllama, nil
}

func (stubProvider) ListModels(ctx context.Context) ([]llm.ModelEntry, error) {
	return []llm.ModelEntry{{ID: "qwen2.5-coder:7b"}}, nil
}

func (stubProvider) Provider() string { return llm.ProviderOllama }

func testServer() *Server {
	cfg := config.Default()
	return NewServer(cfg, Handlers{
		Status:   httpapi.NewStatusHandler(cfg, "test"),
		Provider: httpapi.NewProviderHandler(stubProvider{}),
	})
}

func TestHandlerRoutesRegisteredHandlers(t *testing.T) {
	srv := testServer()
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d", rec.Code)
	}
	var resp protocol.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Provider != llm.ProviderOllama {
		t.Fatalf("health = %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/ status = %d", rec.Code)
	}
}

func TestHandlerSkipsNilHandlers(t *testing.T) {
	srv := NewServer(config.Default(), Handlers{
		Provider: httpapi.NewProviderHandler(stubProvider{}),
	})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/models status = %d", rec.Code)
	}

	// No status handler mounted: the root path is unrouted.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("/ status = %d, want 404", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	h := testServer().Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testServer().Handler()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "vscode-webview://editor")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, DELETE, OPTIONS" {
		t.Fatalf("allow-methods = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Accept" {
		t.Fatalf("allow-headers = %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := testServer().Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/definitely-not-a-route", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBuildMuxIsCached(t *testing.T) {
	srv := testServer()
	if srv.BuildMux() != srv.BuildMux() {
		t.Fatal("mux rebuilt between calls")
	}
}
