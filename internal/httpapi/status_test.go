package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

func TestStatusPage(t *testing.T) {
	mux := http.NewServeMux()
	NewStatusHandler(config.Default(), "1.2.3").RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"IsoCode 1.2.3", "local", "qwen2.5-coder:7b"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestStatusPageDoesNotCatchUnknownPaths(t *testing.T) {
	mux := http.NewServeMux()
	NewStatusHandler(config.Default(), "dev").RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

type fakeStatuser struct {
	statuses []protocol.MCPServerStatus
}

func (f fakeStatuser) Statuses() []protocol.MCPServerStatus { return f.statuses }

func TestMCPStatus(t *testing.T) {
	mux := http.NewServeMux()
	NewMCPStatusHandler(fakeStatuser{statuses: []protocol.MCPServerStatus{
		{Name: "fs", Command: "mcp-fs", Connected: true, Tools: []string{"fs_read"}},
		{Name: "web", Command: "mcp-web", Connected: false, Error: "spawn failed"},
	}}).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp-status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Servers []protocol.MCPServerStatus `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Servers) != 2 || resp.Servers[0].Name != "fs" || !resp.Servers[0].Connected {
		t.Fatalf("servers = %+v", resp.Servers)
	}
	if resp.Servers[1].Error != "spawn failed" {
		t.Fatalf("error field lost: %+v", resp.Servers[1])
	}
}

func TestMCPStatusEmpty(t *testing.T) {
	mux := http.NewServeMux()
	NewMCPStatusHandler(fakeStatuser{}).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp-status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"servers":[]}` {
		t.Fatalf("body = %s", body)
	}
}
