package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/mcp"
)

type configEnv struct {
	mux         *http.ServeMux
	cfg         *config.Config
	path        string
	serversPath string
	applied     []config.Settings
}

func newConfigEnv(t *testing.T) *configEnv {
	t.Helper()
	dir := t.TempDir()
	env := &configEnv{
		cfg:         config.Default(),
		path:        filepath.Join(dir, "user-config.json"),
		serversPath: filepath.Join(dir, "mcp-servers.json"),
		mux:         http.NewServeMux(),
	}
	h := NewConfigHandler(env.cfg, env.path, env.serversPath, func(s config.Settings) {
		env.applied = append(env.applied, s)
	})
	h.RegisterRoutes(env.mux)
	return env
}

func (e *configEnv) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestConfigUpdateMergesAndPersists(t *testing.T) {
	env := newConfigEnv(t)

	rec := env.post(t, `{"model":"llama3:8b","temperature":0.2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	snap := env.cfg.Snapshot()
	if snap.Model != "llama3:8b" || snap.Temperature != 0.2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	// Untouched fields keep their defaults.
	if snap.Provider != "local" || snap.Port != 8642 {
		t.Fatalf("defaults lost: %+v", snap)
	}

	loaded, err := config.Load(env.path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := loaded.Snapshot().Model; got != "llama3:8b" {
		t.Fatalf("persisted model = %q", got)
	}
}

func TestConfigUpdatePermissions(t *testing.T) {
	env := newConfigEnv(t)

	rec := env.post(t, `{"permissions":{"shell":"never"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	perms := env.cfg.Snapshot().Permissions
	if perms.Shell != config.PolicyNever {
		t.Fatalf("shell policy = %q", perms.Shell)
	}
	if perms.Write != config.PolicyAsk || perms.Edit != config.PolicyAsk {
		t.Fatalf("untouched policies changed: %+v", perms)
	}
}

func TestConfigUpdateClampsWorkers(t *testing.T) {
	env := newConfigEnv(t)

	if rec := env.post(t, `{"maxWorkers":99}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := env.cfg.Snapshot().MaxWorkers; got != 5 {
		t.Fatalf("maxWorkers = %d, want clamped to 5", got)
	}
}

func TestConfigUpdateNotifiesApply(t *testing.T) {
	env := newConfigEnv(t)

	env.post(t, `{"provider":"local","apiBase":"http://127.0.0.1:9999"}`)
	if len(env.applied) != 1 {
		t.Fatalf("onApply calls = %d", len(env.applied))
	}
	if env.applied[0].APIBase != "http://127.0.0.1:9999" {
		t.Fatalf("applied settings = %+v", env.applied[0])
	}
}

func TestConfigUpdateWritesServerList(t *testing.T) {
	env := newConfigEnv(t)

	rec := env.post(t, `{"mcpServers":[{"name":"fs","command":"mcp-fs","args":["--root","/tmp"]}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	servers, _, err := mcp.LoadServerConfigs(env.serversPath)
	if err != nil {
		t.Fatalf("reload servers: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "fs" || servers[0].Command != "mcp-fs" {
		t.Fatalf("servers = %+v", servers)
	}
	if len(servers[0].Args) != 2 || servers[0].Args[1] != "/tmp" {
		t.Fatalf("args = %v", servers[0].Args)
	}

	// An explicit empty list clears the file.
	if rec := env.post(t, `{"mcpServers":[]}`); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	servers, _, err = mcp.LoadServerConfigs(env.serversPath)
	if err != nil {
		t.Fatalf("reload after clear: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("servers after clear = %+v", servers)
	}
}

func TestConfigUpdateWithoutServersKeepsFile(t *testing.T) {
	env := newConfigEnv(t)

	env.post(t, `{"mcpServers":[{"name":"fs","command":"mcp-fs"}]}`)
	before, err := os.ReadFile(env.serversPath)
	if err != nil {
		t.Fatalf("read servers: %v", err)
	}

	// No mcpServers key: the file must survive untouched.
	env.post(t, `{"model":"llama3:8b"}`)
	after, err := os.ReadFile(env.serversPath)
	if err != nil {
		t.Fatalf("read servers: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("server list rewritten by unrelated update")
	}
}

func TestConfigGetMasksAPIKey(t *testing.T) {
	env := newConfigEnv(t)
	env.post(t, `{"apiKey":"sk-secret","model":"llama3:8b"}`)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Settings config.Settings `json:"settings"`
		Hash     string          `json:"hash"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Settings.APIKey != "***" {
		t.Fatalf("apiKey = %q, want masked", resp.Settings.APIKey)
	}
	if resp.Settings.Model != "llama3:8b" {
		t.Fatalf("model = %q", resp.Settings.Model)
	}
	if resp.Hash == "" {
		t.Fatal("hash missing")
	}

	before := resp.Hash
	env.post(t, `{"model":"qwen2.5-coder:14b"}`)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Hash == before {
		t.Fatal("hash unchanged after update")
	}
}

func TestConfigUpdateInvalidBody(t *testing.T) {
	env := newConfigEnv(t)

	rec := env.post(t, `{"model": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(env.applied) != 0 {
		t.Fatal("onApply called for rejected update")
	}
}
