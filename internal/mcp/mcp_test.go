package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp-servers.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadServerConfigsMissingFile(t *testing.T) {
	configs, hash, err := LoadServerConfigs(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("got %d configs, want 0", len(configs))
	}
	if hash == "" {
		t.Error("hash must be set even for an empty pool")
	}
}

func TestLoadServerConfigsWrapped(t *testing.T) {
	path := writeConfig(t, `{
		// local filesystem server
		servers: [
			{name: "files", command: "mcp-fs", args: ["--root", "."]},
		],
	}`)
	configs, _, err := LoadServerConfigs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 1 {
		t.Fatalf("got %d configs, want 1", len(configs))
	}
	if configs[0].Name != "files" || configs[0].Command != "mcp-fs" {
		t.Errorf("got %+v", configs[0])
	}
	if len(configs[0].Args) != 2 || configs[0].Args[1] != "." {
		t.Errorf("got args %v", configs[0].Args)
	}
}

func TestLoadServerConfigsBareArray(t *testing.T) {
	path := writeConfig(t, `[{name: "a", command: "cmd-a"}, {name: "b", command: "cmd-b"}]`)
	configs, _, err := LoadServerConfigs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}
}

func TestLoadServerConfigsValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", `[{command: "x"}]`},
		{"missing command", `[{name: "x"}]`},
		{"duplicate name", `[{name: "x", command: "a"}, {name: "x", command: "b"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := LoadServerConfigs(writeConfig(t, tt.content)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestHashDetectsChanges(t *testing.T) {
	a := []ServerConfig{{Name: "files", Command: "mcp-fs"}}
	b := []ServerConfig{{Name: "files", Command: "mcp-fs", Args: []string{"-v"}}}
	if hashConfigs(a) == hashConfigs(b) {
		t.Error("different configs must hash differently")
	}
	if hashConfigs(a) != hashConfigs([]ServerConfig{{Name: "files", Command: "mcp-fs"}}) {
		t.Error("identical configs must hash identically")
	}
}

func TestHashIgnoresOrder(t *testing.T) {
	x := []ServerConfig{{Name: "a", Command: "1"}, {Name: "b", Command: "2"}}
	y := []ServerConfig{{Name: "b", Command: "2"}, {Name: "a", Command: "1"}}
	if hashConfigs(x) != hashConfigs(y) {
		t.Error("server order must not change the hash")
	}
}

func TestBridgeToolNaming(t *testing.T) {
	tests := []struct {
		server string
		tool   string
		want   string
	}{
		{"files", "read", "mcp_files_read"},
		{"my server", "do.thing", "mcp_my_server_do_thing"},
		{"db", "query-rows", "mcp_db_query-rows"},
	}
	for _, tt := range tests {
		bt := newBridgeTool(tt.server, mcpgo.Tool{Name: tt.tool}, nil, &serverState{})
		if bt.Name() != tt.want {
			t.Errorf("got %q, want %q", bt.Name(), tt.want)
		}
	}
}

func TestBridgeToolSurfacesServerError(t *testing.T) {
	state := &serverState{}
	state.setErr("spawn: executable not found")
	bt := newBridgeTool("files", mcpgo.Tool{Name: "read"}, nil, state)

	res := bt.Execute(context.Background(), map[string]interface{}{})
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	if got := res.ForLLM; got != "server files unavailable: spawn: executable not found" {
		t.Errorf("got %q", got)
	}
}

func TestEnvSliceStableOrder(t *testing.T) {
	cfg := ServerConfig{Env: map[string]string{"B": "2", "A": "1"}}
	got := cfg.EnvSlice()
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Errorf("got %v", got)
	}
}
