package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/config"
)

type fakeTool struct {
	name string
	fn   func(ctx context.Context, args map[string]interface{}) *Result
}

func (f *fakeTool) Name() string                       { return f.name }
func (f *fakeTool) Description() string                { return "fake" }
func (f *fakeTool) Parameters() map[string]interface{} { return objectSchema(nil) }
func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return f.fn(ctx, args)
}

func newTestDispatcher(t *testing.T, names ...string) (*Dispatcher, *config.Config, string) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	reg := NewRegistry()
	for _, name := range names {
		reg.Register(&fakeTool{name: name, fn: func(ctx context.Context, args map[string]interface{}) *Result {
			return NewResult("ok")
		}})
	}
	return NewDispatcher(reg, cfg, workspace), cfg, workspace
}

func TestRunUnknownTool(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "read_file")
	res := d.Run(context.Background(), "no_such_tool", nil)
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	if !errors.Is(res.Err, ErrUnknownTool) {
		t.Errorf("got err %v, want ErrUnknownTool", res.Err)
	}
	if !strings.Contains(res.ForLLM, "read_file") {
		t.Errorf("error should list known tools, got %q", res.ForLLM)
	}
}

func TestRunPolicy(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		policy   string
		autoMode bool
		denied   bool
	}{
		{"shell never", "run_command", config.PolicyNever, true, true},
		{"shell ask without auto", "run_command", config.PolicyAsk, false, true},
		{"shell ask with auto", "run_command", config.PolicyAsk, true, false},
		{"shell always", "run_command", config.PolicyAlways, false, false},
		{"read tool ignores policy", "list_files", config.PolicyNever, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, cfg, _ := newTestDispatcher(t, tt.tool)
			cfg.Permissions.Shell = tt.policy
			cfg.Permissions.Write = tt.policy
			cfg.Permissions.Edit = tt.policy

			ctx := WithAutoMode(context.Background(), tt.autoMode)
			res := d.Run(ctx, tt.tool, map[string]interface{}{})
			if tt.denied {
				if !errors.Is(res.Err, ErrPolicyDenied) {
					t.Fatalf("got err %v, want ErrPolicyDenied", res.Err)
				}
				return
			}
			if res.IsError {
				t.Fatalf("unexpected error: %s", res.ForLLM)
			}
		})
	}
}

func TestRunConfinesPathArgs(t *testing.T) {
	d, _, workspace := newTestDispatcher(t)
	var seen string
	d.Registry().Register(&fakeTool{name: "peek", fn: func(ctx context.Context, args map[string]interface{}) *Result {
		seen, _ = args["path"].(string)
		return NewResult("ok")
	}})

	res := d.Run(context.Background(), "peek", map[string]interface{}{"path": "../../etc/passwd"})
	if !errors.Is(res.Err, ErrPathEscapesWorkspace) {
		t.Fatalf("got err %v, want ErrPathEscapesWorkspace", res.Err)
	}

	res = d.Run(context.Background(), "peek", map[string]interface{}{"path": "sub/file.txt"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if !filepath.IsAbs(seen) || !strings.HasSuffix(seen, filepath.Join("sub", "file.txt")) {
		t.Errorf("path %q was not resolved against the workspace %q", seen, workspace)
	}
}

func TestRunTruncatesPlainResults(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.Registry().Register(&fakeTool{name: "chatty", fn: func(ctx context.Context, args map[string]interface{}) *Result {
		return NewResult(strings.Repeat("x", 20000))
	}})
	res := d.Run(context.Background(), "chatty", nil)
	if len(res.ForLLM) > 4100 {
		t.Errorf("result not truncated: %d chars", len(res.ForLLM))
	}
	if !strings.Contains(res.ForLLM, "characters omitted") {
		t.Errorf("expected an omission marker, got tail %q", res.ForLLM[len(res.ForLLM)-60:])
	}
}

func TestRunSerialisesPayloads(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.Registry().Register(&fakeTool{name: "structured", fn: func(ctx context.Context, args map[string]interface{}) *Result {
		return PayloadResult(map[string]interface{}{"stdout": "hello", "exitCode": 0})
	}})
	res := d.Run(context.Background(), "structured", nil)
	if !strings.Contains(res.ForLLM, `"stdout":"hello"`) {
		t.Errorf("payload not serialised: %q", res.ForLLM)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		tool string
		want string
	}{
		{"run_command", categoryShell},
		{"git_commit", categoryShell},
		{"run_tests", categoryShell},
		{"mcp_files_read", categoryShell},
		{"write_file", categoryWrite},
		{"apply_diff", categoryEdit},
		{"replace_in_file", categoryEdit},
		{"read_file", ""},
		{"git_status", ""},
		{"browser_open", ""},
	}
	for _, tt := range tests {
		if got := categoryOf(tt.tool); got != tt.want {
			t.Errorf("categoryOf(%q) = %q, want %q", tt.tool, got, tt.want)
		}
	}
}

func TestResolvePathIdempotent(t *testing.T) {
	workspace := t.TempDir()
	first, err := resolvePath("a/b.txt", workspace)
	if err != nil {
		t.Fatal(err)
	}
	second, err := resolvePath(first, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("resolution not idempotent: %q then %q", first, second)
	}
}
