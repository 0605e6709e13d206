package tools

import (
	"strings"
	"testing"
)

func TestListFiles(t *testing.T) {
	ctx, workspace := wsContext(t)
	writeWorkspaceFile(t, workspace, "b.txt", "")
	writeWorkspaceFile(t, workspace, "sub/a.txt", "")

	res := (&ListFilesTool{}).Execute(ctx, map[string]interface{}{})
	p := payloadOf(t, res)
	files := p["files"].([]interface{})
	if len(files) != 2 {
		t.Fatalf("got %d entries, want 2", len(files))
	}
	if files[0] != "b.txt" || files[1] != "sub/" {
		t.Errorf("got %v", files)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "internal/a.go", true}, // bare pattern matches base name anywhere
		{"*.go", "main.txt", false},
		{"**/*.go", "main.go", true},
		{"**/*.go", "a/b/c.go", true},
		{"src/*.ts", "src/app.ts", true},
		{"src/*.ts", "src/deep/app.ts", false},
		{"src/**/*.ts", "src/deep/app.ts", true},
		{"cmd/?.go", "cmd/a.go", true},
		{"cmd/?.go", "cmd/ab.go", false},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.rel); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.rel, got, tt.want)
		}
	}
}

func TestGlobSearchWalks(t *testing.T) {
	ctx, workspace := wsContext(t)
	writeWorkspaceFile(t, workspace, "main.go", "package main")
	writeWorkspaceFile(t, workspace, "internal/a.go", "package a")
	writeWorkspaceFile(t, workspace, "node_modules/dep/index.js", "ignored")
	writeWorkspaceFile(t, workspace, ".git/config", "ignored")

	res := (&GlobSearchTool{}).Execute(ctx, map[string]interface{}{"pattern": "**/*.go"})
	p := payloadOf(t, res)
	files := p["files"].([]interface{})
	if len(files) != 2 {
		t.Fatalf("got %v, want 2 files", files)
	}
}

func TestGrepSearch(t *testing.T) {
	ctx, workspace := wsContext(t)
	writeWorkspaceFile(t, workspace, "a.go", "func Alpha() {}\nfunc Beta() {}\n")
	writeWorkspaceFile(t, workspace, "b.go", "func AlphaTwo() {}\n")

	res := (&GrepSearchTool{}).Execute(ctx, map[string]interface{}{"pattern": `func Alpha\w*`})
	p := payloadOf(t, res)
	matches := p["matches"].([]interface{})
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	first := matches[0].(map[string]interface{})
	if first["line"] == nil || first["file"] == nil {
		t.Errorf("match missing file/line: %v", first)
	}
}

func TestGrepSearchCapsMatches(t *testing.T) {
	ctx, workspace := wsContext(t)
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("needle here\n")
	}
	writeWorkspaceFile(t, workspace, "hay.txt", sb.String())

	res := (&GrepSearchTool{}).Execute(ctx, map[string]interface{}{"pattern": "needle"})
	p := payloadOf(t, res)
	matches := p["matches"].([]interface{})
	if len(matches) != grepMatchCap {
		t.Errorf("got %d matches, want the %d cap", len(matches), grepMatchCap)
	}
	total := p["total"].(int)
	if total <= grepMatchCap {
		t.Errorf("total %d should exceed the cap", total)
	}
}

func TestGrepSearchRejectsBadRegexp(t *testing.T) {
	ctx, _ := wsContext(t)
	res := (&GrepSearchTool{}).Execute(ctx, map[string]interface{}{"pattern": "("})
	if !res.IsError {
		t.Fatal("expected an error for an invalid pattern")
	}
	if !strings.Contains(res.ForLLM, "regular expression") {
		t.Errorf("got %q", res.ForLLM)
	}
}

func TestGrepSearchIncludeFilter(t *testing.T) {
	ctx, workspace := wsContext(t)
	writeWorkspaceFile(t, workspace, "a.go", "target\n")
	writeWorkspaceFile(t, workspace, "a.txt", "target\n")

	res := (&GrepSearchTool{}).Execute(ctx, map[string]interface{}{
		"pattern": "target", "include": "*.go",
	})
	p := payloadOf(t, res)
	matches := p["matches"].([]interface{})
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
}

func TestSkipWalkDir(t *testing.T) {
	for name, want := range map[string]bool{
		".git":         true,
		"node_modules": true,
		"vendor":       true,
		"src":          false,
		"internal":     false,
	} {
		if got := skipWalkDir(name); got != want {
			t.Errorf("skipWalkDir(%q) = %v, want %v", name, got, want)
		}
	}
}
