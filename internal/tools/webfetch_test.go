package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><style>p{color:red}</style><script>alert(1)</script></head>
<body><h1>Title</h1><p>First &amp; second.</p><p>Another line</p></body></html>`))
	}))
	defer srv.Close()

	res := (&WebFetchTool{}).Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	p := payloadOf(t, res)
	content := p["content"].(string)
	if strings.Contains(content, "alert") || strings.Contains(content, "color:red") {
		t.Errorf("script/style leaked: %q", content)
	}
	for _, want := range []string{"Title", "First & second.", "Another line"} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q: %q", want, content)
		}
	}
	if p["status"] != 200 {
		t.Errorf("got status %v", p["status"])
	}
}

func TestWebFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"b":2,"a":1}`))
	}))
	defer srv.Close()

	res := (&WebFetchTool{}).Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	p := payloadOf(t, res)
	content := p["content"].(string)
	if !strings.Contains(content, "\"a\": 1") {
		t.Errorf("JSON should be pretty-printed: %q", content)
	}
}

func TestWebFetchCapsLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 100000)))
	}))
	defer srv.Close()

	res := (&WebFetchTool{}).Execute(context.Background(), map[string]interface{}{
		"url": srv.URL, "maxChars": float64(500),
	})
	p := payloadOf(t, res)
	content := p["content"].(string)
	if len(content) > 600 {
		t.Errorf("content not capped: %d chars", len(content))
	}
	if !strings.Contains(content, "truncated") {
		t.Error("expected a truncation marker")
	}
}

func TestWebFetchRejectsNonHTTP(t *testing.T) {
	res := (&WebFetchTool{}).Execute(context.Background(), map[string]interface{}{"url": "file:///etc/passwd"})
	if !res.IsError {
		t.Fatal("expected an error for a non-http scheme")
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<div>one</div><div>two<br>three</div><!-- secret -->`
	got := htmlToText(html)
	for _, want := range []string{"one", "two", "three"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "secret") {
		t.Errorf("comment leaked: %q", got)
	}
}
