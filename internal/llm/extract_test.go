package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func parseFixture(t *testing.T, raw string) (*chatCompletionsResponse, []byte) {
	t.Helper()
	var resp chatCompletionsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("fixture does not parse: %v", err)
	}
	return &resp, []byte(raw)
}

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain string content",
			raw:  `{"choices":[{"message":{"content":"hello"}}]}`,
			want: "hello",
		},
		{
			name: "content as parts array",
			raw:  `{"choices":[{"message":{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}}]}`,
			want: "part one part two",
		},
		{
			name: "reasoning_content only",
			raw:  `{"choices":[{"message":{"content":"","reasoning_content":"thinking aloud"}}]}`,
			want: "thinking aloud",
		},
		{
			name: "legacy choice text",
			raw:  `{"choices":[{"message":{"content":""},"text":"old completions shape"}]}`,
			want: "old completions shape",
		},
		{
			name: "top-level output",
			raw:  `{"choices":[],"output":"direct output"}`,
			want: "direct output",
		},
		{
			name: "top-level text",
			raw:  `{"choices":[],"text":"direct text"}`,
			want: "direct text",
		},
		{
			name: "last-ditch keyed scan",
			raw:  `{"result":{"inner":{"response":"found me"}}}`,
			want: "found me",
		},
		{
			name: "nothing extractable",
			raw:  `{"choices":[],"usage":{"total_tokens":12}}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := parseFixture(t, tt.raw)
			got := extractContent(raw, resp)
			if got != tt.want {
				t.Errorf("extractContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanForContentSkipsOversizedFields(t *testing.T) {
	huge := strings.Repeat("x", maxScanFieldLen+1)
	raw := `{"content":"` + huge + `","note":"small"}`
	got := scanForContent([]byte(raw))
	if got != "small" {
		t.Errorf("expected oversized field to be skipped, got %d chars", len(got))
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want bool
	}{
		{"ollama model missing", `model "qwen3" not found, try pulling it first`, true},
		{"openai model missing", "The model `gpt-x` does not exist", true},
		{"bare endpoint 404", "404 page not found", false},
		{"connection refused", "dial tcp: connection refused", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &HTTPError{Status: 404, Body: tt.msg}
			if got := isNotFound(err); got != tt.want {
				t.Errorf("isNotFound(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}
