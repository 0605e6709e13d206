package contextwindow

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/llm"
)

// numbered builds a system message plus n user messages of 350 chars,
// each prefixed with its index so tests can tell survivors apart.
func numbered(n int) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: "sys"}}
	for i := 0; i < n; i++ {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("%02d", i) + strings.Repeat("m", 348),
		})
	}
	return msgs
}

func TestTrimToBudgetFitsUnchanged(t *testing.T) {
	msgs := numbered(3)
	out := TrimToBudget(msgs, 0)
	if len(out) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(out), len(msgs))
	}
	for i := range msgs {
		if out[i].Content != msgs[i].Content {
			t.Errorf("message %d altered", i)
		}
	}
}

func TestTrimToBudgetKeepsNewestWithPartialOldest(t *testing.T) {
	out := TrimToBudget(numbered(10), 300)

	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4", len(out))
	}
	if out[0].Role != llm.RoleSystem {
		t.Error("system message must be first")
	}
	if !strings.HasPrefix(out[1].Content, "07") || !strings.Contains(out[1].Content, "characters omitted") {
		t.Errorf("oldest survivor should be message 07 truncated, got %.40q", out[1].Content)
	}
	if !strings.HasPrefix(out[2].Content, "08") || !strings.HasPrefix(out[3].Content, "09") {
		t.Error("newest messages should survive whole and in order")
	}
}

func TestTrimToBudgetSkipsPartialWhenTooTight(t *testing.T) {
	out := TrimToBudget(numbered(10), 215)

	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	if !strings.HasPrefix(out[1].Content, "08") || !strings.HasPrefix(out[2].Content, "09") {
		t.Error("only the two newest messages should survive")
	}
	if strings.Contains(out[1].Content, "characters omitted") {
		t.Error("no partial inclusion below the minimum useful size")
	}
}

func TestTrimToBudgetOversizedSystem(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: strings.Repeat("s", 100000)},
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleUser, Content: "latest question"},
	}
	out := TrimToBudget(msgs, 0)

	if len(out) != 2 {
		t.Fatalf("got %d messages, want system plus newest only", len(out))
	}
	if out[0].Role != llm.RoleSystem || !strings.Contains(out[0].Content, "characters omitted") {
		t.Error("system prompt should be kept in truncated form")
	}
	if out[1].Content != "latest question" {
		t.Errorf("paired message = %q, want the newest", out[1].Content)
	}
}

func TestTrimToBudgetWithoutSystemMessage(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "one"},
		{Role: llm.RoleAssistant, Content: "two"},
		{Role: llm.RoleUser, Content: "three"},
	}
	out := TrimToBudget(msgs, 0)
	if len(out) != 3 || out[0].Content != "one" || out[2].Content != "three" {
		t.Errorf("order not preserved: %+v", out)
	}
}
