package contextwindow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rushi32/IsoCode/internal/llm"
)

const (
	// CompactionThreshold is the share of the budget at which automatic
	// compaction kicks in.
	CompactionThreshold = 0.75

	// MaxCompactions bounds LLM-assisted compactions per session.
	MaxCompactions = 3

	// keepLastMessages is how many trailing messages survive a
	// compaction untouched.
	keepLastMessages = 4

	compactionTimeout = 120 * time.Second

	// transcriptLineChars bounds each message's contribution to the
	// summarisation request.
	transcriptLineChars = 400
)

// Caller is the slice of the LLM client that compaction needs.
type Caller interface {
	Call(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.Reply, error)
}

// Compactor rewrites long conversations into a summary plus the most
// recent messages.
type Compactor struct {
	llm Caller
}

func NewCompactor(llm Caller) *Compactor {
	return &Compactor{llm: llm}
}

// ShouldCompact reports whether the conversation has crossed the
// automatic compaction threshold for the given window.
func ShouldCompact(messages []llm.Message, window, compactions int) bool {
	if compactions >= MaxCompactions {
		return false
	}
	if len(messages) <= keepLastMessages+1 {
		return false
	}
	return float64(EstimateTokens(messages)) > float64(Budget(window))*CompactionThreshold
}

// Compact replaces everything between the system message and the last
// four messages with a single summary message. The summary comes from
// the model; when that call fails a deterministic digest of the user
// messages stands in. Returns the compacted list and whether the
// fallback digest was used.
func (c *Compactor) Compact(ctx context.Context, model string, messages []llm.Message) ([]llm.Message, bool) {
	if len(messages) <= keepLastMessages+1 {
		return messages, false
	}
	system := messages[0]
	prefix := messages[1 : len(messages)-keepLastMessages]
	suffix := messages[len(messages)-keepLastMessages:]

	usedFallback := false
	summary, err := c.summarise(ctx, model, prefix)
	if err != nil {
		slog.Warn("compaction summarisation failed, using fallback digest", "error", err)
		summary = fallbackDigest(prefix)
		usedFallback = true
	}

	payload, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{"observation", fmt.Sprintf("[summary of %d messages] %s", len(prefix), summary)})

	out := make([]llm.Message, 0, len(suffix)+2)
	out = append(out, system, llm.Message{Role: llm.RoleAssistant, Content: string(payload)})
	out = append(out, suffix...)
	return out, usedFallback
}

// Summary condenses a whole conversation into the short text persisted
// as cross-session memory. The system message is left out; when the
// model call fails the deterministic digest stands in.
func (c *Compactor) Summary(ctx context.Context, model string, messages []llm.Message) string {
	body := messages
	if len(body) > 0 && body[0].Role == llm.RoleSystem {
		body = body[1:]
	}
	if len(body) == 0 {
		return ""
	}
	summary, err := c.summarise(ctx, model, body)
	if err != nil {
		return fallbackDigest(body)
	}
	return summary
}

func (c *Compactor) summarise(ctx context.Context, model string, prefix []llm.Message) (string, error) {
	var b strings.Builder
	b.WriteString("Summarize this conversation in 2-4 bullet points covering: what was asked, what tools were used, what changes were made, and what the current state is. Reply with only the bullets.\n\n")
	for _, m := range prefix {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(SmartTruncate(m.Content, transcriptLineChars))
		b.WriteByte('\n')
	}

	reply, err := c.llm.Call(ctx, model, []llm.Message{{Role: llm.RoleUser, Content: b.String()}}, llm.Options{
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     compactionTimeout,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(reply.Content)
	if summary == "" {
		return "", fmt.Errorf("empty summary reply")
	}
	return summary, nil
}

// fallbackDigest summarises without the model: the opening of each user
// message, joined.
func fallbackDigest(prefix []llm.Message) string {
	var parts []string
	for _, m := range prefix {
		if m.Role != llm.RoleUser {
			continue
		}
		content := m.Content
		if len(content) > 100 {
			content = content[:100]
		}
		if content = strings.TrimSpace(content); content != "" {
			parts = append(parts, content)
		}
	}
	if len(parts) == 0 {
		return "earlier conversation trimmed"
	}
	return strings.Join(parts, "; ")
}
