package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/sessions"
)

// BuildCheckpoint renders a session's durable progress snapshot as
// markdown: the user's requests, the current plan, recent reasoning,
// and recent tool actions. It is written at session start, every eighth
// step, after compactions, and on every termination path, and a later
// session for the same id gets it folded into its system prompt.
func BuildCheckpoint(s *sessions.Session) string {
	const (
		maxRequests = 5
		maxThoughts = 5
		maxActions  = 10
		entryChars  = 200
		planChars   = 800
	)

	var requests, thoughts, actions []string
	for _, m := range s.Messages {
		switch m.Role {
		case llm.RoleUser:
			if isEngineNote(m.Content) {
				continue
			}
			requests = append(requests, firstLine(m.Content, entryChars))
		case llm.RoleAssistant:
			var d Directive
			if err := json.Unmarshal([]byte(m.Content), &d); err != nil {
				continue
			}
			switch d.Type {
			case DirectiveThought:
				thoughts = append(thoughts, firstLine(d.Content, entryChars))
			case DirectiveAction:
				args, _ := json.Marshal(d.Args)
				actions = append(actions, firstLine(fmt.Sprintf("%s %s", d.Tool, args), entryChars))
			case DirectiveDiffRequest:
				actions = append(actions, firstLine("diff proposed for "+d.FilePath, entryChars))
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Checkpoint: %s\n\n", s.ID)
	fmt.Fprintf(&b, "Updated: %s (step %d, %d messages)\n", time.Now().UTC().Format(time.RFC3339), s.Steps, len(s.Messages))

	if len(requests) > 0 {
		b.WriteString("\n## User requests\n")
		writeBullets(&b, tail(requests, maxRequests))
	}
	if s.PlanText != "" {
		b.WriteString("\n## Plan\n")
		b.WriteString(contextwindow.SmartTruncate(s.PlanText, planChars))
		fmt.Fprintf(&b, "\n\nProgress: %d/%d tasks complete.\n", s.CompletedTasks, s.TotalTasks)
	}
	if len(thoughts) > 0 {
		b.WriteString("\n## Recent thoughts\n")
		writeBullets(&b, tail(thoughts, maxThoughts))
	}
	if len(actions) > 0 {
		b.WriteString("\n## Recent tool actions\n")
		writeBullets(&b, tail(actions, maxActions))
	}
	return b.String()
}

// isEngineNote filters conversation entries the engine injected itself:
// observation payloads and corrective nudges are state, not requests.
func isEngineNote(content string) bool {
	if strings.HasPrefix(strings.TrimSpace(content), "{") {
		return true
	}
	switch content {
	case jsonFormatNudge, actionNudge, delegationUnavailableNudge:
		return true
	}
	return strings.HasPrefix(content, "Only ") || strings.HasPrefix(content, "Delegation failed")
}

func writeBullets(b *strings.Builder, lines []string) {
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func firstLine(text string, max int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text
}
