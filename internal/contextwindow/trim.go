package contextwindow

import "github.com/rushi32/IsoCode/internal/llm"

// minPartialChars is the smallest slice of budget worth spending on a
// truncated copy of the oldest message that no longer fits whole.
const minPartialChars = 200

// TrimToBudget returns a view of messages that fits the token budget.
// The system message is always kept; the rest are taken newest first
// until the budget runs out. The oldest message that would overflow is
// still included in truncated form when enough budget remains for it to
// be useful. budget <= 0 selects the default budget.
func TrimToBudget(messages []llm.Message, budget int) []llm.Message {
	if len(messages) == 0 {
		return nil
	}
	if budget <= 0 {
		budget = Budget(0)
	}

	var system *llm.Message
	rest := messages
	if messages[0].Role == llm.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	remaining := budget
	if system != nil {
		cost := EstimateMessage(*system)
		if cost >= budget {
			return trimOversizedSystem(*system, rest, budget)
		}
		remaining -= cost
	}

	// Newest first; reversed back into chronological order below.
	var kept []llm.Message
	for i := len(rest) - 1; i >= 0; i-- {
		m := rest[i]
		cost := EstimateMessage(m)
		if cost <= remaining {
			kept = append(kept, m)
			remaining -= cost
			continue
		}
		if chars := int(float64(remaining-perMessageOverhead) * charsPerToken); chars >= minPartialChars {
			m.Content = SmartTruncate(m.Content, chars)
			kept = append(kept, m)
		}
		break
	}

	out := make([]llm.Message, 0, len(kept)+1)
	if system != nil {
		out = append(out, *system)
	}
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	return out
}

// trimOversizedSystem handles the degenerate case where the system
// prompt alone blows the budget: truncate it and pair it with only the
// most recent message.
func trimOversizedSystem(system llm.Message, rest []llm.Message, budget int) []llm.Message {
	budgetChars := int(float64(budget-2*perMessageOverhead) * charsPerToken)
	if budgetChars < minPartialChars {
		budgetChars = minPartialChars
	}
	sysChars := budgetChars * 3 / 4

	system.Content = SmartTruncate(system.Content, sysChars)
	out := []llm.Message{system}
	if len(rest) > 0 {
		last := rest[len(rest)-1]
		last.Content = SmartTruncate(last.Content, budgetChars-sysChars)
		out = append(out, last)
	}
	return out
}
