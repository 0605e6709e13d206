// Package contextwindow keeps conversations inside the model's context
// length: token estimation, bounded tool results, trim-to-budget views,
// and LLM-assisted compaction of long histories.
package contextwindow

import "github.com/rushi32/IsoCode/internal/llm"

// Token estimation uses a fixed characters-per-token ratio. It only has
// to be close enough for budgeting; the reply reserve absorbs the error.
const (
	charsPerToken      = 3.5
	perMessageOverhead = 4

	// DefaultWindow is the assumed model context length in tokens when
	// the config does not override it.
	DefaultWindow = 16384

	// ReplyReserve is held back from the window for the model's reply.
	ReplyReserve = 1024
)

// EstimateString approximates the token count of a single string.
func EstimateString(s string) int {
	if s == "" {
		return 0
	}
	return int(float64(len(s))/charsPerToken + 0.5)
}

// EstimateMessage approximates the token cost of one message including
// the per-message framing overhead.
func EstimateMessage(m llm.Message) int {
	return EstimateString(m.Content) + perMessageOverhead
}

// EstimateTokens approximates the token footprint of a message list.
func EstimateTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessage(m)
	}
	return total
}

// Budget converts a context window size into the usable prompt budget.
// window <= 0 selects the default window.
func Budget(window int) int {
	if window <= 0 {
		window = DefaultWindow
	}
	budget := window - ReplyReserve
	if budget < 1 {
		budget = 1
	}
	return budget
}
