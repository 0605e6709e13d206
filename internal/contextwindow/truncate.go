package contextwindow

import (
	"encoding/json"
	"fmt"
)

// Caps applied to well-known tool result fields before the whole-result
// fallback kicks in.
const (
	maxContentChars = 4000
	maxStdoutChars  = 2000
	maxStderrChars  = 1000
	maxFileEntries  = 80
	maxMatchEntries = 30

	// maxResultChars bounds the serialised tool result as a whole.
	// resultSlack leaves room for a single field at its cap, so the
	// whole-result fallback only fires for results bulky beyond the
	// field caps.
	maxResultChars = 3000
	resultSlack    = 1500
)

// SmartTruncate caps s at max characters, keeping the head and the tail
// so both the opening and the latest output survive.
func SmartTruncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	head := max * 7 / 10
	tail := max * 2 / 10
	if head < 1 {
		head = 1
	}
	omitted := len(s) - head - tail
	sep := fmt.Sprintf("… [%d characters omitted] …", omitted)
	if tail == 0 {
		return s[:head] + sep
	}
	return s[:head] + sep + s[len(s)-tail:]
}

// TruncateToolResult bounds a tool result for inclusion in the
// conversation and returns it as JSON text. Bulky well-known fields are
// capped individually first; if the serialised result is still
// oversized the JSON text itself is truncated.
func TruncateToolResult(result map[string]interface{}) string {
	if len(result) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(result)
	if err != nil {
		safe, _ := json.Marshal(map[string]string{"error": "unserialisable tool result: " + err.Error()})
		return string(safe)
	}

	// Round-trip so list fields have a uniform shape regardless of how
	// the tool built them.
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return SmartTruncate(string(raw), maxResultChars)
	}
	capString(out, "content", maxContentChars)
	capString(out, "stdout", maxStdoutChars)
	capString(out, "stderr", maxStderrChars)
	capList(out, "files", maxFileEntries)
	if dropped := capList(out, "matches", maxMatchEntries); dropped > 0 {
		out["note"] = fmt.Sprintf("%d more matches omitted", dropped)
	}

	data, err := json.Marshal(out)
	if err != nil {
		data = raw
	}
	text := string(data)
	if len(text) > maxResultChars+resultSlack {
		text = SmartTruncate(text, maxResultChars)
	}
	return text
}

func capString(m map[string]interface{}, key string, max int) {
	if s, ok := m[key].(string); ok && len(s) > max {
		m[key] = SmartTruncate(s, max)
	}
}

// capList trims a list field to max entries and returns how many were
// dropped.
func capList(m map[string]interface{}, key string, max int) int {
	list, ok := m[key].([]interface{})
	if !ok || len(list) <= max {
		return 0
	}
	m[key] = list[:max]
	return len(list) - max
}
