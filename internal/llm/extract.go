package llm

import (
	"encoding/json"
	"strings"
)

const maxScanFieldLen = 500_000

// extractContent digs the assistant text out of a chat-completions
// response. Providers disagree on where content lives, so the chain is
// deliberately exhaustive: message.content as string, content as an
// array of parts, reasoning_content, choice.text, top-level output/text,
// and finally a scan of the raw JSON for any plausible string field.
func extractContent(raw []byte, resp *chatCompletionsResponse) string {
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message

		var asString string
		if err := json.Unmarshal(msg.Content, &asString); err == nil && asString != "" {
			return asString
		}

		var asParts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Content, &asParts); err == nil {
			var b strings.Builder
			for _, p := range asParts {
				b.WriteString(p.Text)
			}
			if b.Len() > 0 {
				return b.String()
			}
		}

		if msg.ReasoningContent != "" {
			return msg.ReasoningContent
		}
		if resp.Choices[0].Text != "" {
			return resp.Choices[0].Text
		}
	}

	if resp.Output != "" {
		return resp.Output
	}
	if resp.Text != "" {
		return resp.Text
	}

	return scanForContent(raw)
}

// scanForContent is the last-ditch pass: walk the decoded JSON looking
// for the first non-empty string under a content-ish key, then any
// non-empty string of sane length.
func scanForContent(raw []byte) string {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ""
	}
	if s := findString(decoded, true); s != "" {
		return s
	}
	return findString(decoded, false)
}

var contentKeys = map[string]bool{
	"content": true, "text": true, "output": true,
	"response": true, "completion": true, "answer": true,
}

func findString(v interface{}, keyedOnly bool) string {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if s, ok := child.(string); ok {
				if s == "" || len(s) > maxScanFieldLen {
					continue
				}
				if !keyedOnly || contentKeys[strings.ToLower(k)] {
					return s
				}
			}
		}
		for _, child := range val {
			if s := findString(child, keyedOnly); s != "" {
				return s
			}
		}
	case []interface{}:
		for _, child := range val {
			if s := findString(child, keyedOnly); s != "" {
				return s
			}
		}
	}
	return ""
}
