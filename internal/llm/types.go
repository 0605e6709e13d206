package llm

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation entry. Structured payloads (directives,
// observations) are carried as JSON text in Content.
type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// Image is an inline base64 image attached to a user message.
type Image struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolCall is a native tool invocation returned by the model.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolSchema describes one tool in the wire format both dialects accept:
// {type:"function", function:{name, description, parameters}}.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Options tune a single call or stream.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	ExpectJSON  bool
	Tools       []ToolSchema
	ToolChoice  string
}

// Reply is the unified result of a call: plain content, native tool
// calls, or both.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}
