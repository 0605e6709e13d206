package protocol

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message       string        `json:"message"`
	AutoMode      bool          `json:"autoMode"`
	AgentPlus     bool          `json:"agentPlus"`
	Model         string        `json:"model,omitempty"`
	SessionID     string        `json:"sessionId,omitempty"`
	Decision      string        `json:"decision,omitempty"` // "approve" | "reject"
	Context       []ContextFile `json:"context,omitempty"`
	WorkspaceRoot string        `json:"workspaceRoot,omitempty"`
}

// ContextFile is an editor-attached file snippet sent with a chat turn.
type ContextFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider"`
	Error    string `json:"error,omitempty"`
}

// ModelInfo describes one available model.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Family      string `json:"family,omitempty"`
}

// ModelsResponse is the body of GET /models. Always HTTP 200; backend
// failure is reported through Error with an empty model list.
type ModelsResponse struct {
	Models   []ModelInfo `json:"models"`
	Provider string      `json:"provider"`
	Error    string      `json:"error,omitempty"`
}

// SessionRef identifies one session in GET /sessions listings.
type SessionRef struct {
	ID           string `json:"id"`
	MessageCount int    `json:"messageCount"`
	Model        string `json:"model,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	AgentPlus    bool   `json:"agentPlus,omitempty"`
}

// SessionsResponse is the body of GET /sessions.
type SessionsResponse struct {
	Active []SessionRef `json:"active"`
	Saved  []SessionRef `json:"saved"`
}

// CompactResponse reports message counts around a compaction run.
type CompactResponse struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// MCPServerStatus describes one configured external tool server.
type MCPServerStatus struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	Connected bool     `json:"connected"`
	Tools     []string `json:"tools,omitempty"`
	Error     string   `json:"error,omitempty"`
}
