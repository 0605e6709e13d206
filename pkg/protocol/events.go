package protocol

import "encoding/json"

// SSE frame types pushed from server to the editor client.
// Every frame is one `data: <json>\n\n` block whose JSON carries a
// `type` field with one of these values.
const (
	// Streaming chat (passthrough mode).
	EventChunk = "chunk"
	EventDone  = "done"

	// ReAct loop events, emitted in step order: a thought precedes the
	// action it motivates, which precedes its observation.
	EventThought     = "thought"
	EventAction      = "action"
	EventObservation = "observation"
	EventFinal       = "final"

	// Approval request for a proposed file mutation (agent mode).
	EventDiffRequest = "diff_request"

	// Editor hint: reveal a file the agent just wrote.
	EventOpenFile = "open_file"

	// Out-of-band error.
	EventError = "error"
)

// Event is a single SSE frame payload.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`

	// Action frames.
	Tool string          `json:"tool,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`

	// Diff-request frames.
	FilePath  string `json:"filePath,omitempty"`
	Diff      string `json:"diff,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// Open-file frames.
	Path string `json:"path,omitempty"`

	// Delegation observation frames.
	Swarm   bool `json:"swarm,omitempty"`
	Results int  `json:"results,omitempty"`
}

// Chunk builds a streaming-chat delta frame.
func Chunk(content string) Event { return Event{Type: EventChunk, Content: content} }

// Done builds the streaming-chat terminator frame.
func Done() Event { return Event{Type: EventDone} }

// Thought builds a reasoning frame.
func Thought(content string) Event { return Event{Type: EventThought, Content: content} }

// Action builds a tool-invocation frame.
func Action(tool string, args json.RawMessage) Event {
	return Event{Type: EventAction, Tool: tool, Args: args}
}

// Observation builds a tool-result frame.
func Observation(content string) Event { return Event{Type: EventObservation, Content: content} }

// SwarmObservation builds the aggregated result frame of a delegation.
func SwarmObservation(results int, content string) Event {
	return Event{Type: EventObservation, Swarm: true, Results: results, Content: content}
}

// Final builds a terminal frame.
func Final(content string) Event { return Event{Type: EventFinal, Content: content} }

// DiffRequest builds an approval-request frame.
func DiffRequest(sessionID, filePath, diff string) Event {
	return Event{Type: EventDiffRequest, SessionID: sessionID, FilePath: filePath, Diff: diff}
}

// OpenFile builds an editor reveal hint.
func OpenFile(path string) Event { return Event{Type: EventOpenFile, Path: path} }

// Error builds an out-of-band error frame.
func Error(content string) Event { return Event{Type: EventError, Content: content} }
