package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/engine"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

const (
	chatTimeout   = 120 * time.Second
	chatMaxTokens = 4096
)

const chatSystemPrompt = "You are IsoCode, a senior software engineer answering questions about the user's code. Be direct and concrete. Use fenced code blocks for code."

// AgentRunner is the slice of the engine the chat handler needs.
// *engine.Engine satisfies it.
type AgentRunner interface {
	Run(ctx context.Context, req engine.RunRequest, send engine.SendFunc) error
}

// ChatModel is the slice of the LLM adapter the plain-chat path needs.
type ChatModel interface {
	Call(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.Reply, error)
	Stream(ctx context.Context, model string, messages []llm.Message, opts llm.Options, fn func(delta string)) error
	Provider() string
}

// ChatHandler serves POST /chat: chat mode forwards model deltas
// untouched, agent modes run the ReAct loop and stream its events.
type ChatHandler struct {
	cfg *config.Config
	llm ChatModel
	eng AgentRunner
}

func NewChatHandler(cfg *config.Config, model ChatModel, eng AgentRunner) *ChatHandler {
	return &ChatHandler{cfg: cfg, llm: model, eng: eng}
}

func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
}

// handleChat runs one turn. autoMode selects the agent loop, agentPlus
// upgrades it to auto-approved writes and delegation; with neither set
// the message is a plain streaming chat. A decision request re-enters an
// agent session awaiting diff approval.
//
//	POST /chat
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Message == "" && req.Decision == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if req.SessionID == "" {
		// Generated here, not in the registry, so every response shape
		// can echo the id back to the editor.
		req.SessionID = "session-" + uuid.NewString()[:12]
	}

	agentTurn := req.AutoMode || req.AgentPlus || req.Decision != ""

	if !wantsSSE(r) {
		if agentTurn {
			h.agentJSON(w, r, req)
		} else {
			h.chatJSON(w, r, req)
		}
		return
	}

	stream, err := NewStreamer(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if agentTurn {
		h.agentStream(r.Context(), stream, req)
	} else {
		h.chatStream(r.Context(), stream, req)
	}
}

// runRequest maps the wire request onto the engine. Interactive runs get
// the full step ceiling; the engine's own caps end runaway loops.
func runRequest(req protocol.ChatRequest) engine.RunRequest {
	return engine.RunRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Model:     req.Model,
		AgentPlus: req.AgentPlus,
		Workspace: req.WorkspaceRoot,
		Context:   req.Context,
		Decision:  req.Decision,
		MaxSteps:  engine.MaxStepsCeiling,
	}
}

func (h *ChatHandler) agentStream(ctx context.Context, stream *Streamer, req protocol.ChatRequest) {
	if err := h.eng.Run(ctx, runRequest(req), stream.Send); err != nil {
		// Validation failures arrive after the stream is open, so they
		// become error frames instead of status codes.
		stream.Send(protocol.Error(err.Error()))
	}
}

func (h *ChatHandler) agentJSON(w http.ResponseWriter, r *http.Request, req protocol.ChatRequest) {
	events := make([]protocol.Event, 0, 16)
	err := h.eng.Run(r.Context(), runRequest(req), func(ev protocol.Event) {
		events = append(events, ev)
	})
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": req.SessionID,
		"events":    events,
	})
}

// statusFor maps engine validation errors onto status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, sessions.ErrNoPendingDiff):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (h *ChatHandler) chatStream(ctx context.Context, stream *Streamer, req protocol.ChatRequest) {
	snap := h.cfg.Snapshot()
	model := req.Model
	if model == "" {
		model = snap.Model
	}

	err := h.llm.Stream(ctx, model, chatMessages(req), llm.Options{
		Temperature: snap.Temperature,
		MaxTokens:   chatMaxTokens,
		Timeout:     chatTimeout,
	}, func(delta string) {
		stream.Send(protocol.Chunk(delta))
	})
	if err != nil {
		stream.Send(protocol.Final(h.chatFailureText(model, err)))
	}
	stream.Send(protocol.Done())
}

func (h *ChatHandler) chatJSON(w http.ResponseWriter, r *http.Request, req protocol.ChatRequest) {
	snap := h.cfg.Snapshot()
	model := req.Model
	if model == "" {
		model = snap.Model
	}

	reply, err := h.llm.Call(r.Context(), model, chatMessages(req), llm.Options{
		Temperature: snap.Temperature,
		MaxTokens:   chatMaxTokens,
		Timeout:     chatTimeout,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": h.chatFailureText(model, err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": req.SessionID,
		"content":   reply.Content,
	})
}

// chatMessages builds the two-message conversation for a stateless chat
// turn: the chat prompt plus the user's message with any attachments.
func chatMessages(req protocol.ChatRequest) []llm.Message {
	var sb strings.Builder
	sb.WriteString(req.Message)
	for _, f := range req.Context {
		fmt.Fprintf(&sb, "\n\nAttached file %s:\n```\n%s\n```", f.Path, f.Content)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: chatSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// chatFailureText renders a chat-path provider failure with a remediation
// hint where the cause is deterministic.
func (h *ChatHandler) chatFailureText(model string, err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	lower := strings.ToLower(msg)
	if h.llm.Provider() == llm.ProviderOllama {
		if strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") {
			return fmt.Sprintf("The model %q is not available: %s. Run `ollama pull %s` or switch to an installed model.", model, msg, model)
		}
		if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
			return fmt.Sprintf("The LLM provider is unreachable: %s. Start it with `ollama serve` or fix the API base in the configuration.", msg)
		}
	}
	return "The chat request failed: " + msg
}
