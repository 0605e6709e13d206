package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/index"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/store"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

const relevanceContextChars = 3000

// PromptRenderer produces the base agent prompt for a mode. The engine
// provides it; the manager stays free of prompt wording.
type PromptRenderer func(agentPlus bool) string

// Manager is the process-wide session registry. The mutex guards only
// the map; session fields belong to the owning request's goroutine.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	index     *index.Cache
	prompt    PromptRenderer
	workspace string // default workspace when the request names none
}

// NewManager builds the registry.
func NewManager(idx *index.Cache, prompt PromptRenderer, defaultWorkspace string) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		index:     idx,
		prompt:    prompt,
		workspace: defaultWorkspace,
	}
}

// OpenRequest carries everything needed to open or resume a session.
type OpenRequest struct {
	ID        string
	AgentPlus bool
	Model     string
	Workspace string
	Message   string
	Context   []protocol.ContextFile
}

// OpenOrGet returns the session for an id, creating it when absent. On
// creation the system prompt is composed from the rendered agent prompt,
// project context, project map, rules, the cross-session memory primer,
// and any prior checkpoint; the first user message carries the request
// plus attached or auto-gathered context. On an existing session a
// non-empty message is appended as the next user turn.
func (m *Manager) OpenOrGet(req OpenRequest) (*Session, bool) {
	if req.ID == "" {
		req.ID = "session-" + uuid.NewString()[:12]
	}

	m.mu.Lock()
	if s, ok := m.sessions[req.ID]; ok {
		m.mu.Unlock()
		if req.Model != "" {
			s.Model = req.Model
		}
		if req.Message != "" {
			s.Append(llm.Message{Role: llm.RoleUser, Content: m.composeUserMessage(s.Workspace, req)})
		}
		return s, false
	}
	m.mu.Unlock()

	ws := req.Workspace
	if ws == "" {
		ws = m.workspace
	}
	if abs, err := filepath.Abs(ws); err == nil {
		ws = abs
	}

	now := time.Now()
	s := &Session{
		ID:        req.ID,
		Model:     req.Model,
		AgentPlus: req.AgentPlus,
		Workspace: ws,
		Created:   now,
		Updated:   now,
	}
	s.Messages = []llm.Message{
		{Role: llm.RoleSystem, Content: m.composeSystemPrompt(s, len(req.Context) > 0)},
		{Role: llm.RoleUser, Content: m.composeUserMessage(ws, req)},
	}

	m.mu.Lock()
	// A concurrent open for the same id may have won; keep the first.
	if existing, ok := m.sessions[req.ID]; ok {
		m.mu.Unlock()
		return existing, false
	}
	m.sessions[req.ID] = s
	m.mu.Unlock()

	slog.Info("session opened", "session", s.ID, "agentPlus", s.AgentPlus, "workspace", ws)
	return s, true
}

func (m *Manager) composeSystemPrompt(s *Session, hasContext bool) string {
	parts := []string{m.prompt(s.AgentPlus)}

	if hasContext {
		parts = append(parts, "The user attached file context; the file contents follow the request in the first message.")
	}

	st := store.New(s.Workspace)
	if pc := st.ProjectContextSummary(); pc != "" {
		parts = append(parts, pc)
	}
	if m.index != nil {
		if ix, err := m.index.Get(s.Workspace); err == nil {
			parts = append(parts, ix.ProjectMap())
		}
	}
	if rules := strings.TrimSpace(st.Rules()); rules != "" {
		parts = append(parts, "Project rules:\n"+rules)
	}
	if primer := st.MemoryPrimer(); primer != "" {
		parts = append(parts, primer)
	}
	if cp := st.LoadCheckpoint(s.ID); cp != "" {
		parts = append(parts, "Resuming earlier work. Prior checkpoint:\n"+cp)
	}
	return strings.Join(parts, "\n\n")
}

func (m *Manager) composeUserMessage(workspace string, req OpenRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Message)

	if len(req.Context) > 0 {
		for _, f := range req.Context {
			fmt.Fprintf(&sb, "\n\nAttached file %s:\n```\n%s\n```", f.Path, f.Content)
		}
		return sb.String()
	}

	// No explicit context: gather relevance hints from the file index.
	if m.index != nil && req.Message != "" {
		if ix, err := m.index.Get(workspace); err == nil {
			if rc := ix.RelevanceContext(req.Message, relevanceContextChars); rc != "" {
				sb.WriteString("\n\n")
				sb.WriteString(rc)
			}
		}
	}
	return sb.String()
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session from the registry.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Stop flags a session for cooperative termination.
func (m *Manager) Stop(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("stop %q: %w", id, ErrSessionNotFound)
	}
	s.RequestStop()
	slog.Info("stop requested", "session", id)
	return nil
}

// Active lists the live sessions for /sessions.
func (m *Manager) Active() []protocol.SessionRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.SessionRef, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, protocol.SessionRef{
			ID:           s.ID,
			MessageCount: len(s.Messages),
			Model:        s.Model,
			UpdatedAt:    s.Updated.UTC().Format(time.RFC3339),
			AgentPlus:    s.AgentPlus,
		})
	}
	return out
}

// Compact runs conversation compaction for a session and returns the
// before/after message counts.
func (m *Manager) Compact(ctx context.Context, id, model string, caller contextwindow.Caller) (int, int, error) {
	s, ok := m.Get(id)
	if !ok {
		return 0, 0, fmt.Errorf("compact %q: %w", id, ErrSessionNotFound)
	}
	if model == "" {
		model = s.Model
	}
	before := len(s.Messages)
	msgs, usedFallback := contextwindow.NewCompactor(caller).Compact(ctx, model, s.Messages)
	s.Messages = msgs
	s.Compactions++
	s.Updated = time.Now()
	slog.Info("session compacted", "session", id, "before", before, "after", len(msgs), "fallback", usedFallback)
	return before, len(msgs), nil
}

// SwitchModel records a new model for a session. Conversations longer
// than four messages are compacted and an assistant observation notes the
// switch. The compaction counter resets so the new model gets its full
// compaction budget.
func (m *Manager) SwitchModel(ctx context.Context, id, newModel string, caller contextwindow.Caller) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("switch model %q: %w", id, ErrSessionNotFound)
	}
	old := s.Model
	s.Model = newModel

	if len(s.Messages) > 4 {
		msgs, _ := contextwindow.NewCompactor(caller).Compact(ctx, newModel, s.Messages)
		s.Messages = msgs
		s.Append(llm.Message{
			Role:    llm.RoleAssistant,
			Content: fmt.Sprintf(`{"type":"observation","content":"Model switched from %s to %s."}`, old, newModel),
		})
	}
	s.Compactions = 0
	s.Updated = time.Now()
	slog.Info("model switched", "session", id, "from", old, "to", newModel)
	return nil
}
