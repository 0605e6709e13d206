package sessions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/index"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

func testPrompt(agentPlus bool) string {
	if agentPlus {
		return "AGENT-PLUS PROMPT"
	}
	return "AGENT PROMPT"
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	ws := t.TempDir()
	idx := index.NewCache()
	t.Cleanup(func() { idx.Close() })
	return NewManager(idx, testPrompt, ws), ws
}

func TestOpenOrGetCreates(t *testing.T) {
	m, ws := newTestManager(t)

	s, created := m.OpenOrGet(OpenRequest{
		ID:        "s1",
		Model:     "qwen2.5-coder:7b",
		Workspace: ws,
		Message:   "rename foo to bar",
	})
	if !created {
		t.Fatal("expected creation")
	}
	if len(s.Messages) != 2 {
		t.Fatalf("messages = %d, want system+user", len(s.Messages))
	}
	if s.Messages[0].Role != llm.RoleSystem {
		t.Errorf("message[0].role = %q", s.Messages[0].Role)
	}
	if !strings.Contains(s.Messages[0].Content, "AGENT PROMPT") {
		t.Error("system prompt missing rendered agent prompt")
	}
	if s.Messages[1].Role != llm.RoleUser || !strings.Contains(s.Messages[1].Content, "rename foo") {
		t.Errorf("message[1] = %+v", s.Messages[1])
	}

	again, created := m.OpenOrGet(OpenRequest{ID: "s1", Workspace: ws})
	if created || again != s {
		t.Error("second open must return the same session")
	}
}

func TestOpenOrGetGeneratesID(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{Workspace: ws, Message: "hi"})
	if s.ID == "" {
		t.Fatal("expected generated id")
	}
	if !strings.HasPrefix(s.ID, "session-") {
		t.Errorf("id = %q", s.ID)
	}
}

func TestOpenOrGetAppendsOnResume(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{ID: "s2", Workspace: ws, Message: "first"})
	before := len(s.Messages)

	m.OpenOrGet(OpenRequest{ID: "s2", Workspace: ws, Message: "second", Model: "other"})
	if len(s.Messages) != before+1 {
		t.Fatalf("messages = %d, want %d", len(s.Messages), before+1)
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != llm.RoleUser || !strings.Contains(last.Content, "second") {
		t.Errorf("appended = %+v", last)
	}
	if s.Model != "other" {
		t.Errorf("model = %q, want update on resume", s.Model)
	}
}

func TestSystemPromptIncludesWorkspaceState(t *testing.T) {
	m, ws := newTestManager(t)
	iso := filepath.Join(ws, ".isocode")
	if err := os.MkdirAll(iso, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(iso, "rules.md"), []byte("prefer table tests"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, _ := m.OpenOrGet(OpenRequest{ID: "s3", Workspace: ws, Message: "do a thing"})
	sys := s.Messages[0].Content
	if !strings.Contains(sys, "prefer table tests") {
		t.Error("rules.md not injected")
	}
	if !strings.Contains(sys, "Project map") {
		t.Error("project map not injected")
	}
}

func TestAttachedContextGoesToUserMessage(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{
		ID:        "s4",
		Workspace: ws,
		Message:   "fix this",
		Context: []protocol.ContextFile{
			{Path: "src/a.ts", Content: "export function foo() {}"},
		},
	})
	user := s.Messages[1].Content
	if !strings.Contains(user, "Attached file src/a.ts") || !strings.Contains(user, "export function foo") {
		t.Errorf("attachment missing from user message:\n%s", user)
	}
	if !strings.Contains(s.Messages[0].Content, "attached file context") {
		t.Error("system prompt missing the context-file nudge")
	}
}

func TestPendingDiffLifecycle(t *testing.T) {
	s := &Session{ID: "x"}
	if _, err := s.TakePendingDiff(); !errors.Is(err, ErrNoPendingDiff) {
		t.Fatalf("err = %v, want ErrNoPendingDiff", err)
	}
	s.SetPendingDiff("src/a.ts", "--- a/src/a.ts\n+++ b/src/a.ts\n")
	d, err := s.TakePendingDiff()
	if err != nil {
		t.Fatalf("TakePendingDiff: %v", err)
	}
	if d.FilePath != "src/a.ts" {
		t.Errorf("filePath = %q", d.FilePath)
	}
	if _, err := s.TakePendingDiff(); !errors.Is(err, ErrNoPendingDiff) {
		t.Error("diff should be consumed")
	}
}

func TestStopAndRemove(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{ID: "s5", Workspace: ws, Message: "run"})

	if err := m.Stop("s5"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !s.StopRequested() {
		t.Error("stop flag not set")
	}
	if err := m.Stop("ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}

	m.Remove("s5")
	if _, ok := m.Get("s5"); ok {
		t.Error("session still present after Remove")
	}
}

type scriptedCaller struct {
	reply string
	err   error
	calls int
}

func (c *scriptedCaller) Call(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.Reply, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Reply{Content: c.reply}, nil
}

func TestCompactShrinksConversation(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{ID: "s6", Workspace: ws, Message: "start"})
	for i := 0; i < 10; i++ {
		s.Append(llm.Message{Role: llm.RoleUser, Content: strings.Repeat("chatter ", 30)})
		s.Append(llm.Message{Role: llm.RoleAssistant, Content: `{"type":"thought","content":"working"}`})
	}

	before, after, err := m.Compact(context.Background(), "s6", "m", &scriptedCaller{reply: "- did things"})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if after >= before {
		t.Errorf("after = %d, before = %d; compaction must shrink", after, before)
	}
	if s.Compactions != 1 {
		t.Errorf("compactions = %d, want 1", s.Compactions)
	}
	if _, _, err := m.Compact(context.Background(), "ghost", "m", &scriptedCaller{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSwitchModelCompactsLongConversations(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{ID: "s7", Workspace: ws, Message: "start"})
	for i := 0; i < 6; i++ {
		s.Append(llm.Message{Role: llm.RoleUser, Content: "more"})
	}
	s.Compactions = 2

	if err := m.SwitchModel(context.Background(), "s7", "new-model", &scriptedCaller{reply: "- summary"}); err != nil {
		t.Fatalf("SwitchModel: %v", err)
	}
	if s.Model != "new-model" {
		t.Errorf("model = %q", s.Model)
	}
	if s.Compactions != 0 {
		t.Errorf("compactions = %d, want reset to 0", s.Compactions)
	}
	last := s.Messages[len(s.Messages)-1]
	if !strings.Contains(last.Content, "Model switched") {
		t.Errorf("missing switch observation, last = %q", last.Content)
	}
}

func TestSwitchModelShortConversationSkipsCompaction(t *testing.T) {
	m, ws := newTestManager(t)
	s, _ := m.OpenOrGet(OpenRequest{ID: "s8", Workspace: ws, Message: "hi"})
	caller := &scriptedCaller{reply: "- summary"}

	if err := m.SwitchModel(context.Background(), "s8", "new-model", caller); err != nil {
		t.Fatal(err)
	}
	if caller.calls != 0 {
		t.Error("short conversation should not trigger compaction")
	}
	if len(s.Messages) != 2 {
		t.Errorf("messages = %d, want unchanged 2", len(s.Messages))
	}
}
