package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/engine"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

type fakeRunner struct {
	req    engine.RunRequest
	events []protocol.Event
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, req engine.RunRequest, send engine.SendFunc) error {
	f.calls++
	f.req = req
	if f.err != nil {
		return f.err
	}
	for _, ev := range f.events {
		send(ev)
	}
	return nil
}

type fakeChatModel struct {
	deltas    []string
	streamErr error
	reply     string
	callErr   error

	model    string
	messages []llm.Message
}

func (f *fakeChatModel) Call(ctx context.Context, model string, msgs []llm.Message, opts llm.Options) (*llm.Reply, error) {
	f.model, f.messages = model, msgs
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &llm.Reply{Content: f.reply}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, model string, msgs []llm.Message, opts llm.Options, fn func(string)) error {
	f.model, f.messages = model, msgs
	for _, d := range f.deltas {
		fn(d)
	}
	return f.streamErr
}

func (f *fakeChatModel) Provider() string { return llm.ProviderOllama }

func chatMux(model *fakeChatModel, runner *fakeRunner) *http.ServeMux {
	mux := http.NewServeMux()
	NewChatHandler(config.Default(), model, runner).RegisterRoutes(mux)
	return mux
}

func postChat(mux *http.ServeMux, body string, sse bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sse {
		req.Header.Set("Accept", "text/event-stream")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func parseFrames(t *testing.T, body string) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("frame %q does not start with data:", block)
		}
		var ev protocol.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev); err != nil {
			t.Fatalf("frame %q: %v", block, err)
		}
		out = append(out, ev)
	}
	return out
}

func frameTypes(events []protocol.Event) string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return strings.Join(types, " ")
}

func TestChatStreamForwardsDeltas(t *testing.T) {
	model := &fakeChatModel{deltas: []string{"Hel", "lo"}}
	mux := chatMux(model, &fakeRunner{})

	rec := postChat(mux, `{"message":"hi"}`, true)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	if ab := rec.Header().Get("X-Accel-Buffering"); ab != "no" {
		t.Fatalf("X-Accel-Buffering = %q", ab)
	}

	events := parseFrames(t, rec.Body.String())
	if got := frameTypes(events); got != "chunk chunk done" {
		t.Fatalf("frames = %q, want chunk chunk done", got)
	}
	if events[0].Content != "Hel" || events[1].Content != "lo" {
		t.Fatalf("chunk contents = %q, %q", events[0].Content, events[1].Content)
	}

	if model.model != config.Default().Snapshot().Model {
		t.Fatalf("model = %q, want the configured default", model.model)
	}
	if len(model.messages) != 2 || model.messages[0].Role != llm.RoleSystem {
		t.Fatalf("messages = %+v, want system+user", model.messages)
	}
	if model.messages[1].Content != "hi" {
		t.Fatalf("user message = %q", model.messages[1].Content)
	}
}

func TestChatStreamEmptyReplyStillTerminates(t *testing.T) {
	model := &fakeChatModel{}
	mux := chatMux(model, &fakeRunner{})

	rec := postChat(mux, `{"message":"hi"}`, true)
	events := parseFrames(t, rec.Body.String())
	if got := frameTypes(events); got != "done" {
		t.Fatalf("frames = %q, want a lone done", got)
	}
}

func TestChatStreamAttachesContext(t *testing.T) {
	model := &fakeChatModel{deltas: []string{"ok"}}
	mux := chatMux(model, &fakeRunner{})

	postChat(mux, `{"message":"explain","context":[{"path":"main.go","content":"package main"}]}`, true)

	user := model.messages[1].Content
	if !strings.Contains(user, "Attached file main.go") || !strings.Contains(user, "package main") {
		t.Fatalf("user message missing attachment: %q", user)
	}
}

func TestChatStreamFailureEndsWithRemediation(t *testing.T) {
	model := &fakeChatModel{streamErr: errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")}
	mux := chatMux(model, &fakeRunner{})

	rec := postChat(mux, `{"message":"hi"}`, true)
	events := parseFrames(t, rec.Body.String())
	if got := frameTypes(events); got != "final done" {
		t.Fatalf("frames = %q, want final done", got)
	}
	if !strings.Contains(events[0].Content, "ollama serve") {
		t.Fatalf("final missing remediation hint: %q", events[0].Content)
	}
}

func TestChatJSONMode(t *testing.T) {
	model := &fakeChatModel{reply: "Hello there"}
	mux := chatMux(model, &fakeRunner{})

	rec := postChat(mux, `{"message":"hi"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["content"] != "Hello there" {
		t.Fatalf("content = %q", resp["content"])
	}
	if !strings.HasPrefix(resp["sessionId"], "session-") {
		t.Fatalf("sessionId = %q, want a generated id", resp["sessionId"])
	}
}

func TestChatRequiresMessage(t *testing.T) {
	mux := chatMux(&fakeChatModel{}, &fakeRunner{})

	rec := postChat(mux, `{"autoMode":true}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "message is required") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestAgentStreamEmitsEngineEvents(t *testing.T) {
	runner := &fakeRunner{events: []protocol.Event{
		protocol.Thought("planning"),
		protocol.Final("done"),
	}}
	mux := chatMux(&fakeChatModel{}, runner)

	rec := postChat(mux, `{"message":"do it","autoMode":true,"sessionId":"s1","workspaceRoot":"/ws"}`, true)
	events := parseFrames(t, rec.Body.String())
	if got := frameTypes(events); got != "thought final" {
		t.Fatalf("frames = %q, want thought final", got)
	}

	if runner.req.SessionID != "s1" || runner.req.Message != "do it" || runner.req.Workspace != "/ws" {
		t.Fatalf("run request = %+v", runner.req)
	}
	if runner.req.AgentPlus {
		t.Fatal("autoMode alone must not select agent-plus")
	}
	if runner.req.MaxSteps != engine.MaxStepsCeiling {
		t.Fatalf("MaxSteps = %d, want the interactive ceiling", runner.req.MaxSteps)
	}
}

func TestAgentPlusSelectsAgentTurn(t *testing.T) {
	runner := &fakeRunner{events: []protocol.Event{protocol.Final("done")}}
	mux := chatMux(&fakeChatModel{}, runner)

	postChat(mux, `{"message":"go","agentPlus":true}`, true)
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if !runner.req.AgentPlus {
		t.Fatal("agentPlus must map onto the run request")
	}
}

func TestAgentJSONCollectsEvents(t *testing.T) {
	runner := &fakeRunner{events: []protocol.Event{
		protocol.Thought("planning"),
		protocol.Final("done"),
	}}
	mux := chatMux(&fakeChatModel{}, runner)

	rec := postChat(mux, `{"message":"do it","autoMode":true,"sessionId":"s1"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		SessionID string           `json:"sessionId"`
		Events    []protocol.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" {
		t.Fatalf("sessionId = %q", resp.SessionID)
	}
	if len(resp.Events) != 2 || resp.Events[1].Type != protocol.EventFinal {
		t.Fatalf("events = %+v", resp.Events)
	}
}

func TestDecisionErrorsMapToStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("decision for %q: %w", "ghost", sessions.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("decision for %q: %w", "s1", sessions.ErrNoPendingDiff), http.StatusConflict},
		{errors.New(`invalid decision "maybe": want approve or reject`), http.StatusBadRequest},
	}
	for _, tc := range cases {
		runner := &fakeRunner{err: tc.err}
		mux := chatMux(&fakeChatModel{}, runner)
		rec := postChat(mux, `{"decision":"approve","sessionId":"s1"}`, false)
		if rec.Code != tc.want {
			t.Errorf("err %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestAgentStreamValidationBecomesErrorFrame(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("decision for %q: %w", "ghost", sessions.ErrSessionNotFound)}
	mux := chatMux(&fakeChatModel{}, runner)

	rec := postChat(mux, `{"decision":"approve","sessionId":"ghost"}`, true)
	events := parseFrames(t, rec.Body.String())
	if len(events) != 1 || events[0].Type != protocol.EventError {
		t.Fatalf("events = %+v, want a single error frame", events)
	}
	if !strings.Contains(events[0].Content, "session not found") {
		t.Fatalf("error content = %q", events[0].Content)
	}
}
