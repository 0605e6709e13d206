package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/internal/store"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

type fakeCaller struct{}

func (fakeCaller) Call(ctx context.Context, model string, msgs []llm.Message, opts llm.Options) (*llm.Reply, error) {
	return &llm.Reply{Content: "- compacted summary"}, nil
}

type sessionsEnv struct {
	mux *http.ServeMux
	mgr *sessions.Manager
	st  *store.Store
	ws  string
}

func newSessionsEnv(t *testing.T) *sessionsEnv {
	t.Helper()
	ws := t.TempDir()
	mgr := sessions.NewManager(nil, func(bool) string { return "agent prompt" }, ws)
	st := store.New(ws)
	mux := http.NewServeMux()
	NewSessionsHandler(mgr, fakeCaller{}, st).RegisterRoutes(mux)
	return &sessionsEnv{mux: mux, mgr: mgr, st: st, ws: ws}
}

func (e *sessionsEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *sessionsEnv) open(t *testing.T, id string) *sessions.Session {
	t.Helper()
	s, _ := e.mgr.OpenOrGet(sessions.OpenRequest{ID: id, Model: "m1", Workspace: e.ws, Message: "start"})
	return s
}

func TestStopAgent(t *testing.T) {
	env := newSessionsEnv(t)
	s := env.open(t, "s1")

	rec := env.do(t, http.MethodPost, "/stop-agent", `{"sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !s.StopRequested() {
		t.Fatal("stop flag not set")
	}

	rec = env.do(t, http.MethodPost, "/stop-agent", `{"sessionId":"ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status = %d, want 404", rec.Code)
	}
}

func TestClearSession(t *testing.T) {
	env := newSessionsEnv(t)
	env.open(t, "s1")

	rec := env.do(t, http.MethodPost, "/clear-session", `{"sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := env.mgr.Get("s1"); ok {
		t.Fatal("session still registered")
	}

	// Clearing an already-absent session is idempotent.
	rec = env.do(t, http.MethodPost, "/clear-session", `{"sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat clear: status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/clear-session", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: status = %d, want 400", rec.Code)
	}
}

func TestCompactSession(t *testing.T) {
	env := newSessionsEnv(t)
	s := env.open(t, "s1")
	for i := 0; i < 6; i++ {
		s.Append(llm.Message{Role: llm.RoleUser, Content: "filler message"})
	}
	before := len(s.Messages)

	rec := env.do(t, http.MethodPost, "/compact", `{"sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp protocol.CompactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Before != before || resp.After >= resp.Before {
		t.Fatalf("resp = %+v (before was %d)", resp, before)
	}

	rec = env.do(t, http.MethodPost, "/compact", `{"sessionId":"ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status = %d, want 404", rec.Code)
	}
}

func TestSwitchModel(t *testing.T) {
	env := newSessionsEnv(t)
	s := env.open(t, "s1")

	rec := env.do(t, http.MethodPost, "/switch-model", `{"sessionId":"s1","model":"llama3:8b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if s.Model != "llama3:8b" {
		t.Fatalf("model = %q", s.Model)
	}

	rec = env.do(t, http.MethodPost, "/switch-model", `{"sessionId":"s1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing model: status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/switch-model", `{"sessionId":"ghost","model":"m"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status = %d, want 404", rec.Code)
	}
}

func TestSessionsListing(t *testing.T) {
	env := newSessionsEnv(t)
	env.open(t, "live-1")
	if err := env.st.SaveConversation("old-1", []llm.Message{
		{Role: llm.RoleSystem, Content: "p"},
		{Role: llm.RoleUser, Content: "hi"},
	}, store.ConversationMeta{Model: "m1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp protocol.SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Active) != 1 || resp.Active[0].ID != "live-1" {
		t.Fatalf("active = %+v", resp.Active)
	}
	if len(resp.Saved) != 1 || resp.Saved[0].ID != "old-1" || resp.Saved[0].MessageCount != 2 {
		t.Fatalf("saved = %+v", resp.Saved)
	}
}

func TestLoadAndDeleteConversation(t *testing.T) {
	env := newSessionsEnv(t)
	if err := env.st.SaveConversation("old-1", []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
	}, store.ConversationMeta{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/sessions/old-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var record store.ConversationRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.SessionID != "old-1" || len(record.Messages) != 1 {
		t.Fatalf("record = %+v", record)
	}

	rec = env.do(t, http.MethodGet, "/sessions/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing conversation: status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/sessions/old-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/sessions/old-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: status = %d, want 404", rec.Code)
	}
}
