package httpapi

import (
	"errors"
	"net/http"
	"os"

	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/internal/store"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

// SessionsHandler serves the session-control endpoints: stop, clear,
// compact, switch-model, and the active/saved listings. Saved
// conversations come from the default workspace's on-disk store.
type SessionsHandler struct {
	mgr    *sessions.Manager
	caller contextwindow.Caller
	store  *store.Store
}

func NewSessionsHandler(mgr *sessions.Manager, caller contextwindow.Caller, st *store.Store) *SessionsHandler {
	return &SessionsHandler{mgr: mgr, caller: caller, store: st}
}

func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /stop-agent", h.handleStop)
	mux.HandleFunc("POST /clear-session", h.handleClear)
	mux.HandleFunc("POST /compact", h.handleCompact)
	mux.HandleFunc("POST /switch-model", h.handleSwitchModel)
	mux.HandleFunc("GET /sessions", h.handleList)
	mux.HandleFunc("GET /sessions/{id}", h.handleLoad)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDelete)
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model,omitempty"`
}

// handleStop flags the session; the loop observes the flag between steps
// and terminates with a final.
//
//	POST /stop-agent
func (h *SessionsHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.mgr.Stop(req.SessionID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleClear drops a session from the registry. Clearing an unknown id
// is not an error; the outcome is the same.
//
//	POST /clear-session
func (h *SessionsHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	h.mgr.Remove(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleCompact compacts the session's conversation and reports the
// message counts around the run.
//
//	POST /compact
func (h *SessionsHandler) handleCompact(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	before, after, err := h.mgr.Compact(r.Context(), req.SessionID, req.Model, h.caller)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, protocol.CompactResponse{Before: before, After: after})
}

// handleSwitchModel updates the session model, compacting longer
// conversations so the new model starts within budget.
//
//	POST /switch-model
func (h *SessionsHandler) handleSwitchModel(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model is required"})
		return
	}
	if err := h.mgr.SwitchModel(r.Context(), req.SessionID, req.Model, h.caller); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleList reports live sessions and persisted conversations.
//
//	GET /sessions
func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	saved := []protocol.SessionRef{}
	for _, info := range h.store.ListConversations() {
		saved = append(saved, protocol.SessionRef{
			ID:           info.SessionID,
			MessageCount: info.MessageCount,
			UpdatedAt:    info.UpdatedAt,
		})
	}
	active := h.mgr.Active()
	if active == nil {
		active = []protocol.SessionRef{}
	}
	writeJSON(w, http.StatusOK, protocol.SessionsResponse{Active: active, Saved: saved})
}

// handleLoad returns one persisted conversation.
//
//	GET /sessions/{id}
func (h *SessionsHandler) handleLoad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.store.LoadConversation(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": "conversation not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDelete removes one persisted conversation. Deleting a missing
// conversation succeeds.
//
//	DELETE /sessions/{id}
func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
