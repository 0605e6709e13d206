package httpapi

import (
	"net/http"

	"github.com/rushi32/IsoCode/pkg/protocol"
)

// ServerStatuser reports external tool server states; *mcp.Manager
// satisfies it.
type ServerStatuser interface {
	Statuses() []protocol.MCPServerStatus
}

// MCPStatusHandler lists the configured external tool servers.
type MCPStatusHandler struct {
	mgr ServerStatuser
}

func NewMCPStatusHandler(mgr ServerStatuser) *MCPStatusHandler {
	return &MCPStatusHandler{mgr: mgr}
}

func (h *MCPStatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /mcp-status", h.handleStatus)
}

// handleStatus reports each configured server with its connection state,
// bridged tool names, and last error.
//
//	GET /mcp-status
func (h *MCPStatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.mgr.Statuses()
	if statuses == nil {
		statuses = []protocol.MCPServerStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"servers": statuses})
}
