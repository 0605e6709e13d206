package httpapi

import (
	"net/http"

	"github.com/rushi32/IsoCode/internal/index"
)

// CodebaseHandler exposes the file index: a summary view and an explicit
// invalidate-and-rebuild.
type CodebaseHandler struct {
	cache     *index.Cache
	workspace string
}

func NewCodebaseHandler(cache *index.Cache, workspace string) *CodebaseHandler {
	return &CodebaseHandler{cache: cache, workspace: workspace}
}

func (h *CodebaseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /codebase", h.handleInspect)
	mux.HandleFunc("POST /codebase/reindex", h.handleReindex)
}

func (h *CodebaseHandler) root(override string) string {
	if override != "" {
		return override
	}
	return h.workspace
}

// handleInspect summarises the current index; ?q= adds a path search.
//
//	GET /codebase
func (h *CodebaseHandler) handleInspect(w http.ResponseWriter, r *http.Request) {
	root := h.root(r.URL.Query().Get("workspace"))
	ix, err := h.cache.Get(root)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]interface{}{
		"root":       ix.Root,
		"total":      ix.Total,
		"dirs":       len(ix.Dirs),
		"keyFiles":   len(ix.KeyFiles),
		"builtAt":    ix.BuiltAt,
		"projectMap": ix.ProjectMap(),
	}
	if q := r.URL.Query().Get("q"); q != "" {
		resp["matches"] = ix.Search(q, 20)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReindex drops the cached index and rebuilds it immediately so the
// response can report the fresh file count.
//
//	POST /codebase/reindex
func (h *CodebaseHandler) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceRoot string `json:"workspaceRoot,omitempty"`
	}
	if r.ContentLength > 0 && !readJSON(w, r, &req) {
		return
	}
	root := h.root(req.WorkspaceRoot)

	h.cache.Invalidate(root)
	ix, err := h.cache.Get(root)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "total": ix.Total})
}
