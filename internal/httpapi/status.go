package httpapi

import (
	"fmt"
	"html"
	"net/http"

	"github.com/rushi32/IsoCode/internal/config"
)

// StatusHandler serves the informational root page.
type StatusHandler struct {
	cfg     *config.Config
	version string
}

func NewStatusHandler(cfg *config.Config, version string) *StatusHandler {
	return &StatusHandler{cfg: cfg, version: version}
}

func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	// {$} keeps this off every unmatched path.
	mux.HandleFunc("GET /{$}", h.handleStatus)
}

// handleStatus renders a small HTML page confirming the runtime is up.
//
//	GET /
func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.cfg.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
<head><title>IsoCode</title></head>
<body>
<h1>IsoCode %s</h1>
<p>Local agent runtime is running.</p>
<ul>
<li>provider: %s</li>
<li>model: %s</li>
<li>endpoints: POST /chat, GET /health, GET /models, GET /sessions</li>
</ul>
</body>
</html>
`, html.EscapeString(h.version), html.EscapeString(snap.Provider), html.EscapeString(snap.Model))
}
