// Package httpapi implements the editor-facing HTTP handlers: chat and
// agent turns over SSE, provider inspection, session control, runtime
// configuration, and file-index access. The gateway package assembles
// these onto a mux and owns the server lifecycle.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes bounds request bodies; context attachments make chat
// bodies large but not unbounded.
const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into dst. On failure it writes the
// 400 response itself and returns false.
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}
