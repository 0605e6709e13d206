package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/rushi32/IsoCode/pkg/protocol"
)

// wantsSSE reports whether the client asked for an event stream.
func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// Streamer writes SSE frames as `data: <json>\n\n` blocks. Writes block
// until the client drains them; that blocking is the back-pressure that
// throttles the engine loop. After the first write failure the stream is
// marked unwritable and later frames are dropped.
type Streamer struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

// NewStreamer switches the response to an SSE stream and flushes the
// headers so the client sees the stream open before the first frame.
func NewStreamer(w http.ResponseWriter) (*Streamer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Streamer{w: w, flusher: flusher}, nil
}

// Send writes one frame. Safe for use as an engine SendFunc.
func (s *Streamer) Send(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("sse frame marshal failed", "type", ev.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.closed = true
		slog.Warn("sse client gone", "error", err)
		return
	}
	s.flusher.Flush()
}
