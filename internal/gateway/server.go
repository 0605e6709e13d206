// Package gateway assembles the HTTP surface and owns the server
// lifecycle: route registration, CORS for the editor webview, and
// graceful shutdown.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

// Handlers carries the route handlers the server mounts. Nil entries are
// skipped so tests can assemble partial servers.
type Handlers struct {
	Status   *httpapi.StatusHandler
	Provider *httpapi.ProviderHandler
	Chat     *httpapi.ChatHandler
	Config   *httpapi.ConfigHandler
	Sessions *httpapi.SessionsHandler
	Codebase *httpapi.CodebaseHandler
	MCP      *httpapi.MCPStatusHandler
}

func (h Handlers) each() []interface{ RegisterRoutes(*http.ServeMux) } {
	out := make([]interface{ RegisterRoutes(*http.ServeMux) }, 0, 7)
	if h.Status != nil {
		out = append(out, h.Status)
	}
	if h.Provider != nil {
		out = append(out, h.Provider)
	}
	if h.Chat != nil {
		out = append(out, h.Chat)
	}
	if h.Config != nil {
		out = append(out, h.Config)
	}
	if h.Sessions != nil {
		out = append(out, h.Sessions)
	}
	if h.Codebase != nil {
		out = append(out, h.Codebase)
	}
	if h.MCP != nil {
		out = append(out, h.MCP)
	}
	return out
}

// Server is the local HTTP+SSE server the editor talks to.
type Server struct {
	cfg      *config.Config
	handlers Handlers

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(cfg *config.Config, h Handlers) *Server {
	return &Server{cfg: cfg, handlers: h}
}

// BuildMux creates and caches the mux with every configured handler
// registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	for _, h := range s.handlers.each() {
		h.RegisterRoutes(mux)
	}

	s.mux = mux
	return mux
}

// Handler returns the mux wrapped in CORS, ready to serve.
func (s *Server) Handler() http.Handler {
	return withCORS(s.BuildMux())
}

// withCORS answers preflights and opens the surface to the editor
// webview; the server binds loopback only, so exposure stays local.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured port until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Snapshot().Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// StartTestServer listens on a random loopback port and returns the
// address plus a start function. Used by integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: s.Handler()}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}
	return addr, start
}
