// Package mcp maintains the pool of external tool servers: child
// processes speaking MCP over stdio, configured in the workspace's
// .isocode/mcp-servers.json. Each server's tools are registered with the
// dispatcher as mcp_<server>_<tool>; a hash of the configuration detects
// edits and triggers a respawn on the next sync.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/rushi32/IsoCode/internal/store"
	"github.com/rushi32/IsoCode/internal/tools"
	"github.com/rushi32/IsoCode/pkg/protocol"
)

const (
	handshakeTimeout    = 10 * time.Second
	healthCheckInterval = 30 * time.Second
)

// clientVersion identifies this runtime in the MCP handshake.
var clientVersion = "dev"

// SetClientVersion records the build version used in handshakes.
func SetClientVersion(v string) {
	if v != "" {
		clientVersion = v
	}
}

// serverState is one configured server. A spawn or handshake failure is
// recorded in err and surfaced whenever the server is consulted; the
// server stays failed until a config change respawns the pool.
type serverState struct {
	config    ServerConfig
	client    *mcpclient.Client
	toolNames []string
	cancel    context.CancelFunc

	mu  sync.Mutex
	err string
}

func (s *serverState) setErr(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

func (s *serverState) lastErr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Manager owns the server pool.
type Manager struct {
	mu         sync.Mutex
	store      *store.Store
	registry   *tools.Registry
	servers    map[string]*serverState
	configHash string
}

func NewManager(st *store.Store, registry *tools.Registry) *Manager {
	return &Manager{
		store:    st,
		registry: registry,
		servers:  make(map[string]*serverState),
	}
}

// Sync reconciles the pool with mcp-servers.json. When the configuration
// hash is unchanged the running pool is kept; otherwise every server is
// stopped and the new list spawned. A missing config file means an empty
// pool. Individual server failures are recorded, not returned.
func (m *Manager) Sync(ctx context.Context) error {
	configs, hash, err := LoadServerConfigs(m.store.MCPServersPath())
	if err != nil {
		return fmt.Errorf("read mcp-servers.json: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if hash == m.configHash {
		return nil
	}

	m.stopLocked()
	m.configHash = hash

	for _, cfg := range configs {
		state := m.spawn(ctx, cfg)
		m.servers[cfg.Name] = state
		if errMsg := state.lastErr(); errMsg != "" {
			slog.Warn("mcp server failed", "server", cfg.Name, "error", errMsg)
			continue
		}
		slog.Info("mcp server connected", "server", cfg.Name, "tools", len(state.toolNames))
	}
	return nil
}

// spawn starts one server: child process, handshake, tool discovery,
// registration. Failures return a state carrying the error.
func (m *Manager) spawn(ctx context.Context, cfg ServerConfig) *serverState {
	state := &serverState{config: cfg}

	client, err := mcpclient.NewStdioMCPClient(cfg.Command, cfg.EnvSlice(), cfg.Args...)
	if err != nil {
		state.setErr(fmt.Sprintf("spawn: %v", err))
		return state
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "isocode",
		Version: clientVersion,
	}
	if _, err := client.Initialize(hctx, initReq); err != nil {
		_ = client.Close()
		state.setErr(fmt.Sprintf("initialize: %v", err))
		return state
	}

	listed, err := client.ListTools(hctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		state.setErr(fmt.Sprintf("list tools: %v", err))
		return state
	}

	state.client = client
	for _, mcpTool := range listed.Tools {
		bridge := newBridgeTool(cfg.Name, mcpTool, client, state)
		if _, exists := m.registry.Get(bridge.Name()); exists {
			slog.Warn("mcp tool name collision, skipped", "server", cfg.Name, "tool", bridge.Name())
			continue
		}
		m.registry.Register(bridge)
		state.toolNames = append(state.toolNames, bridge.Name())
	}

	pctx, pcancel := context.WithCancel(context.Background())
	state.cancel = pcancel
	go m.healthLoop(pctx, state)

	return state
}

// healthLoop pings the server periodically. A failed ping marks the
// server degraded so its tools fail fast; a later success clears it.
func (m *Manager) healthLoop(ctx context.Context, state *serverState) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := state.client.Ping(ctx); err != nil {
				state.setErr(fmt.Sprintf("health check: %v", err))
				slog.Warn("mcp server unhealthy", "server", state.config.Name, "error", err)
			} else {
				state.setErr("")
			}
		}
	}
}

// Stop closes every server and unregisters its tools.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.configHash = ""
}

func (m *Manager) stopLocked() {
	for name, state := range m.servers {
		if state.cancel != nil {
			state.cancel()
		}
		if state.client != nil {
			if err := state.client.Close(); err != nil {
				slog.Debug("mcp close failed", "server", name, "error", err)
			}
		}
		m.registry.UnregisterPrefix(fmt.Sprintf("mcp_%s_", sanitizeName(name)))
	}
	m.servers = make(map[string]*serverState)
}

// Statuses reports every configured server for /mcp-status.
func (m *Manager) Statuses() []protocol.MCPServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]protocol.MCPServerStatus, 0, len(m.servers))
	for _, state := range m.servers {
		errMsg := state.lastErr()
		out = append(out, protocol.MCPServerStatus{
			Name:      state.config.Name,
			Command:   state.config.Command,
			Connected: errMsg == "",
			Tools:     append([]string(nil), state.toolNames...),
			Error:     errMsg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
