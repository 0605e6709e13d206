package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/delegate"
	"github.com/rushi32/IsoCode/internal/engine"
	"github.com/rushi32/IsoCode/internal/gateway"
	"github.com/rushi32/IsoCode/internal/httpapi"
	"github.com/rushi32/IsoCode/internal/index"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/sessions"
	"github.com/rushi32/IsoCode/internal/store"
	"github.com/rushi32/IsoCode/internal/tools"
)

// providerDialect maps the user-facing provider name onto the adapter
// dialect. "local" is the documented default and speaks the Ollama
// dialects.
func providerDialect(name string) string {
	switch name {
	case "", "local", llm.ProviderOllama:
		return llm.ProviderOllama
	case llm.ProviderOpenAI:
		return llm.ProviderOpenAI
	default:
		return llm.ProviderCustom
	}
}

func buildClient(s config.Settings) *llm.Client {
	return llm.New(llm.Config{
		Provider: providerDialect(s.Provider),
		APIBase:  s.APIBase,
		APIKey:   s.APIKey,
		Model:    s.Model,
	})
}

// resolveWorkspace picks the configured workspace or the current
// directory, made absolute and created if missing.
func resolveWorkspace(s config.Settings) string {
	ws := s.Workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(ws); err == nil {
		ws = abs
	}
	os.MkdirAll(ws, 0o755)
	return ws
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()
	workspace := resolveWorkspace(snap)

	// LLM adapter behind a swappable handle so /config provider changes
	// apply to the next call without restarting.
	handle := llm.NewHandle(buildClient(snap))

	st := store.New(workspace)
	cache := index.NewCache()
	defer cache.Close()

	registry := tools.NewRegistry()
	board := tools.NewTaskBoard()
	browser := tools.NewBrowser()
	defer browser.Close()

	tools.RegisterBuiltins(registry, tools.Deps{
		Store: st,
		Index: cache,
		LLM:   handle,
		VisionModel: func() string {
			return cfg.Snapshot().VisionModel
		},
		Board:   board,
		Browser: browser,
	})
	dispatcher := tools.NewDispatcher(registry, cfg, workspace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mcp.SetClientVersion(Version)
	mcpMgr := mcp.NewManager(st, registry)
	if err := mcpMgr.Sync(ctx); err != nil {
		slog.Warn("mcp sync failed", "error", err)
	}
	defer mcpMgr.Stop()

	mgr := sessions.NewManager(cache, func(agentPlus bool) string {
		return engine.RenderPrompt(registry, cfg.Snapshot().SystemPrompt, agentPlus)
	}, workspace)

	eng := engine.New(cfg, handle, dispatcher, mgr, board)
	eng.SetDelegator(delegate.NewPool(cfg, handle, eng.RunSubtask))

	// /config updates rebuild the adapter and re-sync external servers.
	onApply := func(s config.Settings) {
		handle.Swap(buildClient(s))
		if err := mcpMgr.Sync(context.Background()); err != nil {
			slog.Warn("mcp sync failed", "error", err)
		}
	}

	srv := gateway.NewServer(cfg, gateway.Handlers{
		Status:   httpapi.NewStatusHandler(cfg, Version),
		Provider: httpapi.NewProviderHandler(handle),
		Chat:     httpapi.NewChatHandler(cfg, handle, eng),
		Config:   httpapi.NewConfigHandler(cfg, cfgPath, st.MCPServersPath(), onApply),
		Sessions: httpapi.NewSessionsHandler(mgr, handle, st),
		Codebase: httpapi.NewCodebaseHandler(cache, workspace),
		MCP:      httpapi.NewMCPStatusHandler(mcpMgr),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	slog.Info("isocode starting",
		"version", Version,
		"provider", snap.Provider,
		"model", snap.Model,
		"workspace", workspace,
		"tools", len(registry.Names()),
	)

	if err := srv.Start(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	// Flush checkpoints for sessions that were mid-run so a later process
	// can resume them.
	eng.Shutdown()
	slog.Info("isocode stopped")
}
