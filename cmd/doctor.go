package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/rushi32/IsoCode/internal/config"
	"github.com/rushi32/IsoCode/internal/llm"
	"github.com/rushi32/IsoCode/internal/mcp"
	"github.com/rushi32/IsoCode/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check provider, model, workspace, and tool-server health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("isocode doctor")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  OS:         %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:         %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:     %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	snap := cfg.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Provider reachability.
	client := buildClient(snap)
	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s (%s)\n", "Name:", snap.Provider, snap.APIBase)
	ok, _, healthErr := client.Health(ctx)
	if !ok {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", healthErr)
	} else {
		fmt.Printf("    %-12s reachable\n", "Status:")
	}

	// Configured model presence.
	fmt.Printf("    %-12s %s", "Model:", snap.Model)
	entries, listErr := client.ListModels(ctx)
	switch {
	case listErr != nil:
		fmt.Printf(" (listing failed: %s)\n", listErr)
	case hasModel(entries, snap.Model):
		fmt.Println(" (installed)")
	default:
		fmt.Printf(" (NOT INSTALLED — run `ollama pull %s`)\n", snap.Model)
	}
	if snap.VisionModel != "" {
		fmt.Printf("    %-12s %s", "Vision:", snap.VisionModel)
		if listErr == nil && !hasModel(entries, snap.VisionModel) {
			fmt.Println(" (NOT INSTALLED)")
		} else {
			fmt.Println()
		}
	}

	// Workspace writability.
	ws := resolveWorkspace(snap)
	fmt.Println()
	fmt.Printf("  Workspace:  %s", ws)
	if err := checkWritable(ws); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
	} else {
		fmt.Println(" (writable)")
	}

	// External tool server configuration.
	serversPath := store.New(ws).MCPServersPath()
	fmt.Printf("  MCP config: %s", serversPath)
	if _, statErr := os.Stat(serversPath); statErr != nil {
		fmt.Println(" (none configured)")
	} else if servers, _, loadErr := mcp.LoadServerConfigs(serversPath); loadErr != nil {
		fmt.Printf(" (INVALID: %s)\n", loadErr)
	} else {
		fmt.Printf(" (%d servers)\n", len(servers))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func hasModel(entries []llm.ModelEntry, model string) bool {
	for _, e := range entries {
		if e.ID == model {
			return true
		}
	}
	return false
}

func checkWritable(dir string) error {
	probe := filepath.Join(dir, ".isocode-doctor-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
