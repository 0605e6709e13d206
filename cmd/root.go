package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rushi32/IsoCode/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/rushi32/IsoCode/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "isocode",
	Short: "IsoCode — local agentic coding assistant runtime",
	Long:  "IsoCode runs a local HTTP+SSE server that hosts agent sessions for an editor extension: a ReAct loop over a local LLM provider, builtin and external tools, and conversation persistence under the workspace.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.isocode/user-config.json or $ISOCODE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("isocode %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("ISOCODE_CONFIG"); v != "" {
		return v
	}
	return config.DefaultPath()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
