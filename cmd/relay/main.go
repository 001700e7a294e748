// Package main provides the CLI entry point for the relay control plane.
//
// Relay fronts a local LLM backend with intent classification, symbolic
// routing, a safety policy engine, and multi-step workflows, exposed over a
// small HTTP API.
//
// # Basic Usage
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// Check a running instance:
//
//	relay status
//
// Validate a configuration file without starting:
//
//	relay config validate --config relay.yaml
//
// # Environment Variables
//
//   - RELAY_CONFIG: Path to configuration file (default: relay.yaml)
//   - BACKEND_HOST / BACKEND_PORT: Bind address overrides
//   - LLAMA_CONTEXT / LLAMA_THREADS: Inference overrides
//   - GATEWAY_URL / USE_GATEWAY_PROXY: Backend proxy overrides
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/config"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay - local AI agent control plane",
		Long: `Relay fronts a local LLM backend with intent classification, symbolic
routing, a safety policy engine, and multi-step workflows.

The fast path answers without inference; the talker model handles chat and
the worker model handles tool calling. Every tool dispatch passes through
the safety engine, with confirmation and approval gates for risky actions.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}

// resolveConfigPath picks the config file: the flag wins, then RELAY_CONFIG,
// then relay.yaml if it exists, otherwise empty (built-in defaults).
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("RELAY_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("relay.yaml"); err == nil {
		return "relay.yaml"
	}
	return ""
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintln(out, "No config file found; built-in defaults are valid.")
			} else {
				fmt.Fprintf(out, "%s is valid.\n", path)
			}
			fmt.Fprintf(out, "  server:  %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Fprintf(out, "  backend: %s\n", cfg.LLM.BackendURL)
			fmt.Fprintf(out, "  data:    %s\n", cfg.DataDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}
