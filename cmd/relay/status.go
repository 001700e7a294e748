package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/config"
)

// buildStatusCmd creates the "status" command that queries a running
// instance over its health endpoint.
func buildStatusCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the status of a running relay instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := config.Load(resolveConfigPath(configPath))
				if err != nil {
					return err
				}
				addr = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
			}
			return runStatus(cmd, addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Server base URL (overrides config, e.g. http://127.0.0.1:9201)")

	return cmd
}

func runStatus(cmd *cobra.Command, addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	out := cmd.OutOrStdout()

	resp, err := client.Get(addr + "/health")
	if err != nil {
		fmt.Fprintf(out, "relay is not reachable at %s\n", addr)
		return err
	}
	defer resp.Body.Close()

	var health struct {
		OK           bool            `json:"ok"`
		Status       string          `json:"status"`
		LatencyMS    float64         `json:"latency_ms"`
		MLModels     map[string]any  `json:"ml_models"`
		Integrations map[string]bool `json:"integrations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	fmt.Fprintf(out, "relay at %s\n", addr)
	fmt.Fprintf(out, "  status:  %s\n", health.Status)
	if len(health.MLModels) > 0 {
		fmt.Fprintln(out, "  models:")
		for name, info := range health.MLModels {
			fmt.Fprintf(out, "    %s: %v\n", name, info)
		}
	}
	if len(health.Integrations) > 0 {
		fmt.Fprintln(out, "  integrations:")
		for name, enabled := range health.Integrations {
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Fprintf(out, "    %s: %s\n", name, state)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}
