package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/internal/audit"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/guards"
	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/internal/llm"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/router"
	"github.com/haasonsaas/relay/internal/safety"
	"github.com/haasonsaas/relay/internal/server"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/internal/tools/github"
	"github.com/haasonsaas/relay/internal/tools/homeassistant"
	"github.com/haasonsaas/relay/internal/tools/media"
	"github.com/haasonsaas/relay/internal/tools/vector"
	"github.com/haasonsaas/relay/internal/workflow"
	"github.com/haasonsaas/relay/pkg/models"
)

// buildServeCmd creates the "serve" command that starts the control plane.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay control plane",
		Long: `Start the relay control plane with all configured integrations.

The server will:
1. Load configuration from the specified file (or relay.yaml)
2. Initialize the audit trail, rate limiter, and safety engine
3. Resolve the talker and worker model tiers
4. Register tools for every configured integration
5. Start the HTTP server for chat, operator endpoints, and metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  relay serve

  # Start with custom config
  relay serve --config /etc/relay/production.yaml

  # Start with debug logging
  relay serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}

// runServe implements the serve command: configuration loading, component
// wiring, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Structured logging, teed into an in-memory tail that serves the
	// log-inspection tools.
	tail := newLogTail(1000)
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    io.MultiWriter(os.Stderr, tail),
		AddSource: debug,
	})
	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "relay",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})

	logger.Info(ctx, "starting relay",
		"version", version,
		"commit", commit,
		"config", configPath,
		"backend", cfg.LLM.BackendURL,
	)

	// Audit trail. Every security-relevant decision lands here, redacted.
	auditCfg := audit.DefaultConfig(cfg.DataDir)
	auditCfg.Enabled = cfg.Audit.Enabled
	if cfg.Audit.MaxSizeMB > 0 {
		auditCfg.MaxSizeMB = cfg.Audit.MaxSizeMB
	}
	if cfg.Audit.MaxBackups > 0 {
		auditCfg.MaxBackups = cfg.Audit.MaxBackups
	}
	auditCfg.ISOTimestamps = cfg.Audit.ISOTimestamps
	auditLog, err := audit.NewLogger(auditCfg, safety.RedactPII)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}
	defer auditLog.Close()

	// Rate limiter and safety engine.
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.Enabled = cfg.Safety.RateLimit.Enabled
	if cfg.Safety.RateLimit.Window > 0 {
		limiterCfg.Window = cfg.Safety.RateLimit.Window
	}
	for tool, limit := range cfg.Safety.RateLimit.Limits {
		limiterCfg.Limits[tool] = limit
	}
	limiter := ratelimit.NewLimiter(limiterCfg)

	engine := safety.NewEngine(limiter,
		safety.WithAudit(auditLog),
		safety.WithLogger(logger),
		safety.WithMetrics(metrics),
	)

	// Approval queue with WAL persistence under the data dir.
	approvalCfg := approval.Config{
		TTL:     cfg.Approvals.TTL,
		Persist: cfg.Approvals.Persist,
		Path:    filepath.Join(cfg.DataDir, "approvals.jsonl"),
	}
	approvals, err := approval.NewQueue(approvalCfg, auditLog, metrics)
	if err != nil {
		return fmt.Errorf("init approval queue: %w", err)
	}
	defer approvals.Close()

	// Dual-model adapter and the rules+LLM intent classifier.
	adapter := llm.New(llm.Config{
		BackendURL:      cfg.LLM.BackendURL,
		GatewayURL:      cfg.Gateway.URL,
		UseGatewayProxy: cfg.Gateway.UseProxy,
		ModelDir:        cfg.LLM.ModelDir,
		TalkerModel:     cfg.LLM.TalkerModel,
		WorkerModel:     cfg.LLM.WorkerModel,
		NCtx:            cfg.LLM.NCtx,
		Threads:         cfg.LLM.Threads,
		WarmTalker:      cfg.LLM.WarmTalker,
	}, logger, metrics)

	classifier := intent.NewClassifier(adapter.IntentGenerator(), logger, metrics)

	// Output guards; also backs the check_guards tool.
	pipeline := guards.NewPipeline(guards.NewSchema(), logger)

	// Tool registry. Integrations register only when configured; the
	// integrations map feeds /health.
	integrations := map[string]bool{}
	rt := newRuntime(adapter, approvals, integrations, cfg.LLM.BackendURL)

	registry := tools.NewRegistry()
	register := func(ts ...tools.Tool) error {
		for _, t := range ts {
			if err := registry.Register(t); err != nil {
				return fmt.Errorf("register tool %s: %w", t.Name(), err)
			}
		}
		return nil
	}

	if err := register(coreTools(rt, adapter, tail, pipeline, tracer, &shellRunner{})...); err != nil {
		return err
	}

	if cfg.HomeAssistant.BaseURL != "" {
		haClient, err := homeassistant.NewClient(homeassistant.Config{
			BaseURL:    cfg.HomeAssistant.BaseURL,
			Token:      cfg.HomeAssistant.Token,
			GatewayURL: cfg.Gateway.URL,
			UseGateway: cfg.Gateway.UseProxy,
		})
		if err != nil {
			return fmt.Errorf("init homeassistant: %w", err)
		}
		if err := register(homeassistant.Tools(haClient)...); err != nil {
			return err
		}
		if err := register(tools.NewWeatherTool(&haWeather{
			client: haClient,
			entity: cfg.HomeAssistant.DefaultEntity,
		})); err != nil {
			return err
		}
		integrations["homeassistant"] = true
	}

	if cfg.Media.RadarrURL != "" || cfg.Media.SonarrURL != "" || cfg.Media.SabnzbdURL != "" {
		mediaClient, err := media.NewClient(media.Config{
			RadarrURL:        cfg.Media.RadarrURL,
			RadarrKey:        cfg.Media.RadarrKey,
			SonarrURL:        cfg.Media.SonarrURL,
			SonarrKey:        cfg.Media.SonarrKey,
			SabnzbdURL:       cfg.Media.SabnzbdURL,
			SabnzbdKey:       cfg.Media.SabnzbdKey,
			TrackingOnly:     cfg.Media.TrackingOnly,
			QualityProfileID: cfg.Media.QualityProfileID,
			RootFolder:       cfg.Media.RootFolder,
		})
		if err != nil {
			return fmt.Errorf("init media: %w", err)
		}
		if err := register(media.Tools(mediaClient)...); err != nil {
			return err
		}
		integrations["media"] = true
	}

	if cfg.GitHub.Token != "" {
		ghClient, err := github.NewClient(github.Config{
			BaseURL: cfg.GitHub.BaseURL,
			Token:   cfg.GitHub.Token,
		})
		if err != nil {
			return fmt.Errorf("init github: %w", err)
		}
		if err := register(github.NewReposTool(ghClient)); err != nil {
			return err
		}
		integrations["github"] = true
	}

	var embedder *vector.Embedder
	if cfg.Vector.BackendURL != "" {
		embedder, err = vector.NewEmbedder(vector.EmbedderConfig{
			BackendURL: cfg.Vector.BackendURL,
			Model:      cfg.Vector.EmbedModel,
		})
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}
		if err := register(vector.NewRankTool(embedder)); err != nil {
			return err
		}
		if cfg.Vector.StoreURL != "" {
			store, err := vector.NewStore(vector.StoreConfig{
				BaseURL:    cfg.Vector.StoreURL,
				Collection: cfg.Vector.Collection,
			})
			if err != nil {
				return fmt.Errorf("init vector store: %w", err)
			}
			if err := register(vector.NewKnowledgeSearchTool(embedder, store)); err != nil {
				return err
			}
		}
		integrations["vector"] = true
	}

	registry.Seal()

	// Safety levels come from the tools themselves.
	for _, t := range registry.List() {
		engine.RegisterToolSafety(t.Name(), t.SafetyLevel())
	}

	dispatcher := tools.NewDispatcher(registry, logger, metrics, tracer, auditLog)

	// Workflow engine executes steps through the dispatcher so every step
	// gets the same metrics and audit treatment as a direct tool call.
	workflows := workflow.NewEngine(func(ctx context.Context, toolName string, args map[string]any) (any, error) {
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		result, err := dispatcher.Dispatch(ctx, models.ToolCall{
			ID:        fmt.Sprintf("wf-%d", time.Now().UnixNano()),
			Name:      toolName,
			Arguments: payload,
		})
		if err != nil {
			return nil, err
		}
		if result.IsError {
			return nil, fmt.Errorf("%s", result.Content)
		}
		return result.Content, nil
	}, logger, metrics, auditLog)

	store := orchestrator.NewStore(orchestrator.StoreConfig{
		TTL:     cfg.Conversations.TTL,
		Persist: cfg.Conversations.Persist,
		Dir:     filepath.Join(cfg.DataDir, "conversations"),
	}, metrics)

	symRouter := router.New(engine, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Classifier: classifier,
		Router:     symRouter,
		Safety:     engine,
		Workflows:  workflows,
		Dispatcher: dispatcher,
		Registry:   registry,
		LLM:        adapter,
		Guards:     pipeline,
		Approvals:  approvals,
		Store:      store,
		Audit:      auditLog,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
		Health:     rt.backendHealthy,
	}, orchestrator.DefaultOrchestratorConfig())
	rt.setOrchestrator(orch)

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		HealthRateLimit: cfg.Server.HealthRateLimit,
	}, server.Deps{
		Orchestrator: orch,
		Dispatcher:   dispatcher,
		Safety:       engine,
		Guards:       pipeline,
		Approvals:    approvals,
		Workflows:    workflows,
		Limiter:      limiter,
		Models:       adapter,
		Roles:        server.DefaultRoles(engine),
		Embedder:     embedder,
		Logger:       logger,
		Metrics:      metrics,
		BackendURL:   cfg.LLM.BackendURL,
		Integrations: integrations,
		Version:      version,
	})

	// Background sweeps: expired approval grants and idle conversations.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n := approvals.ExpireSweep(sweepCtx); n > 0 {
			logger.Info(sweepCtx, "expired approval grants", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule approval sweep: %w", err)
	}
	if _, err := sweeper.AddFunc("@every 5m", func() {
		if n := store.EvictExpired(); n > 0 {
			logger.Info(context.Background(), "evicted idle conversations", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule conversation sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Create a context that cancels on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "relay started",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"tools", strings.Join(registry.Names(), ","),
	)

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	srv.Shutdown(shutdownCtx)
	if err := shutdownTracer(shutdownCtx); err != nil {
		slog.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info(context.Background(), "relay stopped gracefully")
	return nil
}

// coreTools is the always-registered tool set; every built-in workflow
// template must resolve against it (integrations add the rest).
func coreTools(rt *runtime, adapter *llm.Adapter, tail *logTail, pipeline *guards.Pipeline, tracer *observability.Tracer, runner tools.CommandRunner) []tools.Tool {
	return []tools.Tool{
		tools.NewTimeTool(),
		tools.NewHealthTool(rt),
		tools.NewSystemStatusTool(rt),
		tools.NewModelStatusTool(rt),
		tools.NewMetricsTool(rt),
		tools.NewAlertsTool(rt),
		tools.NewRecentLogsTool(tail),
		tools.NewSearchLogsTool(tail),
		tools.NewQueryTracesTool(&traceQuery{tracer: tracer}),
		tools.NewExecuteCommandTool(runner),
		tools.NewEmotionTool(&talkerGenerator{adapter: adapter}),
		tools.NewGenerateTool(&textGenerator{adapter: adapter}),
		tools.NewGuardCheckTool(pipeline),
	}
}

// haWeather serves get_weather from a Home Assistant weather entity.
type haWeather struct {
	client *homeassistant.Client
	entity string
}

func (w *haWeather) Current(ctx context.Context, location string) (map[string]any, error) {
	entity := strings.TrimSpace(w.entity)
	if entity == "" {
		entity = "weather.home"
	}
	if loc := strings.TrimSpace(strings.ToLower(location)); loc != "" {
		entity = "weather." + strings.ReplaceAll(loc, " ", "_")
	}

	raw, err := w.client.GetState(ctx, entity)
	if err != nil {
		return nil, err
	}
	var state struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("weather: decode state: %w", err)
	}

	out := map[string]any{"condition": state.State, "entity": entity}
	for _, key := range []string{"temperature", "humidity", "wind_speed", "pressure"} {
		if v, ok := state.Attributes[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}
