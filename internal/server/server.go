// Package server is the HTTP surface of the control plane: chat, operator
// endpoints, the approval ledger, and Prometheus metrics, behind permissive
// CORS for the local dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/internal/guards"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/safety"
	"github.com/haasonsaas/relay/internal/tools/vector"
	"github.com/haasonsaas/relay/internal/workflow"
)

// Config configures the HTTP surface.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// HealthRateLimit caps /health calls per client per window; 0 disables.
	HealthRateLimit int `yaml:"health_rate_limit"`
}

// ModelStatus is the slice of the LLM adapter the health endpoint reads.
type ModelStatus interface {
	ModelInfo() map[string]any
	IsModelAvailable() bool
}

// Deps bundles the server's collaborators. Optional handles may be nil; the
// corresponding endpoints then report a dependency failure.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   orchestrator.Dispatcher
	Safety       *safety.Engine
	Guards       *guards.Pipeline
	Approvals    *approval.Queue
	Workflows    *workflow.Engine
	Limiter      *ratelimit.Limiter
	Models       ModelStatus
	Roles        *RoleSet
	Embedder     *vector.Embedder

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// BackendURL is reported by /chat/status.
	BackendURL string

	// Integrations reports which external backends are configured.
	Integrations map[string]bool

	Version string
}

// Server owns the HTTP listener.
type Server struct {
	config Config
	deps   Deps
	logger *observability.Logger

	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time

	// healthKeys remembers which per-client limiter keys were installed.
	healthKeys sync.Map
}

// New creates a server.
func New(config Config, deps Deps) *Server {
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.Port == 0 {
		config.Port = 9201
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    deps.Logger,
		startTime: time.Now(),
	}
}

// Handler builds the route table. Exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("POST /chat/send", s.handleChatSend)
	mux.HandleFunc("POST /chat/status", s.handleChatStatus)
	mux.HandleFunc("POST /command", s.handleCommand)

	mux.HandleFunc("POST /ai/intelligence/emotion/analyze", s.handleEmotion)
	mux.HandleFunc("POST /ai/intelligence/ultra/rank", s.handleRank)
	mux.HandleFunc("POST /embed", s.handleEmbed)
	mux.HandleFunc("GET /github/repos", s.handleGithubRepos)

	mux.HandleFunc("POST /roles/guards/check", s.handleGuardsCheck)
	mux.HandleFunc("GET /roles/active", s.handleRolesActive)
	mux.HandleFunc("POST /roles/evaluate", s.handleRolesEvaluate)

	mux.HandleFunc("GET /approvals", s.handleApprovalsList)
	mux.HandleFunc("POST /approvals", s.handleApprovalsEnqueue)
	mux.HandleFunc("POST /approvals/{id}/approve", s.handleApprovalApprove)

	mux.HandleFunc("GET /workflows/{id}/mermaid", s.handleWorkflowMermaid)

	return chain(mux, s.withRecovery, withRequestID, withCORS)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error(ctx, "http server error", "error", err)
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info(ctx, "http server listening", "addr", addr)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && s.logger != nil {
		s.logger.Warn(shutdownCtx, "http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}
