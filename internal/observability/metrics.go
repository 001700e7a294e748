package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Request flow through the chat pipeline
//   - LLM inference performance per model tier (talker/worker)
//   - Tool execution patterns and latencies
//   - Safety decisions and approval activity
//   - Active conversation counts and queue depth for capacity planning
type Metrics struct {
	// RequestCounter counts chat requests.
	// Labels: mode, status (success|error)
	RequestCounter *prometheus.CounterVec

	// RequestDuration measures end-to-end request latency in seconds.
	// Labels: mode
	RequestDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error kind.
	// Labels: component (orchestrator|classifier|router|safety|workflow|llm|tool), error_type
	ErrorCounter *prometheus.CounterVec

	// ToolCallCounter counts tool dispatches.
	// Labels: tool_name, status (success|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolCallDuration *prometheus.HistogramVec

	// InferenceDuration measures LLM inference latency in seconds.
	// Labels: model_role (talker|worker), model
	InferenceDuration *prometheus.HistogramVec

	// InferenceCounter counts LLM calls.
	// Labels: model_role, model, status (success|error)
	InferenceCounter *prometheus.CounterVec

	// SafetyCheckCounter counts safety decisions.
	// Labels: level (safe..forbidden), allowed (true|false)
	SafetyCheckCounter *prometheus.CounterVec

	// ApprovalCounter counts approval-queue activity.
	// Labels: event (enqueued|approved|consumed|expired)
	ApprovalCounter *prometheus.CounterVec

	// ActiveConversations is a gauge of live conversations.
	ActiveConversations prometheus.Gauge

	// QueueDepth is a gauge of requests waiting on the concurrency semaphore.
	QueueDepth prometheus.Gauge

	// WorkflowStepCounter counts workflow step outcomes.
	// Labels: template, status (completed|failed|skipped)
	WorkflowStepCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup; metrics are registered
// with the default registry and served from /metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_requests_total",
				Help: "Total number of chat requests by mode and status",
			},
			[]string{"mode", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_request_duration_seconds",
				Help:    "End-to-end chat request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
			},
			[]string{"mode"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_tool_calls_total",
				Help: "Total number of tool dispatches by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_tool_call_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		InferenceDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_inference_duration_seconds",
				Help:    "Duration of LLM inference in seconds by model role",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model_role", "model"},
		),

		InferenceCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_inference_total",
				Help: "Total number of LLM calls by model role, model, and status",
			},
			[]string{"model_role", "model", "status"},
		),

		SafetyCheckCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_safety_checks_total",
				Help: "Total number of safety checks by level and outcome",
			},
			[]string{"level", "allowed"},
		),

		ApprovalCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_approvals_total",
				Help: "Approval queue activity by event",
			},
			[]string{"event"},
		),

		ActiveConversations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_active_sessions",
				Help: "Current number of live conversations",
			},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_queue_depth",
				Help: "Requests waiting on the concurrency semaphore",
			},
		),

		WorkflowStepCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_workflow_steps_total",
				Help: "Workflow step outcomes by template and status",
			},
			[]string{"template", "status"},
		),
	}
}
