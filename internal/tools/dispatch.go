package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/relay/internal/audit"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// DefaultToolTimeout bounds a single tool execution.
const DefaultToolTimeout = 30 * time.Second

// Dispatcher funnels every tool execution through lookup, schema
// validation, timeout, metrics, tracing, and audit.
type Dispatcher struct {
	registry *Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	auditLog *audit.Logger
	timeout  time.Duration
}

// NewDispatcher wires a dispatcher. Observability handles may be nil.
func NewDispatcher(registry *Registry, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer, auditLog *audit.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		auditLog: auditLog,
		timeout:  DefaultToolTimeout,
	}
}

// Registry exposes the underlying registry for catalog building.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch executes one validated tool call.
func (d *Dispatcher) Dispatch(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		if d.auditLog != nil {
			d.auditLog.Log(ctx, &audit.Event{
				Event: audit.EventToolDenied,
				Tool:  call.Name,
				Error: "unknown tool",
			})
		}
		return nil, &models.Error{
			Kind: models.ErrUnauthorized,
			Msg:  fmt.Sprintf("tool %q is not registered", call.Name),
			Hint: "only registered tools can be executed",
		}
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := d.validate(call.Name, args); err != nil {
		return nil, err
	}

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.TraceToolCall(ctx, call.Name, tool.SafetyLevel().String())
		defer span.End()
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	result, err := execute(ctx, tool, call.Name, args)
	elapsed := time.Since(start)
	if err != nil && d.tracer != nil {
		d.tracer.RecordError(span, err)
	}

	status := "success"
	if err != nil || (result != nil && result.IsError) {
		status = "error"
	}

	if d.metrics != nil {
		d.metrics.ToolCallCounter.WithLabelValues(call.Name, status).Inc()
		d.metrics.ToolCallDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())
	}
	if d.auditLog != nil {
		convID, _ := ctx.Value(observability.ConversationIDKey).(string)
		d.auditLog.LogToolCompletion(ctx, call.Name, call.ID, status == "success", elapsed, convID)
	}
	if d.logger != nil {
		d.logger.Debug(ctx, "tool dispatched", "tool", call.Name, "status", status, "duration_ms", elapsed.Milliseconds())
	}

	if err != nil {
		if models.KindOf(err) == models.ErrInternal {
			return nil, err
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &models.Error{Kind: models.ErrTimeout, Msg: fmt.Sprintf("tool %s timed out", call.Name), Err: err}
		}
		return nil, &models.Error{Kind: models.ErrDependencyFailed, Msg: fmt.Sprintf("tool %s failed", call.Name), Err: err}
	}

	out := &models.ToolResult{
		ToolCallID: call.ID,
		DurationMS: elapsed.Milliseconds(),
	}
	if result != nil {
		out.Content = result.Content
		out.IsError = result.IsError
	}
	return out, nil
}

// execute runs the tool, converting a panic into a typed internal error.
// Workflow steps dispatch outside the HTTP recovery middleware, so a faulty
// tool must not take down the process.
func execute(ctx context.Context, tool Tool, name string, args json.RawMessage) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &models.Error{
				Kind: models.ErrInternal,
				Msg:  fmt.Sprintf("tool %s panicked", name),
				Hint: fmt.Sprint(r),
			}
		}
	}()
	return tool.Execute(ctx, args)
}

// validate checks arguments against the tool's compiled schema.
func (d *Dispatcher) validate(name string, args json.RawMessage) error {
	compiled, ok := d.registry.compiledSchema(name)
	if !ok {
		return nil
	}
	var value any
	dec := json.NewDecoder(strings.NewReader(string(args)))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return &models.Error{Kind: models.ErrBadRequest, Msg: fmt.Sprintf("tool %s: arguments are not valid JSON", name), Err: err}
	}
	if err := compiled.Validate(value); err != nil {
		return &models.Error{
			Kind: models.ErrBadRequest,
			Msg:  fmt.Sprintf("tool %s: invalid arguments", name),
			Hint: err.Error(),
		}
	}
	return nil
}
