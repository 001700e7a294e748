package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/relay/internal/audit"
	"github.com/haasonsaas/relay/internal/observability"
)

// DefaultMaxConcurrent bounds how many steps run in one wave.
const DefaultMaxConcurrent = 3

// ToolExecutor runs one tool call on behalf of a step. Injected by the
// orchestrator so the engine stays dispatch-agnostic.
type ToolExecutor func(ctx context.Context, toolName string, arguments map[string]any) (any, error)

// Engine creates and executes workflows from built-in templates.
type Engine struct {
	mu        sync.Mutex
	workflows map[string]*Workflow
	cancels   map[string]context.CancelFunc

	executor ToolExecutor
	logger   *observability.Logger
	metrics  *observability.Metrics
	auditLog *audit.Logger
	nowFunc  func() time.Time
}

// NewEngine builds an engine around the given executor.
func NewEngine(executor ToolExecutor, logger *observability.Logger, metrics *observability.Metrics, auditLog *audit.Logger) *Engine {
	return &Engine{
		workflows: make(map[string]*Workflow),
		cancels:   make(map[string]context.CancelFunc),
		executor:  executor,
		logger:    logger,
		metrics:   metrics,
		auditLog:  auditLog,
		nowFunc:   time.Now,
	}
}

// Create instantiates a workflow from a template, or nil when the template
// is unknown.
func (e *Engine) Create(templateName string, params map[string]any) *Workflow {
	builder, ok := templates[templateName]
	if !ok {
		return nil
	}
	w := builder(params)
	w.ID = uuid.NewString()
	w.Status = StatusPending
	w.CreatedAt = e.nowFunc()
	if w.Context == nil {
		w.Context = map[string]any{}
	}
	for k, v := range params {
		w.Context[k] = v
	}
	for _, s := range w.Steps {
		s.Status = StatusPending
	}

	e.mu.Lock()
	e.workflows[w.ID] = w
	e.mu.Unlock()
	return w
}

// Get returns a registered workflow by id.
func (e *Engine) Get(id string) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workflows[id]
	return w, ok
}

// Cancel stops a running workflow. Running steps observe the context and
// report failed; no further steps start.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Execute runs the workflow to completion in waves of at most maxConcurrent
// ready steps. Each wave is a barrier: the next wave forms only from steps
// whose dependencies completed in earlier waves.
func (e *Engine) Execute(ctx context.Context, w *Workflow, maxConcurrent int) *Workflow {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[w.ID] = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, w.ID)
		e.mu.Unlock()
	}()

	now := e.nowFunc()
	w.Status = StatusRunning
	w.StartedAt = &now
	e.log(ctx, w, "started")

	for !w.IsComplete() {
		ready := w.NextSteps()
		if len(ready) == 0 {
			if w.hasPending() {
				// Stuck DAG: surviving dependents of failed steps can
				// never become ready. Mark them skipped and fail the run.
				e.skipStranded(w)
				w.Status = StatusFailed
				break
			}
			break
		}
		if len(ready) > maxConcurrent {
			ready = ready[:maxConcurrent]
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, step := range ready {
			step := step
			g.Go(func() error {
				e.runStep(gctx, w, step)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			e.skipStranded(w)
			w.Status = StatusFailed
			break
		}
	}

	if w.Status != StatusFailed {
		w.Status = StatusCompleted
		for _, s := range w.Steps {
			if s.Status == StatusFailed {
				w.Status = StatusFailed
				break
			}
		}
	}
	done := e.nowFunc()
	w.CompletedAt = &done
	e.log(ctx, w, string(w.Status))
	return w
}

// runStep executes one step: condition gate, argument substitution, tool
// call, context mirroring.
func (e *Engine) runStep(ctx context.Context, w *Workflow, step *Step) {
	e.mu.Lock()
	condCtx := snapshot(w.Context)
	e.mu.Unlock()

	if !EvalCondition(step.Condition, condCtx) {
		e.setStatus(w, step, StatusSkipped)
		return
	}

	start := e.nowFunc()
	e.mu.Lock()
	step.Status = StatusRunning
	step.StartedAt = &start
	args := substituteArgs(step.Arguments, condCtx)
	e.mu.Unlock()

	result, err := e.executor(ctx, step.ToolName, args)

	end := e.nowFunc()
	e.mu.Lock()
	step.CompletedAt = &end
	step.DurationMS = end.Sub(start).Milliseconds()
	if err != nil {
		step.Status = StatusFailed
		step.Error = err.Error()
	} else {
		step.Status = StatusCompleted
		step.Result = result
		w.Context["step_"+step.ID+"_result"] = result
	}
	status := step.Status
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.WorkflowStepCounter.WithLabelValues(w.Name, string(status)).Inc()
	}
	if e.logger != nil {
		e.logger.Debug(ctx, "workflow step finished",
			"workflow", w.Name, "step", step.ID, "status", string(status), "duration_ms", step.DurationMS)
	}
}

// skipStranded marks pending steps with a non-completable dependency chain
// as skipped, recording which dependency failed.
func (e *Engine) skipStranded(w *Workflow) {
	for _, s := range w.Steps {
		if s.Status != StatusPending {
			continue
		}
		for _, dep := range s.Dependencies {
			d := w.step(dep)
			if d != nil && (d.Status == StatusFailed || d.Status == StatusSkipped) {
				s.Status = StatusSkipped
				s.Error = fmt.Sprintf("dependency %s failed", dep)
				break
			}
		}
		if s.Status == StatusPending {
			s.Status = StatusSkipped
			s.Error = "workflow aborted"
		}
	}
}

func (e *Engine) setStatus(w *Workflow, step *Step, status Status) {
	e.mu.Lock()
	step.Status = status
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.WorkflowStepCounter.WithLabelValues(w.Name, string(status)).Inc()
	}
}

func (e *Engine) log(ctx context.Context, w *Workflow, event string) {
	if e.auditLog != nil {
		e.auditLog.Log(ctx, &audit.Event{
			Event:   audit.EventWorkflow,
			Action:  event,
			Details: map[string]any{"workflow_id": w.ID, "name": w.Name},
		})
	}
	if e.logger != nil {
		e.logger.Info(ctx, "workflow "+event, "workflow", w.Name, "id", w.ID)
	}
}

func snapshot(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
