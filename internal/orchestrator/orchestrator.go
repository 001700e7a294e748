// Package orchestrator is the glue layer: it owns conversations, sequences
// classification, routing, safety, execution, synthesis, and guards, and is
// the single place that converts typed errors into user-visible responses.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/internal/audit"
	"github.com/haasonsaas/relay/internal/guards"
	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/internal/llm"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/retry"
	"github.com/haasonsaas/relay/internal/router"
	"github.com/haasonsaas/relay/internal/safety"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/internal/workflow"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	// DefaultMaxConcurrent caps tool-executing requests system-wide.
	DefaultMaxConcurrent = 16

	// DefaultRequestTimeout bounds one whole request.
	DefaultRequestTimeout = 180 * time.Second

	workflowMaxConcurrent = 3
	clarifyThreshold      = 0.5
)

// confirmationRe matches the tokens that consume a stashed pending action.
var confirmationRe = regexp.MustCompile(`(?i)^\s*(yes|confirm|approve|do it)[.!]?\s*$`)

// IsConfirmation reports whether a message is a bare confirmation token.
func IsConfirmation(text string) bool {
	return confirmationRe.MatchString(text)
}

// ChatModel is the slice of the LLM adapter the orchestrator uses.
type ChatModel interface {
	Chat(ctx context.Context, messages []models.Message, opts llm.Options) (*llm.ChatResult, error)
}

// Dispatcher executes validated tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, call models.ToolCall) (*models.ToolResult, error)
}

// Config configures the orchestrator.
type Config struct {
	MaxConcurrent  int
	RequestTimeout time.Duration
	DefaultMode    llm.Mode

	// Retry overrides the transient-failure policy around tool dispatch.
	Retry retry.Config
}

// DefaultOrchestratorConfig returns the stock limits.
func DefaultOrchestratorConfig() Config {
	return Config{
		MaxConcurrent:  DefaultMaxConcurrent,
		RequestTimeout: DefaultRequestTimeout,
		DefaultMode:    llm.ModeGeneral,
	}
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Classifier *intent.Classifier
	Router     *router.Router
	Safety     *safety.Engine
	Workflows  *workflow.Engine
	Dispatcher Dispatcher
	Registry   *tools.Registry
	LLM        ChatModel
	Guards     *guards.Pipeline
	Approvals  *approval.Queue
	Store      *Store

	Audit   *audit.Logger
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Health pings the LLM backend before a retry; nil skips the ping.
	Health func(ctx context.Context) bool
}

// Orchestrator drives the per-request algorithm.
type Orchestrator struct {
	deps     Deps
	config   Config
	sem      chan struct{}
	retryCfg retry.Config
}

// New creates an orchestrator.
func New(deps Deps, config Config) *Orchestrator {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.DefaultMode == "" {
		config.DefaultMode = llm.ModeGeneral
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultConfig()
	}
	return &Orchestrator{
		deps:     deps,
		config:   config,
		sem:      make(chan struct{}, config.MaxConcurrent),
		retryCfg: config.Retry,
	}
}

// HandleChat processes one user turn and never returns a nil response.
func (o *Orchestrator) HandleChat(ctx context.Context, req models.ChatRequest) *models.ChatResponse {
	start := time.Now()
	mode := o.mode(req.Mode)

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return o.fail(req.ConversationID, mode, models.NewError(models.ErrBadRequest, "message is required"))
	}

	conv := o.deps.Store.GetOrCreate(req.ConversationID)
	ctx = context.WithValue(ctx, observability.ConversationIDKey, conv.ID)

	if o.deps.Tracer != nil {
		var span trace.Span
		ctx, span = o.deps.Tracer.TraceRequest(ctx, string(mode), conv.ID)
		defer span.End()
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.RequestTimeout)
	defer cancel()

	// Per-conversation FIFO: one request at a time per conversation.
	conv.Lock()
	defer conv.Unlock()

	// System-wide backpressure.
	if o.deps.Metrics != nil {
		o.deps.Metrics.QueueDepth.Inc()
	}
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		if o.deps.Metrics != nil {
			o.deps.Metrics.QueueDepth.Dec()
		}
		return o.fail(conv.ID, mode, models.NewError(models.ErrTimeout, "request timed out waiting for capacity"))
	}
	defer func() { <-o.sem }()
	if o.deps.Metrics != nil {
		o.deps.Metrics.QueueDepth.Dec()
	}

	o.deps.Store.Append(conv, models.Message{Role: models.RoleUser, Content: text})

	resp := o.process(ctx, conv, text, mode)

	status := "success"
	if !resp.Success {
		status = "error"
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RequestCounter.WithLabelValues(string(mode), status).Inc()
		o.deps.Metrics.RequestDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}
	if o.deps.Audit != nil {
		o.deps.Audit.Log(ctx, &audit.Event{
			Event:      audit.EventRequest,
			ConvID:     conv.ID,
			Allowed:    audit.Bool(resp.Success),
			DurationMS: time.Since(start).Milliseconds(),
			Details:    map[string]any{"mode": string(mode), "llm_used": resp.LLMUsed},
		})
	}

	o.deps.Store.Append(conv, models.Message{Role: models.RoleAssistant, Content: resp.Response})
	return resp
}

// process runs steps 2-8 of the request algorithm with the conversation lock
// held.
func (o *Orchestrator) process(ctx context.Context, conv *Conversation, text string, mode llm.Mode) *models.ChatResponse {
	// A pending action from the previous turn is consumed or dropped first.
	if conv.Pending != nil {
		pending := conv.Pending
		conv.Pending = nil
		if IsConfirmation(text) {
			return o.resumePending(ctx, conv, pending, mode)
		}
		if o.deps.Logger != nil {
			o.deps.Logger.Debug(ctx, "pending action dropped", "conversation_id", conv.ID, "tool", pending.Call.Name)
		}
	}

	cls := o.deps.Classifier.Classify(ctx, text, true)
	ri := o.deps.Router.ClassifyIntent(text)

	if cls.Confidence < clarifyThreshold && ri.Category == router.CategoryUnknown {
		return o.respond(conv, mode, clarificationPrompt(), false, "")
	}

	// Workflow templates win over single tools.
	if wf, ok := o.deps.Workflows.Match(string(ri.Category), text, cls.Parameters); ok {
		return o.runWorkflow(ctx, conv, wf, text, mode, safety.CheckContext{"conversation_id": conv.ID})
	}

	if name, args, ok := o.deps.Router.RouteToTool(cls, text, o.toolNames()); ok {
		call := models.ToolCall{ID: newCallID(), Name: name, Arguments: args}
		return o.executeGated(ctx, conv, call, text, mode, safety.CheckContext{"conversation_id": conv.ID})
	}

	// Free-form chat with tool-call extraction.
	return o.freeChat(ctx, conv, text, mode)
}

// resumePending re-checks and executes an action confirmed this turn.
func (o *Orchestrator) resumePending(ctx context.Context, conv *Conversation, pending *PendingDispatch, mode llm.Mode) *models.ChatResponse {
	checkCtx := safety.CheckContext{
		"conversation_id": conv.ID,
		"confirmed":       true,
	}
	if pending.RequiresApproval {
		tool := pending.Call.Name
		if tool == "" {
			tool = pending.Template
		}
		if o.deps.Approvals == nil || !o.deps.Approvals.IsApproved(ctx, tool, pending.ActionID) {
			conv.Pending = pending // keep waiting
			return o.respond(conv, mode,
				fmt.Sprintf("Action %s is still awaiting operator approval (id %s).", tool, pending.ActionID),
				false, pending.ActionID)
		}
		checkCtx["approved"] = true
	}

	if pending.Kind == PendingWorkflow {
		wf := o.deps.Workflows.Create(pending.Template, pending.Params)
		if wf == nil {
			return o.fail(conv.ID, mode, models.NewError(models.ErrBadRequest, "unknown workflow "+pending.Template))
		}
		// Back through the per-step gates with the confirmation (and any
		// consumed grant) in context.
		return o.runWorkflow(ctx, conv, wf, "", mode, checkCtx)
	}
	return o.executeGated(ctx, conv, pending.Call, "", mode, checkCtx)
}

// executeGated runs the safety gate and, when it passes, dispatch + synthesis.
func (o *Orchestrator) executeGated(ctx context.Context, conv *Conversation, call models.ToolCall, userInput string, mode llm.Mode, checkCtx safety.CheckContext) *models.ChatResponse {
	result := o.deps.Safety.CheckSafety(ctx, call.Name, call.Arguments, userInput, checkCtx)

	switch {
	case !result.Allowed:
		return o.blocked(conv.ID, mode, result)

	case result.RequiresApproval:
		actionID := ""
		if o.deps.Approvals != nil {
			actionID = o.deps.Approvals.Enqueue(ctx, call.Name, call.Arguments)
		}
		conv.Pending = &PendingDispatch{
			Kind:             PendingTool,
			Call:             call,
			ActionID:         actionID,
			RequiresApproval: true,
		}
		return o.respond(conv, mode, safety.ApprovalMessage(call.Name, call.Arguments, result, actionID), false, actionID)

	case result.RequiresConfirmation:
		conv.Pending = &PendingDispatch{Kind: PendingTool, Call: call}
		return o.respond(conv, mode, safety.ConfirmationMessage(call.Name, call.Arguments, result, ""), false, "")
	}

	toolResult, err := o.dispatchWithRetry(ctx, call)
	if err != nil {
		return o.fail(conv.ID, mode, err)
	}
	return o.synthesize(ctx, conv, mode, []models.ToolCall{call}, []models.ToolResult{*toolResult},
		fmt.Sprintf("Tool %s returned: %s", call.Name, toolResult.Content))
}

// dispatchWithRetry applies the transient-failure policy around dispatch.
func (o *Orchestrator) dispatchWithRetry(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	var toolResult *models.ToolResult
	result := retry.DoWithHealth(ctx, o.retryCfg, o.deps.Health, func() error {
		res, err := o.deps.Dispatcher.Dispatch(ctx, call)
		if err != nil {
			if !models.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		toolResult = res
		return nil
	})
	if result.Err != nil {
		return nil, result.Err
	}
	toolResult.Retries = result.Attempts - 1
	return toolResult, nil
}

// runWorkflow safety-checks a matched workflow's tools, then executes it.
// Gates mirror the single-tool path: a dangerous step enqueues an approval
// request, a restricted step asks for confirmation.
func (o *Orchestrator) runWorkflow(ctx context.Context, conv *Conversation, wf *workflow.Workflow, userInput string, mode llm.Mode, checkCtx safety.CheckContext) *models.ChatResponse {
	seen := map[string]bool{}
	for _, step := range wf.Steps {
		if seen[step.ToolName] {
			continue
		}
		seen[step.ToolName] = true
		args, _ := json.Marshal(step.Arguments)
		result := o.deps.Safety.CheckSafety(ctx, step.ToolName, args, userInput, checkCtx)

		switch {
		case !result.Allowed:
			return o.blocked(conv.ID, mode, result)

		case result.RequiresApproval:
			actionID := ""
			if o.deps.Approvals != nil {
				actionID = o.deps.Approvals.Enqueue(ctx, step.ToolName, args)
			}
			conv.Pending = &PendingDispatch{
				Kind:             PendingWorkflow,
				Template:         wf.Name,
				Params:           wf.Context,
				Call:             models.ToolCall{Name: step.ToolName, Arguments: args},
				ActionID:         actionID,
				RequiresApproval: true,
			}
			return o.respond(conv, mode, safety.ApprovalMessage(step.ToolName, args, result, actionID), false, actionID)

		case result.RequiresConfirmation:
			conv.Pending = &PendingDispatch{
				Kind:     PendingWorkflow,
				Template: wf.Name,
				Params:   wf.Context,
			}
			return o.respond(conv, mode,
				fmt.Sprintf("Workflow %s includes the restricted tool %s. Reply yes to run it.", wf.Name, step.ToolName),
				false, "")
		}
	}
	return o.runWorkflowChecked(ctx, conv, wf, mode)
}

// runWorkflowChecked executes a workflow that passed its gates.
func (o *Orchestrator) runWorkflowChecked(ctx context.Context, conv *Conversation, wf *workflow.Workflow, mode llm.Mode) *models.ChatResponse {
	done := o.deps.Workflows.Execute(ctx, wf, workflowMaxConcurrent)
	summary := done.Summarize()

	payload, err := json.Marshal(summary)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"status":%q}`, summary.Status))
	}
	return o.synthesize(ctx, conv, mode, nil, nil,
		fmt.Sprintf("Workflow %s finished with status %s. Results: %s", summary.Name, summary.Status, payload))
}

// freeChat lets the model answer directly, correcting any tool call it emits.
func (o *Orchestrator) freeChat(ctx context.Context, conv *Conversation, text string, mode llm.Mode) *models.ChatResponse {
	res, err := o.deps.LLM.Chat(ctx, conv.Messages, llm.Options{Mode: mode, Tools: o.toolCatalog()})
	if err != nil {
		if models.KindOf(err) == models.ErrLLMUnavailable {
			return o.respond(conv, mode, deterministicFallback(), false, "")
		}
		return o.fail(conv.ID, mode, err)
	}

	if res.ToolCall != nil {
		call, corrections, verr := o.deps.Router.ValidateToolCall(*res.ToolCall, o.toolNames())
		if verr == nil {
			if o.deps.Logger != nil && len(corrections) > 0 {
				o.deps.Logger.Debug(ctx, "tool call corrected", "corrections", strings.Join(corrections, "; "))
			}
			if call.ID == "" {
				call.ID = newCallID()
			}
			return o.executeGated(ctx, conv, call, text, mode, safety.CheckContext{"conversation_id": conv.ID})
		}
		if o.deps.Logger != nil {
			o.deps.Logger.Debug(ctx, "tool call rejected", "error", verr.Error())
		}
	}

	return o.finishDraft(ctx, conv, mode, res.Response, true, string(res.ModelUsed), nil, nil)
}

// synthesize produces the natural-language reply for tool or workflow output.
func (o *Orchestrator) synthesize(ctx context.Context, conv *Conversation, mode llm.Mode, calls []models.ToolCall, results []models.ToolResult, framing string) *models.ChatResponse {
	messages := append(append([]models.Message{}, conv.Messages...), models.Message{
		Role:    models.RoleSystem,
		Content: framing + "\nSummarise the result for the user in one or two sentences.",
	})

	res, err := o.deps.LLM.Chat(ctx, messages, llm.Options{Mode: mode})
	if err != nil {
		// Tool output stands on its own when the model is down.
		resp := o.finishDraft(ctx, conv, mode, framing, false, "", calls, results)
		return resp
	}
	return o.finishDraft(ctx, conv, mode, res.Response, true, string(res.ModelUsed), calls, results)
}

// finishDraft runs guards and the output safety check on a draft reply.
func (o *Orchestrator) finishDraft(ctx context.Context, conv *Conversation, mode llm.Mode, draft string, llmUsed bool, modelUsed string, calls []models.ToolCall, results []models.ToolResult) *models.ChatResponse {
	text := draft
	if o.deps.Guards != nil {
		out := o.deps.Guards.Run(ctx, text, guards.Options{})
		text = out.Text
	}

	toolName := ""
	if len(calls) > 0 {
		toolName = calls[0].Name
	}
	check := o.deps.Safety.ValidateOutput(ctx, text, toolName)
	if !check.Allowed {
		text = check.Message
	} else if check.ContainsPII {
		text = safety.RedactPII(text)
	}

	resp := o.respond(conv, mode, text, llmUsed, "")
	resp.ToolCalls = calls
	resp.ToolResults = results
	resp.ModelUsed = modelUsed
	return resp
}

// respond builds a success envelope.
func (o *Orchestrator) respond(conv *Conversation, mode llm.Mode, text string, llmUsed bool, actionID string) *models.ChatResponse {
	return &models.ChatResponse{
		Response:       text,
		ConversationID: conv.ID,
		Mode:           string(mode),
		LLMUsed:        llmUsed,
		Success:        true,
		ActionID:       actionID,
	}
}

// blocked renders a safety denial: success=false with the engine's full
// explanation as the reply text.
func (o *Orchestrator) blocked(convID string, mode llm.Mode, result models.SafetyCheckResult) *models.ChatResponse {
	kind := models.ErrForbidden
	for _, v := range result.Violations {
		if v.Type == models.ViolationRateLimit {
			kind = models.ErrRateLimited
			break
		}
	}
	resp := o.fail(convID, mode, models.NewError(kind, "blocked by safety policy"))
	if result.Message != "" {
		resp.Response = result.Message
	}
	return resp
}

// fail converts a typed error into the user-visible envelope.
func (o *Orchestrator) fail(convID string, mode llm.Mode, err error) *models.ChatResponse {
	msg := "Something went wrong handling that request."
	switch models.KindOf(err) {
	case models.ErrBadRequest:
		msg = "I couldn't parse that request."
	case models.ErrTimeout:
		msg = "That took too long and was cancelled."
	case models.ErrRateLimited:
		msg = "You're sending requests too quickly. Try again shortly."
	case models.ErrForbidden, models.ErrUnauthorized:
		msg = "That action isn't allowed."
	case models.ErrDependencyFailed:
		msg = "A downstream service failed. Try again in a moment."
	case models.ErrLLMUnavailable:
		msg = deterministicFallback()
	}
	return &models.ChatResponse{
		Response:       msg,
		ConversationID: convID,
		Mode:           string(mode),
		Success:        false,
		Error:          models.UserInfo(err),
	}
}

func (o *Orchestrator) mode(raw string) llm.Mode {
	switch llm.Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case llm.ModeMCP:
		return llm.ModeMCP
	case llm.ModeAI:
		return llm.ModeAI
	case llm.ModeDebug:
		return llm.ModeDebug
	case llm.ModeGeneral:
		return llm.ModeGeneral
	default:
		return o.config.DefaultMode
	}
}

func (o *Orchestrator) toolNames() []string {
	if o.deps.Registry == nil {
		return nil
	}
	return o.deps.Registry.Names()
}

func (o *Orchestrator) toolCatalog() []llm.ToolSummary {
	if o.deps.Registry == nil {
		return nil
	}
	list := o.deps.Registry.List()
	out := make([]llm.ToolSummary, 0, len(list))
	for _, t := range list {
		out = append(out, llm.ToolSummary{Name: t.Name(), Description: t.Description()})
	}
	return out
}

// Status reports the runtime snapshot for /chat/status and the
// get_system_status tool.
func (o *Orchestrator) Status(ctx context.Context) (map[string]any, error) {
	healthy := true
	if o.deps.Health != nil {
		healthy = o.deps.Health(ctx)
	}
	return map[string]any{
		"llm":                  healthy,
		"tools_available":      len(o.toolNames()),
		"conversations_active": o.deps.Store.Count(),
	}, nil
}

func clarificationPrompt() string {
	var b strings.Builder
	b.WriteString("I'm not sure what you're asking for. I can help with things like:\n")
	b.WriteString("- checking system health or status (\"is everything ok?\")\n")
	b.WriteString("- controlling lights, climate, and scenes (\"turn on the kitchen light\")\n")
	b.WriteString("- finding and downloading media (\"search for Dune\")\n")
	b.WriteString("- running diagnostics (\"debug the slow responses\")\n")
	b.WriteString("Could you rephrase?")
	return b.String()
}

func deterministicFallback() string {
	return "The language model is unavailable right now. I can still run tools and workflows deterministically: try a direct command like \"check health\" or \"show the download queue\"."
}

var callCounter atomic.Int64

func newCallID() string {
	return fmt.Sprintf("call-%d", callCounter.Add(1))
}
