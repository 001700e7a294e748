package safety

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/haasonsaas/relay/internal/audit"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/pkg/models"
)

// CheckContext carries per-request facts the engine evaluates: whether the
// user confirmed the action this turn, whether an approval grant was
// consumed, and anything a PRD requirement wants to inspect.
type CheckContext map[string]any

// Confirmed reports whether the context carries a confirmation token.
func (c CheckContext) Confirmed() bool {
	v, _ := c["confirmed"].(bool)
	return v
}

// Approved reports whether the context carries a consumed approval grant.
func (c CheckContext) Approved() bool {
	v, _ := c["approved"].(bool)
	return v
}

// PRDCheck is a pluggable predicate evaluated against the check context.
// Returning a non-nil violation records it; Blocked violations abort.
type PRDCheck struct {
	Name  string
	Check func(toolName string, level models.SafetyLevel, ctx CheckContext) *models.PolicyViolation
}

// Engine is the safety policy engine. All methods are safe for concurrent
// use; the pattern tables are immutable and the tool-level map is guarded.
type Engine struct {
	mu         sync.RWMutex
	toolLevels map[string]models.SafetyLevel
	limiter    *ratelimit.Limiter
	prdChecks  []PRDCheck
	auditLog   *audit.Logger
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Option configures the engine.
type Option func(*Engine)

// WithAudit attaches the audit logger; every check emits a record.
func WithAudit(l *audit.Logger) Option {
	return func(e *Engine) { e.auditLog = l }
}

// WithLogger attaches the structured logger.
func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPRDChecks installs additional PRD requirement predicates.
func WithPRDChecks(checks ...PRDCheck) Option {
	return func(e *Engine) { e.prdChecks = append(e.prdChecks, checks...) }
}

// NewEngine creates a safety engine with the given rate limiter.
func NewEngine(limiter *ratelimit.Limiter, opts ...Option) *Engine {
	e := &Engine{
		toolLevels: make(map[string]models.SafetyLevel),
		limiter:    limiter,
		prdChecks:  defaultPRDChecks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// defaultPRDChecks returns the built-in PRD requirements.
func defaultPRDChecks() []PRDCheck {
	return []PRDCheck{
		{
			Name: "dangerous-requires-approval",
			Check: func(tool string, level models.SafetyLevel, ctx CheckContext) *models.PolicyViolation {
				if level >= models.SafetyDangerous && !ctx.Approved() {
					return &models.PolicyViolation{
						Type:     models.ViolationPRDRequirement,
						Message:  "dangerous operations require an approval grant",
						Severity: models.SafetyDangerous,
					}
				}
				return nil
			},
		},
	}
}

// RegisterToolSafety assigns a default safety level to a tool name.
func (e *Engine) RegisterToolSafety(name string, level models.SafetyLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolLevels[name] = level
}

// GetToolSafetyLevel returns the registered level; unknown tools default to
// CAUTION.
func (e *Engine) GetToolSafetyLevel(name string) models.SafetyLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if level, ok := e.toolLevels[name]; ok {
		return level
	}
	return models.SafetyCaution
}

// CheckSafety is the pre-execution checkpoint. It scans the concatenation of
// tool name, arguments, and raw user input against the pattern tiers, applies
// the per-tool rate limit, and evaluates PRD requirements.
func (e *Engine) CheckSafety(ctx context.Context, toolName string, args json.RawMessage, userInput string, checkCtx CheckContext) models.SafetyCheckResult {
	if checkCtx == nil {
		checkCtx = CheckContext{}
	}

	combined := toolName + " " + string(args) + " " + userInput
	result := models.SafetyCheckResult{
		Allowed: true,
		Level:   e.GetToolSafetyLevel(toolName),
	}

	// Tier 1: forbidden patterns abort immediately.
	for _, p := range forbiddenPatterns {
		if p.re.MatchString(combined) {
			result.Allowed = false
			result.Level = models.SafetyForbidden
			result.Violations = append(result.Violations, models.PolicyViolation{
				Type:     models.ViolationForbiddenCommand,
				Message:  p.desc,
				Severity: models.SafetyForbidden,
				Blocked:  true,
			})
			result.Message = "Blocked: " + p.desc
			e.record(ctx, audit.EventSafetyCheck, toolName, result, checkCtx)
			return result
		}
	}

	// Tier 2: dangerous patterns escalate but do not block.
	for _, p := range dangerousPatterns {
		if p.re.MatchString(combined) {
			if result.Level < models.SafetyDangerous {
				result.Level = models.SafetyDangerous
			}
			result.Violations = append(result.Violations, models.PolicyViolation{
				Type:     models.ViolationDangerousOperation,
				Message:  p.desc,
				Severity: models.SafetyDangerous,
			})
		}
	}

	// Tier 3: caution patterns are informational.
	for _, p := range cautionPatterns {
		if p.re.MatchString(combined) {
			if result.Level < models.SafetyCaution {
				result.Level = models.SafetyCaution
			}
			result.Violations = append(result.Violations, models.PolicyViolation{
				Type:     models.ViolationDangerousOperation,
				Message:  p.desc,
				Severity: models.SafetyCaution,
			})
		}
	}

	// Tier 4: PII in the input requires redaction on output.
	if has, kinds := ContainsPII(combined); has {
		result.ContainsPII = true
		result.Violations = append(result.Violations, models.PolicyViolation{
			Type:     models.ViolationPIIExposure,
			Message:  "input contains " + strings.Join(kinds, ", "),
			Severity: models.SafetyCaution,
			Context:  map[string]any{"kinds": kinds},
		})
	}

	// Tier 5: sliding-window rate limit.
	if e.limiter != nil && !e.limiter.Allow(toolName) {
		retryAfter := e.limiter.RetryAfter(toolName)
		result.Allowed = false
		result.Violations = append(result.Violations, models.PolicyViolation{
			Type:     models.ViolationRateLimit,
			Message:  "rate limit exceeded for " + toolName,
			Severity: models.SafetyRestricted,
			Blocked:  true,
			Context:  map[string]any{"retry_after_seconds": retryAfter.Seconds()},
		})
		result.Message = "Rate limit exceeded; retry later."
		e.record(ctx, audit.EventSafetyCheck, toolName, result, checkCtx)
		return result
	}

	// Confirmation and approval gates by effective level.
	if result.Level >= models.SafetyRestricted && !checkCtx.Confirmed() {
		result.RequiresConfirmation = true
		result.Violations = append(result.Violations, models.PolicyViolation{
			Type:     models.ViolationMissingConfirmation,
			Message:  "restricted operation requires confirmation",
			Severity: models.SafetyRestricted,
		})
	}
	if result.Level >= models.SafetyDangerous && !checkCtx.Approved() {
		result.RequiresApproval = true
	}

	// Tier 6: PRD requirements.
	for _, prd := range e.prdChecks {
		if prd.Check == nil {
			continue
		}
		if v := prd.Check(toolName, result.Level, checkCtx); v != nil {
			result.Violations = append(result.Violations, *v)
			if v.Blocked {
				result.Allowed = false
				result.Message = "Blocked by requirement " + prd.Name + ": " + v.Message
			}
		}
	}

	if result.Message == "" && !result.Allowed {
		result.Message = "Blocked by safety policy."
	}

	e.record(ctx, audit.EventSafetyCheck, toolName, result, checkCtx)
	return result
}

// ValidateOutput is the post-generation checkpoint. Only forbidden and PII
// patterns apply; PII yields a non-blocking warning plus a redaction action.
func (e *Engine) ValidateOutput(ctx context.Context, output, toolName string) models.SafetyCheckResult {
	result := models.SafetyCheckResult{
		Allowed: true,
		Level:   models.SafetySafe,
	}

	for _, p := range forbiddenPatterns {
		if p.re.MatchString(output) {
			result.Allowed = false
			result.Level = models.SafetyForbidden
			result.Violations = append(result.Violations, models.PolicyViolation{
				Type:     models.ViolationForbiddenCommand,
				Message:  p.desc,
				Severity: models.SafetyForbidden,
				Blocked:  true,
			})
			result.Message = "Output blocked: " + p.desc
			break
		}
	}

	if has, kinds := ContainsPII(output); has {
		result.ContainsPII = true
		if result.Level < models.SafetyCaution {
			result.Level = models.SafetyCaution
		}
		result.Violations = append(result.Violations, models.PolicyViolation{
			Type:     models.ViolationPIIExposure,
			Message:  "output contains " + strings.Join(kinds, ", "),
			Severity: models.SafetyCaution,
		})
	}

	e.record(ctx, audit.EventOutputCheck, toolName, result, nil)
	return result
}

// record emits the audit entry and metrics for a check.
func (e *Engine) record(ctx context.Context, event audit.EventType, toolName string, result models.SafetyCheckResult, checkCtx CheckContext) {
	if e.metrics != nil {
		allowed := "true"
		if !result.Allowed {
			allowed = "false"
		}
		e.metrics.SafetyCheckCounter.WithLabelValues(result.Level.String(), allowed).Inc()
	}
	if e.auditLog == nil {
		return
	}
	msgs := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		msgs = append(msgs, string(v.Type)+": "+v.Message)
	}
	convID, _ := checkCtx["conversation_id"].(string)
	e.auditLog.Log(ctx, &audit.Event{
		Event:          event,
		Tool:           toolName,
		Allowed:        audit.Bool(result.Allowed),
		Level:          result.Level.String(),
		ViolationCount: len(msgs),
		Violations:     msgs,
		ConvID:         convID,
	})
}
