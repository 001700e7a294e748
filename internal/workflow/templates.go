package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// templateBuilder constructs a fresh workflow for a template.
type templateBuilder func(params map[string]any) *Workflow

// templates is the built-in catalogue. Each builder is pure: same params,
// same step graph.
var templates = map[string]templateBuilder{
	"diagnose":          buildDiagnose,
	"system_check":      buildSystemCheck,
	"security_audit":    buildSecurityAudit,
	"debug":             buildDebug,
	"generate_validate": buildGenerateValidate,
	"analyze":           buildAnalyze,
}

// ListTemplates returns the template names, sorted.
func ListTemplates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildSystemCheck(map[string]any) *Workflow {
	return &Workflow{
		Name:        "system_check",
		Description: "Full health sweep: services, models, metrics, alerts",
		Steps: []*Step{
			{ID: "check_health", Name: "Check service health", ToolName: "check_health"},
			{ID: "get_model_status", Name: "Check model availability", ToolName: "get_model_status", Dependencies: []string{"check_health"}},
			{ID: "get_metrics", Name: "Collect metrics", ToolName: "get_metrics", Dependencies: []string{"check_health"}},
			{ID: "get_alerts", Name: "Collect active alerts", ToolName: "get_alerts", Dependencies: []string{"get_metrics"}},
		},
	}
}

func buildDiagnose(params map[string]any) *Workflow {
	target, _ := params["target"].(string)
	return &Workflow{
		Name:        "diagnose",
		Description: fmt.Sprintf("Diagnose %s: health, logs, metrics, summary", orAll(target)),
		Steps: []*Step{
			{ID: "health", Name: "Check health", ToolName: "check_health"},
			{ID: "logs", Name: "Pull recent logs", ToolName: "get_recent_logs", Arguments: map[string]any{"service": "$target"}, Dependencies: []string{"health"}},
			{ID: "metrics", Name: "Pull metrics", ToolName: "get_metrics", Dependencies: []string{"health"}},
			{ID: "alerts", Name: "Pull alerts", ToolName: "get_alerts", Dependencies: []string{"metrics"}},
		},
	}
}

func buildSecurityAudit(map[string]any) *Workflow {
	return &Workflow{
		Name:        "security_audit",
		Description: "Audit-log review plus alert and status sweep",
		Steps: []*Step{
			{ID: "status", Name: "System status", ToolName: "get_system_status"},
			{ID: "logs", Name: "Scan security logs", ToolName: "search_logs", Arguments: map[string]any{"query": "denied OR forbidden OR violation"}, Dependencies: []string{"status"}},
			{ID: "alerts", Name: "Active alerts", ToolName: "get_alerts", Dependencies: []string{"status"}},
		},
	}
}

func buildDebug(params map[string]any) *Workflow {
	target, _ := params["target"].(string)
	return &Workflow{
		Name:        "debug",
		Description: fmt.Sprintf("Debug %s: logs then traces then metrics", orAll(target)),
		Steps: []*Step{
			{ID: "logs", Name: "Recent error logs", ToolName: "get_recent_logs", Arguments: map[string]any{"service": "$target", "level": "error"}},
			{ID: "traces", Name: "Query traces", ToolName: "query_traces", Arguments: map[string]any{"service": "$target"}, Dependencies: []string{"logs"}},
			{ID: "metrics", Name: "Pull metrics", ToolName: "get_metrics", Dependencies: []string{"logs"}},
		},
	}
}

func buildGenerateValidate(params map[string]any) *Workflow {
	prompt, _ := params["prompt"].(string)
	return &Workflow{
		Name:        "generate_validate",
		Description: "Generate with the worker model, then guard-check the result",
		Steps: []*Step{
			{ID: "generate", Name: "Generate", ToolName: "generate_text", Arguments: map[string]any{"prompt": prompt, "force_worker": true}},
			{ID: "validate", Name: "Validate output", ToolName: "check_guards", Arguments: map[string]any{"text": "$step_generate_result"}, Dependencies: []string{"generate"}},
		},
	}
}

func buildAnalyze(params map[string]any) *Workflow {
	query, _ := params["query"].(string)
	return &Workflow{
		Name:        "analyze",
		Description: "Rank context then synthesise an analysis",
		Steps: []*Step{
			{ID: "rank", Name: "Rank candidates", ToolName: "semantic_rank", Arguments: map[string]any{"query": query}},
			{ID: "metrics", Name: "Pull metrics", ToolName: "get_metrics"},
			{ID: "synthesize", Name: "Synthesise analysis", ToolName: "generate_text", Arguments: map[string]any{"prompt": query, "force_worker": true}, Dependencies: []string{"rank", "metrics"}},
		},
	}
}

func orAll(target string) string {
	if target == "" {
		return "all services"
	}
	return target
}

// detectRule maps trigger keywords to a template.
type detectRule struct {
	keywords []string
	template string
}

var detectRules = []detectRule{
	{[]string{"security audit", "audit the", "security sweep"}, "security_audit"},
	{[]string{"system check", "full check", "check everything"}, "system_check"},
	{[]string{"debug", "stack trace", "why is it failing"}, "debug"},
	{[]string{"diagnose", "troubleshoot", "what's wrong"}, "diagnose"},
	{[]string{"generate and validate", "generate then check"}, "generate_validate"},
	{[]string{"analyze", "analyse", "deep dive"}, "analyze"},
}

// Detect returns the template a request should trigger, or "".
func Detect(category, text string) string {
	normalized := strings.ToLower(text)
	for _, rule := range detectRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				return rule.template
			}
		}
	}
	// A bare workflow-category request defaults to the health sweep.
	if category == "workflow" {
		return "system_check"
	}
	return ""
}

// Match is the orchestrator convenience: detect, create, summarise.
func (e *Engine) Match(category, text string, params map[string]any) (*Workflow, bool) {
	name := Detect(category, text)
	if name == "" {
		return nil, false
	}
	w := e.Create(name, params)
	if w == nil {
		return nil, false
	}
	return w, true
}
