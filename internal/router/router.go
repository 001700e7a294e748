package router

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// SafetyLevels is the slice of the safety engine the router consults when
// annotating a classified intent.
type SafetyLevels interface {
	GetToolSafetyLevel(name string) models.SafetyLevel
}

// Router performs symbolic intent-to-tool mapping and LLM output correction.
type Router struct {
	safety SafetyLevels
	logger *observability.Logger
}

// New builds a router. safety may be nil; levels then default to CAUTION.
func New(safety SafetyLevels, logger *observability.Logger) *Router {
	return &Router{safety: safety, logger: logger}
}

// categoryRule maps keywords to a coarse category, first hit wins.
type categoryRule struct {
	keywords []string
	category IntentCategory
}

var categoryRules = []categoryRule{
	{[]string{"debug", "diagnose", "troubleshoot", "why is", "what's wrong", "broken", "failing"}, CategoryDebug},
	{[]string{"workflow", "pipeline", "system check", "security audit", "full check"}, CategoryWorkflow},
	{[]string{"delete", "remove", "drop", "uninstall", "clear "}, CategoryDelete},
	{[]string{"create", "add ", "make ", "new ", "generate", "write "}, CategoryCreate},
	{[]string{"update", "modify", "change", "edit", "set ", "rename", "turn "}, CategoryModify},
	{[]string{"analyze", "analyse", "review", "compare", "evaluate", "rank"}, CategoryAnalyze},
	{[]string{"run ", "execute", "restart", "start ", "stop ", "download", "install"}, CategoryCommand},
	{[]string{"what", "which", "show", "list", "get ", "how many", "status", "is the", "are the", "search", "find", "?"}, CategoryQuery},
}

// ClassifyIntent assigns a coarse category from keyword rules. It is
// deliberately cruder than the intent classifier; the orchestrator uses it
// for workflow detection and clarification prompts.
func (r *Router) ClassifyIntent(text string) ClassifiedIntent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return ClassifiedIntent{Category: CategoryUnknown, SafetyLevel: models.SafetyCaution}
	}

	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				ci := ClassifiedIntent{
					Category:   rule.category,
					Confidence: 0.7,
					Reasoning:  fmt.Sprintf("keyword %q", strings.TrimSpace(kw)),
				}
				ci.SafetyLevel = categoryLevel(rule.category)
				if tool := suggestTool(normalized); tool != "" {
					ci.ToolSuggestion = tool
					if r.safety != nil {
						ci.SafetyLevel = r.safety.GetToolSafetyLevel(tool)
					}
				}
				ci.RequiresConfirmation = ci.SafetyLevel >= models.SafetyRestricted
				return ci
			}
		}
	}
	return ClassifiedIntent{Category: CategoryUnknown, Confidence: 0.2, SafetyLevel: models.SafetyCaution}
}

// suggestTool consults the keyword table without an availability filter.
func suggestTool(normalized string) string {
	for _, route := range toolRoutes {
		for _, kw := range route.keywords {
			if strings.Contains(normalized, kw) {
				return route.tool
			}
		}
	}
	return ""
}

func categoryLevel(c IntentCategory) models.SafetyLevel {
	switch c {
	case CategoryQuery, CategoryAnalyze:
		return models.SafetySafe
	case CategoryDelete:
		return models.SafetyRestricted
	case CategoryCommand, CategoryWorkflow:
		return models.SafetyRestricted
	default:
		return models.SafetyCaution
	}
}

// ValidateJSON extracts a JSON object from raw LLM text, fenced or not.
func (r *Router) ValidateJSON(text string) (map[string]any, bool) {
	return intent.ExtractJSON(text)
}

// ValidateToolCall checks an LLM-proposed call against the registry and
// repairs a near-miss name via two-way substring matching. The returned
// corrections describe every change made.
func (r *Router) ValidateToolCall(call models.ToolCall, available []string) (models.ToolCall, []string, error) {
	var corrections []string

	name := strings.ToLower(strings.TrimSpace(call.Name))
	if name == "" {
		return call, nil, &models.Error{Kind: models.ErrBadRequest, Msg: "tool call has no name"}
	}
	if name != call.Name {
		corrections = append(corrections, fmt.Sprintf("normalized tool name %q to %q", call.Name, name))
	}

	matched := ""
	for _, t := range available {
		if t == name {
			matched = t
			break
		}
	}
	if matched == "" {
		matched = fuzzyTool(name, available)
		if matched != "" {
			corrections = append(corrections, fmt.Sprintf("fuzzy-matched tool %q to %q", name, matched))
		}
	}
	if matched == "" {
		return call, corrections, &models.Error{
			Kind: models.ErrBadRequest,
			Msg:  fmt.Sprintf("unknown tool %q", name),
			Hint: "the tool name did not match any registered tool",
		}
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
		corrections = append(corrections, "defaulted missing arguments to {}")
	} else {
		var m map[string]any
		if err := json.Unmarshal(args, &m); err != nil {
			return call, corrections, &models.Error{
				Kind: models.ErrBadRequest,
				Msg:  fmt.Sprintf("tool %q arguments are not an object", matched),
				Err:  err,
			}
		}
	}

	out := call
	out.Name = matched
	out.Arguments = args
	return out, corrections, nil
}

// fuzzyTool returns the best two-way substring match, preferring the longest
// overlap so "execute" resolves to execute_command over execute_workflow
// only when unambiguous by length.
func fuzzyTool(name string, available []string) string {
	type candidate struct {
		tool  string
		score int
	}
	var candidates []candidate
	for _, t := range available {
		if strings.Contains(t, name) || strings.Contains(name, t) {
			score := len(t)
			if len(name) < score {
				score = len(name)
			}
			candidates = append(candidates, candidate{t, score})
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].tool < candidates[j].tool
	})
	return candidates[0].tool
}

// toolRoute is one entry of the ordered keyword→tool table.
type toolRoute struct {
	keywords []string
	tool     string
	argRe    *regexp.Regexp
	argKey   string
}

// toolRoutes is ordered; the first contained keyword wins.
var toolRoutes = []toolRoute{
	{[]string{"run ", "execute "}, "execute_command", regexp.MustCompile(`(?:run|execute)\s+(.+)`), "command"},
	{[]string{"health"}, "check_health", nil, ""},
	{[]string{"alert"}, "get_alerts", nil, ""},
	{[]string{"metric"}, "get_metrics", nil, ""},
	{[]string{"log"}, "get_recent_logs", nil, ""},
	{[]string{"model status", "which model"}, "get_model_status", nil, ""},
	{[]string{"system status", "status"}, "get_system_status", nil, ""},
	{[]string{"light", "lamp"}, "control_light", nil, ""},
	{[]string{"ac ", "air con", "thermostat", "temperature"}, "control_climate", nil, ""},
	{[]string{"scene"}, "activate_scene", nil, ""},
	{[]string{"queue"}, "get_download_queue", nil, ""},
	{[]string{"download"}, "download_media", regexp.MustCompile(`download\s+(?:the\s+)?(.+)`), "query"},
	{[]string{"search", "find"}, "search_media", regexp.MustCompile(`(?:search|find)\s+(?:for\s+|me\s+)?(?:the\s+)?(.+)`), "query"},
	{[]string{"repo", "github"}, "list_repos", nil, ""},
	{[]string{"weather", "forecast"}, "get_weather", nil, ""},
	{[]string{"time"}, "get_time", nil, ""},
}

// intentTools maps a classified intent tag straight to a tool.
var intentTools = map[intent.Tag]string{
	intent.TagHomeLight:     "control_light",
	intent.TagHomeACStatus:  "control_climate",
	intent.TagHomeACSetMode: "control_climate",
	intent.TagHomeACSetTemp: "control_climate",
	intent.TagHomeScene:     "activate_scene",
	intent.TagHomeStatus:    "get_system_status",
	intent.TagMediaSearch:   "search_media",
	intent.TagMediaDownload: "download_media",
	intent.TagMediaQueue:    "get_download_queue",
	intent.TagSystemTime:    "get_time",
	intent.TagSystemWeather: "get_weather",
}

// RouteToTool selects a single tool for the request. The typed intent wins
// when it maps directly; otherwise the ordered keyword table is consulted.
// Arguments come from the intent parameters, then tool-specific regexes over
// the original text.
func (r *Router) RouteToTool(result intent.Result, text string, available []string) (string, json.RawMessage, bool) {
	availSet := make(map[string]bool, len(available))
	for _, t := range available {
		availSet[t] = true
	}

	if tool, ok := intentTools[result.Tag]; ok && availSet[tool] {
		args := result.Parameters
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			raw = json.RawMessage(`{}`)
		}
		return tool, raw, true
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, route := range toolRoutes {
		for _, kw := range route.keywords {
			if !strings.Contains(normalized, kw) {
				continue
			}
			if !availSet[route.tool] {
				continue
			}
			args := map[string]any{}
			if route.argRe != nil {
				if m := route.argRe.FindStringSubmatch(normalized); m != nil {
					args[route.argKey] = strings.TrimSpace(m[1])
				}
			}
			raw, err := json.Marshal(args)
			if err != nil {
				raw = json.RawMessage(`{}`)
			}
			return route.tool, raw, true
		}
	}
	return "", nil, false
}

// CorrectLLMOutput repairs an LLM response into either a validated tool call
// or a plain text reply. It never fails: unusable output is downgraded with
// a corrections note.
func (r *Router) CorrectLLMOutput(llmText string, result intent.Result, available []string) Correction {
	var corrections []string

	if obj, ok := r.ValidateJSON(llmText); ok {
		call := callFromObject(obj)
		if call != nil {
			validated, fixes, err := r.ValidateToolCall(*call, available)
			corrections = append(corrections, fixes...)
			if err == nil {
				return Correction{Valid: true, ToolCall: &validated, Corrections: corrections}
			}
			corrections = append(corrections, fmt.Sprintf("discarded tool call: %v", err))
		}
	}

	// No usable JSON; fall back to intent routing.
	if tool, args, ok := r.RouteToTool(result, llmText, available); ok {
		corrections = append(corrections, fmt.Sprintf("routed by intent %s to %s", result.Tag, tool))
		return Correction{
			Valid:       true,
			ToolCall:    &models.ToolCall{Name: tool, Arguments: args},
			Corrections: corrections,
		}
	}

	return Correction{Response: strings.TrimSpace(llmText), Corrections: corrections}
}

// callFromObject interprets a parsed JSON object as a tool call, accepting
// the common key variants models emit.
func callFromObject(obj map[string]any) *models.ToolCall {
	name, _ := obj["name"].(string)
	if name == "" {
		name, _ = obj["tool"].(string)
	}
	if name == "" {
		name, _ = obj["tool_name"].(string)
	}
	if name == "" {
		return nil
	}

	var args any = obj["arguments"]
	if args == nil {
		args = obj["parameters"]
	}
	raw := json.RawMessage(`{}`)
	if m, ok := args.(map[string]any); ok {
		if data, err := json.Marshal(m); err == nil {
			raw = data
		}
	}
	return &models.ToolCall{Name: name, Arguments: raw}
}
