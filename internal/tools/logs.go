package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

const defaultLogLines = 50

// LogProvider serves log lines from whatever backend the process ships to.
type LogProvider interface {
	Recent(ctx context.Context, limit int) ([]string, error)
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// TraceSummary is one trace returned by query_traces.
type TraceSummary struct {
	TraceID    string `json:"trace_id"`
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// TraceProvider queries the tracing backend.
type TraceProvider interface {
	QueryTraces(ctx context.Context, service string, limit int) ([]TraceSummary, error)
}

// RecentLogsTool tails the process log.
type RecentLogsTool struct {
	provider LogProvider
}

func NewRecentLogsTool(provider LogProvider) *RecentLogsTool {
	return &RecentLogsTool{provider: provider}
}

func (t *RecentLogsTool) Name() string { return "get_recent_logs" }

func (t *RecentLogsTool) Description() string {
	return "Fetch the most recent log lines."
}

func (t *RecentLogsTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum number of lines to return.",
			"minimum":     1,
			"default":     defaultLogLines,
		},
	})
}

func (t *RecentLogsTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *RecentLogsTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("log provider unavailable"), nil
	}
	var input struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Limit <= 0 {
		input.Limit = defaultLogLines
	}
	lines, err := t.provider.Recent(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	return JSONResult(map[string]any{"lines": lines, "count": len(lines)}), nil
}

// SearchLogsTool greps the process log.
type SearchLogsTool struct {
	provider LogProvider
}

func NewSearchLogsTool(provider LogProvider) *SearchLogsTool {
	return &SearchLogsTool{provider: provider}
}

func (t *SearchLogsTool) Name() string { return "search_logs" }

func (t *SearchLogsTool) Description() string {
	return "Search log lines for a substring or pattern."
}

func (t *SearchLogsTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Substring or pattern to search for.",
		},
		"limit": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"default":     defaultLogLines,
		},
	}, "query")
}

func (t *SearchLogsTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *SearchLogsTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("log provider unavailable"), nil
	}
	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return ErrorResult("query is required"), nil
	}
	if input.Limit <= 0 {
		input.Limit = defaultLogLines
	}
	lines, err := t.provider.Search(ctx, query, input.Limit)
	if err != nil {
		return nil, err
	}
	return JSONResult(map[string]any{"query": query, "lines": lines, "count": len(lines)}), nil
}

// QueryTracesTool pulls recent traces for a service.
type QueryTracesTool struct {
	provider TraceProvider
}

func NewQueryTracesTool(provider TraceProvider) *QueryTracesTool {
	return &QueryTracesTool{provider: provider}
}

func (t *QueryTracesTool) Name() string { return "query_traces" }

func (t *QueryTracesTool) Description() string {
	return "Query recent distributed traces, optionally filtered by service."
}

func (t *QueryTracesTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"service": map[string]any{
			"type":        "string",
			"description": "Service name to filter on. Empty means all services.",
		},
		"limit": map[string]any{
			"type":    "integer",
			"minimum": 1,
			"default": 20,
		},
	})
}

func (t *QueryTracesTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *QueryTracesTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("trace provider unavailable"), nil
	}
	var input struct {
		Service string `json:"service"`
		Limit   int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Limit <= 0 {
		input.Limit = 20
	}
	traces, err := t.provider.QueryTraces(ctx, input.Service, input.Limit)
	if err != nil {
		return nil, err
	}
	return JSONResult(map[string]any{"traces": traces, "count": len(traces)}), nil
}
