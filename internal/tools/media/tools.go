package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// Tools returns the media tools backed by one client.
func Tools(client *Client) []tools.Tool {
	return []tools.Tool{
		&SearchTool{client: client},
		&DownloadTool{client: client},
		&QueueTool{client: client},
	}
}

func objectSchema(props map[string]any, required ...string) json.RawMessage {
	if required == nil {
		required = []string{}
	}
	payload, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// SearchTool looks titles up across movie and series backends.
type SearchTool struct {
	client *Client
}

func (t *SearchTool) Name() string { return "search_media" }

func (t *SearchTool) Description() string {
	return "Search the media library backends for a movie or series title."
}

func (t *SearchTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string"},
		"kind": map[string]any{
			"type": "string",
			"enum": []string{"movie", "series", "any"},
		},
	}, "query")
}

func (t *SearchTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("media backends not configured"), nil
	}
	var input struct {
		Query string `json:"query"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tools.ErrorResult("query is required"), nil
	}

	items, err := t.search(ctx, query, strings.ToLower(input.Kind))
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"query": query, "results": items, "total": len(items)}), nil
}

func (t *SearchTool) search(ctx context.Context, query, kind string) ([]Item, error) {
	var items []Item
	if kind == "movie" || kind == "" || kind == "any" {
		movies, err := t.client.SearchMovies(ctx, query)
		if err != nil && kind == "movie" {
			return nil, err
		}
		items = append(items, movies...)
	}
	if kind == "series" || kind == "" || kind == "any" {
		series, err := t.client.SearchSeries(ctx, query)
		if err != nil && kind == "series" {
			return nil, err
		}
		items = append(items, series...)
	}
	return items, nil
}

// DownloadTool searches for a title and submits the best match for download.
// Restricted: the safety engine requires confirmation first, and the
// client's tracking-only mode turns the add into a no-op acknowledgment.
type DownloadTool struct {
	client *Client
}

func (t *DownloadTool) Name() string { return "download_media" }

func (t *DownloadTool) Description() string {
	return "Download a movie or series: search, pick the best match, and submit it."
}

func (t *DownloadTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string"},
		"kind": map[string]any{
			"type": "string",
			"enum": []string{"movie", "series"},
		},
	}, "query")
}

func (t *DownloadTool) SafetyLevel() models.SafetyLevel { return models.SafetyRestricted }

func (t *DownloadTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("media backends not configured"), nil
	}
	var input struct {
		Query string `json:"query"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tools.ErrorResult("query is required"), nil
	}

	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	if kind == "" {
		kind = "movie"
	}

	var (
		items []Item
		err   error
	)
	switch kind {
	case "movie":
		items, err = t.client.SearchMovies(ctx, query)
	case "series":
		items, err = t.client.SearchSeries(ctx, query)
	default:
		return tools.ErrorResult(fmt.Sprintf("unsupported kind %q", input.Kind)), nil
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return tools.ErrorResult(fmt.Sprintf("no %s found for %q", kind, query)), nil
	}

	best := items[0]
	submitted, err := t.client.Add(ctx, best)
	if err != nil {
		return nil, err
	}

	status := "submitted"
	if !submitted {
		status = "tracked_only"
	}
	return tools.JSONResult(map[string]any{
		"title":     best.Title,
		"year":      best.Year,
		"kind":      best.Kind,
		"remote_id": best.RemoteID,
		"status":    status,
	}), nil
}

// QueueTool reports in-flight downloads.
type QueueTool struct {
	client *Client
}

func (t *QueueTool) Name() string { return "get_download_queue" }

func (t *QueueTool) Description() string {
	return "List downloads currently in the queue with progress and time remaining."
}

func (t *QueueTool) Schema() json.RawMessage { return objectSchema(map[string]any{}) }

func (t *QueueTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *QueueTool) Execute(ctx context.Context, _ json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("media backends not configured"), nil
	}
	entries, err := t.client.Queue(ctx)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"queue": entries, "count": len(entries)}), nil
}
