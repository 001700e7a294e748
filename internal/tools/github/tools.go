package github

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// ReposTool lists the account's repositories.
type ReposTool struct {
	client *Client
}

func NewReposTool(client *Client) *ReposTool {
	return &ReposTool{client: client}
}

func (t *ReposTool) Name() string { return "list_repos" }

func (t *ReposTool) Description() string {
	return "List the account's GitHub repositories sorted by last update."
}

func (t *ReposTool) Schema() json.RawMessage {
	payload, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 200,
				"default": 30,
			},
		},
		"required": []string{},
	})
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ReposTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *ReposTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("github not configured"), nil
	}
	var input struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	repos, err := t.client.ListRepos(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"repos": repos, "total": len(repos)}), nil
}
