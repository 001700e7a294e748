package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// Candidate is one rankable text.
type Candidate struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// Ranked pairs a candidate with its similarity to the query.
type Ranked struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
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

// RankTool orders candidate texts by embedding similarity to a query.
type RankTool struct {
	embedder *Embedder
}

func NewRankTool(embedder *Embedder) *RankTool {
	return &RankTool{embedder: embedder}
}

func (t *RankTool) Name() string { return "semantic_rank" }

func (t *RankTool) Description() string {
	return "Rank candidate texts by semantic similarity to a query."
}

func (t *RankTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string"},
		"candidates": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"text": map[string]any{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
	}, "query", "candidates")
}

func (t *RankTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *RankTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.embedder == nil {
		return tools.ErrorResult("embedder unavailable"), nil
	}
	var input struct {
		Query      string      `json:"query"`
		Candidates []Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tools.ErrorResult("query is required"), nil
	}
	if len(input.Candidates) == 0 {
		return tools.ErrorResult("candidates are required"), nil
	}

	ranked, err := t.Rank(ctx, query, input.Candidates)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{
		"query":  query,
		"ranked": ranked,
		"total":  len(ranked),
		"model":  t.embedder.Model(),
	}), nil
}

// Rank embeds the query and every candidate and sorts by cosine similarity,
// highest first. Ties keep input order.
func (t *RankTool) Rank(ctx context.Context, query string, candidates []Candidate) ([]Ranked, error) {
	queryVec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		vec, err := t.embedder.Embed(ctx, c.Text)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, Ranked{Candidate: c, Score: Cosine(queryVec, vec)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

// KnowledgeSearchTool searches the vector store for notes similar to a query.
type KnowledgeSearchTool struct {
	embedder *Embedder
	store    *Store
}

func NewKnowledgeSearchTool(embedder *Embedder, store *Store) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{embedder: embedder, store: store}
}

func (t *KnowledgeSearchTool) Name() string { return "search_knowledge" }

func (t *KnowledgeSearchTool) Description() string {
	return "Search the knowledge base for entries similar to a query."
}

func (t *KnowledgeSearchTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string"},
		"top_k": map[string]any{
			"type":    "integer",
			"minimum": 1,
			"maximum": 50,
			"default": 5,
		},
	}, "query")
}

func (t *KnowledgeSearchTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *KnowledgeSearchTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.embedder == nil || t.store == nil {
		return tools.ErrorResult("vector store unavailable"), nil
	}
	var input struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tools.ErrorResult("query is required"), nil
	}

	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	points, err := t.store.Search(ctx, vec, input.TopK)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"query": query, "matches": points, "total": len(points)}), nil
}
