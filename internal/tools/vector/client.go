// Package vector provides embeddings and vector-store search: an
// Ollama-style embedder, a Qdrant-style point store, and the semantic
// ranking tools built on them.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultEmbedModel = "nomic-embed-text"
)

// Embedder produces embeddings through the LLM backend's embeddings
// endpoint (POST /api/embeddings, Ollama style).
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// EmbedderConfig configures the embedder.
type EmbedderConfig struct {
	BackendURL string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewEmbedder validates the config and builds an embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("vector: backend_url is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultEmbedModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Embedder{baseURL: baseURL, model: model, client: client}, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(map[string]any{"model": e.model, "prompt": text})
	if err != nil {
		return nil, fmt.Errorf("vector: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vector: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector: embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("vector: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vector: embeddings: %s", resp.Status)
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("vector: decode embedding: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("vector: backend returned empty embedding")
	}
	return out.Embedding, nil
}

// Point is one scored match from the store.
type Point struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store searches a Qdrant-style collection
// (POST /collections/{c}/points/search).
type Store struct {
	baseURL    string
	collection string
	client     *http.Client
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewStore validates the config and builds a store client.
func NewStore(cfg StoreConfig) (*Store, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("vector: store base_url is required")
	}
	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		return nil, fmt.Errorf("vector: collection is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Store{baseURL: baseURL, collection: collection, client: client}, nil
}

// Search returns the top-k nearest points for a query vector.
func (s *Store) Search(ctx context.Context, queryVector []float64, topK int) ([]Point, error) {
	if topK <= 0 {
		topK = 5
	}
	payload, err := json.Marshal(map[string]any{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: encode search: %w", err)
	}
	endpoint := s.baseURL + "/collections/" + url.PathEscape(s.collection) + "/points/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vector: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector: search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("vector: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vector: search: %s", resp.Status)
	}

	var out struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("vector: decode search: %w", err)
	}

	points := make([]Point, 0, len(out.Result))
	for _, r := range out.Result {
		points = append(points, Point{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return points, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// zero-length or degenerate.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
