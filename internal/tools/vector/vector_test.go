package vector

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// embedServer returns deterministic per-text embeddings so rank order is
// predictable: texts sharing a keyword with the query score higher.
func embedServer(t *testing.T) *Embedder {
	t.Helper()
	vectors := map[string][]float64{
		"database latency":         {1, 0, 0},
		"postgres query slow":      {0.9, 0.1, 0},
		"frontend css bug":         {0, 1, 0},
		"kubernetes pod restarted": {0, 0, 1},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		vec, ok := vectors[req.Prompt]
		if !ok {
			vec = []float64{0.5, 0.5, 0.5}
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	t.Cleanup(srv.Close)

	e, err := NewEmbedder(EmbedderConfig{BackendURL: srv.URL})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	return e
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 0}, []float64{1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankToolOrder(t *testing.T) {
	tool := NewRankTool(embedServer(t))
	params := `{
		"query": "database latency",
		"candidates": [
			{"id": "a", "text": "frontend css bug"},
			{"id": "b", "text": "postgres query slow"},
			{"id": "c", "text": "kubernetes pod restarted"}
		]
	}`
	res, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var payload struct {
		Ranked []Ranked `json:"ranked"`
	}
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Ranked) != 3 {
		t.Fatalf("len = %d, want 3", len(payload.Ranked))
	}
	if payload.Ranked[0].Candidate.ID != "b" {
		t.Errorf("top candidate = %q, want b", payload.Ranked[0].Candidate.ID)
	}
	if payload.Ranked[0].Score <= payload.Ranked[1].Score {
		t.Errorf("scores not descending: %v", payload.Ranked)
	}
}

func TestRankToolValidation(t *testing.T) {
	tool := NewRankTool(embedServer(t))
	for name, params := range map[string]string{
		"no query":      `{"candidates":[{"text":"a"}]}`,
		"no candidates": `{"query":"q","candidates":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := tool.Execute(context.Background(), json.RawMessage(params))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !res.IsError {
				t.Error("expected soft error")
			}
		})
	}
}

func TestKnowledgeSearchTool(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	storeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"result":[{"id":42,"score":0.91,"payload":{"text":"postgres tuning notes"}}]}`))
	}))
	defer storeSrv.Close()

	store, err := NewStore(StoreConfig{BaseURL: storeSrv.URL, Collection: "knowledge"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tool := NewKnowledgeSearchTool(embedServer(t), store)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"database latency","top_k":3}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotPath != "/collections/knowledge/points/search" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["limit"] != float64(3) {
		t.Errorf("limit = %v, want 3", gotBody["limit"])
	}
	if !strings.Contains(res.Content, "postgres tuning notes") {
		t.Errorf("content = %s", res.Content)
	}
}

func TestEmbedderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{BackendURL: srv.URL})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("Embed succeeded on empty embedding")
	}
}
