package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBackends(t *testing.T, trackingOnly bool) (*Client, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v3/movie/lookup"):
			w.Write([]byte(`[{"title":"Dune: Part Two","year":2024,"tmdbId":693134}]`))
		case strings.HasPrefix(r.URL.Path, "/api/v3/series/lookup"):
			w.Write([]byte(`[{"title":"Severance","year":2022,"tvdbId":371980}]`))
		case r.URL.Path == "/api/v3/movie" && r.Method == http.MethodPost:
			w.Write([]byte(`{"id":1}`))
		case r.URL.Path == "/api" && r.URL.Query().Get("mode") == "queue":
			w.Write([]byte(`{"queue":{"slots":[{"filename":"dune.part.two","status":"Downloading","mb":"4096","percentage":"42","timeleft":"0:12:30"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		RadarrURL:    srv.URL,
		RadarrKey:    "rk",
		SonarrURL:    srv.URL,
		SonarrKey:    "sk",
		SabnzbdURL:   srv.URL,
		SabnzbdKey:   "bk",
		TrackingOnly: trackingOnly,
		RootFolder:   "/media",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, &calls
}

func TestNewClientRequiresBackend(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("NewClient accepted empty config")
	}
}

func TestSearchToolBothKinds(t *testing.T) {
	client, _ := newBackends(t, false)
	tool := &SearchTool{client: client}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"dune"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var payload struct {
		Results []Item `json:"results"`
		Total   int    `json:"total"`
	}
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 2 {
		t.Errorf("total = %d, want movie + series", payload.Total)
	}
}

func TestDownloadToolSubmits(t *testing.T) {
	client, calls := newBackends(t, false)
	tool := &DownloadTool{client: client}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"dune","kind":"movie"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Content, `"submitted"`) {
		t.Errorf("content = %s, want submitted status", res.Content)
	}
	posted := false
	for _, c := range *calls {
		if c == "POST /api/v3/movie" {
			posted = true
		}
	}
	if !posted {
		t.Errorf("calls = %v, want POST /api/v3/movie", *calls)
	}
}

func TestDownloadToolTrackingOnly(t *testing.T) {
	client, calls := newBackends(t, true)
	tool := &DownloadTool{client: client}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"dune","kind":"movie"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Content, "tracked_only") {
		t.Errorf("content = %s, want tracked_only status", res.Content)
	}
	for _, c := range *calls {
		if strings.HasPrefix(c, "POST") {
			t.Errorf("mutating call %q in tracking-only mode", c)
		}
	}
}

func TestQueueTool(t *testing.T) {
	client, _ := newBackends(t, false)
	tool := &QueueTool{client: client}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var payload struct {
		Queue []QueueEntry `json:"queue"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 1 || payload.Queue[0].Status != "Downloading" {
		t.Errorf("payload = %+v", payload)
	}
	if payload.Queue[0].SizeMB != 4096 {
		t.Errorf("SizeMB = %d, want 4096", payload.Queue[0].SizeMB)
	}
}
