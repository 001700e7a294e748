package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func repoPage(start, count int) string {
	out := "["
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"name":"repo-%d","full_name":"me/repo-%d","html_url":"https://github.com/me/repo-%d","stargazers_count":%d,"language":"Go","updated_at":"2026-08-01T00:00:00Z"}`,
			start+i, start+i, start+i, start+i)
	}
	return out + "]"
}

func TestListReposPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		if perPage > 100 {
			t.Errorf("per_page = %d, want capped at 100", perPage)
		}
		switch page {
		case 1:
			w.Write([]byte(repoPage(0, perPage)))
		case 2:
			w.Write([]byte(repoPage(perPage, 20)))
		default:
			w.Write([]byte("[]"))
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	repos, err := client.ListRepos(context.Background(), 120)
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if len(repos) != 120 {
		t.Errorf("len = %d, want 120", len(repos))
	}
	if repos[0].Name != "repo-0" || repos[100].Name != "repo-100" {
		t.Errorf("pagination order wrong: %s, %s", repos[0].Name, repos[100].Name)
	}
}

func TestListReposShortLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(repoPage(0, 3)))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	repos, err := client.ListRepos(context.Background(), 50)
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if len(repos) != 3 {
		t.Errorf("len = %d, want 3", len(repos))
	}
}

func TestListReposRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1767225600")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.ListRepos(context.Background(), 10); err == nil {
		t.Error("ListRepos succeeded despite exhausted rate limit")
	}
}

func TestReposTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(repoPage(0, 2)))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res, err := NewReposTool(client).Execute(context.Background(), json.RawMessage(`{"limit":2}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var payload struct {
		Repos []Repo `json:"repos"`
		Total int    `json:"total"`
	}
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 2 || payload.Repos[0].Language != "Go" {
		t.Errorf("payload = %+v", payload)
	}
}
