// Package github lists repositories for the configured account and exposes
// the list_repos tool.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 15 * time.Second
	perPageMax     = 100
)

// Repo is the subset of repository fields the tool reports.
type Repo struct {
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	URL       string `json:"url"`
	Stars     int    `json:"stars"`
	Language  string `json:"language,omitempty"`
	Private   bool   `json:"private"`
	UpdatedAt string `json:"updated_at"`
}

// Config configures the GitHub client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client wraps the repository listing endpoint with pagination and
// rate-limit awareness.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, token: token, client: client}, nil
}

// ListRepos returns up to limit repositories sorted by last update,
// following pagination until the limit is reached or pages run out.
func (c *Client) ListRepos(ctx context.Context, limit int) ([]Repo, error) {
	if limit <= 0 {
		limit = 30
	}

	var repos []Repo
	page := 1
	for len(repos) < limit {
		perPage := limit - len(repos)
		if perPage > perPageMax {
			perPage = perPageMax
		}
		batch, err := c.listPage(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		repos = append(repos, batch...)
		if len(batch) < perPage {
			break
		}
		page++
	}
	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

func (c *Client) listPage(ctx context.Context, page, perPage int) ([]Repo, error) {
	endpoint := fmt.Sprintf("%s/user/repos?per_page=%d&page=%d&sort=updated", c.baseURL, perPage, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("github: read response: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden && remainingCalls(resp.Header) == 0 {
		return nil, fmt.Errorf("github: rate limit exhausted, resets at %s", resetTime(resp.Header))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("github: %s", resp.Status)
	}

	var raw []struct {
		Name      string `json:"name"`
		FullName  string `json:"full_name"`
		HTMLURL   string `json:"html_url"`
		Stars     int    `json:"stargazers_count"`
		Language  string `json:"language"`
		Private   bool   `json:"private"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("github: decode response: %w", err)
	}

	repos := make([]Repo, 0, len(raw))
	for _, r := range raw {
		repos = append(repos, Repo{
			Name:      r.Name,
			FullName:  r.FullName,
			URL:       r.HTMLURL,
			Stars:     r.Stars,
			Language:  r.Language,
			Private:   r.Private,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return repos, nil
}

func remainingCalls(h http.Header) int {
	n, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return -1
	}
	return n
}

func resetTime(h http.Header) string {
	secs, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return "unknown"
	}
	return time.Unix(secs, 0).UTC().Format(time.RFC3339)
}
