// Package media wraps Radarr, Sonarr, and SABnzbd style backends behind one
// client and exposes the search, download, and queue tools built on it.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout          = 15 * time.Second
	defaultMaxResponseBytes = int64(4 << 20) // 4MB; lookup responses are large
)

// Config configures the media client.
type Config struct {
	RadarrURL string
	RadarrKey string

	SonarrURL string
	SonarrKey string

	SabnzbdURL string
	SabnzbdKey string

	// TrackingOnly disables every mutating call: download requests are
	// recorded and acknowledged but nothing is sent to the backends.
	TrackingOnly bool

	// Radarr/Sonarr add defaults.
	QualityProfileID int
	RootFolder       string

	Timeout          time.Duration
	MaxResponseBytes int64
	HTTPClient       *http.Client
}

// Item is one search result across movie and series backends.
type Item struct {
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	Kind     string `json:"kind"` // movie | series
	RemoteID int64  `json:"remote_id,omitempty"`
	Overview string `json:"overview,omitempty"`
}

// QueueEntry is one in-flight download.
type QueueEntry struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	SizeMB     int64  `json:"size_mb,omitempty"`
	Percentage string `json:"percentage,omitempty"`
	TimeLeft   string `json:"time_left,omitempty"`
}

// Client talks to the configured media backends. Any backend may be absent;
// calls against a missing backend return a descriptive error.
type Client struct {
	cfg      config
	client   *http.Client
	maxBytes int64
}

type config struct {
	radarrURL, radarrKey   string
	sonarrURL, sonarrKey   string
	sabnzbdURL, sabnzbdKey string
	trackingOnly           bool
	qualityProfileID       int
	rootFolder             string
}

// NewClient validates the config and builds a client. At least one backend
// must be configured.
func NewClient(cfg Config) (*Client, error) {
	norm := config{
		radarrURL:        trimURL(cfg.RadarrURL),
		radarrKey:        strings.TrimSpace(cfg.RadarrKey),
		sonarrURL:        trimURL(cfg.SonarrURL),
		sonarrKey:        strings.TrimSpace(cfg.SonarrKey),
		sabnzbdURL:       trimURL(cfg.SabnzbdURL),
		sabnzbdKey:       strings.TrimSpace(cfg.SabnzbdKey),
		trackingOnly:     cfg.TrackingOnly,
		qualityProfileID: cfg.QualityProfileID,
		rootFolder:       cfg.RootFolder,
	}
	if norm.radarrURL == "" && norm.sonarrURL == "" && norm.sabnzbdURL == "" {
		return nil, fmt.Errorf("media: no backend configured")
	}
	if norm.qualityProfileID == 0 {
		norm.qualityProfileID = 1
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	return &Client{cfg: norm, client: client, maxBytes: maxBytes}, nil
}

func trimURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// TrackingOnly reports whether mutating calls are disabled.
func (c *Client) TrackingOnly() bool { return c.cfg.trackingOnly }

// SearchMovies looks a title up in Radarr (GET /api/v3/movie/lookup).
func (c *Client) SearchMovies(ctx context.Context, query string) ([]Item, error) {
	if c.cfg.radarrURL == "" {
		return nil, fmt.Errorf("media: radarr not configured")
	}
	endpoint := c.cfg.radarrURL + "/api/v3/movie/lookup?term=" + url.QueryEscape(query)
	raw, err := c.doJSON(ctx, http.MethodGet, endpoint, c.cfg.radarrKey, nil)
	if err != nil {
		return nil, err
	}
	var results []struct {
		Title    string `json:"title"`
		Year     int    `json:"year"`
		TmdbID   int64  `json:"tmdbId"`
		Overview string `json:"overview"`
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("media: decode radarr lookup: %w", err)
	}
	items := make([]Item, 0, len(results))
	for _, r := range results {
		items = append(items, Item{Title: r.Title, Year: r.Year, Kind: "movie", RemoteID: r.TmdbID, Overview: r.Overview})
	}
	return items, nil
}

// SearchSeries looks a title up in Sonarr (GET /api/v3/series/lookup).
func (c *Client) SearchSeries(ctx context.Context, query string) ([]Item, error) {
	if c.cfg.sonarrURL == "" {
		return nil, fmt.Errorf("media: sonarr not configured")
	}
	endpoint := c.cfg.sonarrURL + "/api/v3/series/lookup?term=" + url.QueryEscape(query)
	raw, err := c.doJSON(ctx, http.MethodGet, endpoint, c.cfg.sonarrKey, nil)
	if err != nil {
		return nil, err
	}
	var results []struct {
		Title    string `json:"title"`
		Year     int    `json:"year"`
		TvdbID   int64  `json:"tvdbId"`
		Overview string `json:"overview"`
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("media: decode sonarr lookup: %w", err)
	}
	items := make([]Item, 0, len(results))
	for _, r := range results {
		items = append(items, Item{Title: r.Title, Year: r.Year, Kind: "series", RemoteID: r.TvdbID, Overview: r.Overview})
	}
	return items, nil
}

// Add submits an item for download and monitoring. In tracking-only mode the
// call is acknowledged without touching the backend.
func (c *Client) Add(ctx context.Context, item Item) (bool, error) {
	if c.cfg.trackingOnly {
		return false, nil
	}
	switch item.Kind {
	case "movie":
		if c.cfg.radarrURL == "" {
			return false, fmt.Errorf("media: radarr not configured")
		}
		payload := map[string]any{
			"title":            item.Title,
			"tmdbId":           item.RemoteID,
			"year":             item.Year,
			"qualityProfileId": c.cfg.qualityProfileID,
			"rootFolderPath":   c.cfg.rootFolder,
			"monitored":        true,
			"addOptions":       map[string]any{"searchForMovie": true},
		}
		_, err := c.doJSON(ctx, http.MethodPost, c.cfg.radarrURL+"/api/v3/movie", c.cfg.radarrKey, payload)
		return err == nil, err
	case "series":
		if c.cfg.sonarrURL == "" {
			return false, fmt.Errorf("media: sonarr not configured")
		}
		payload := map[string]any{
			"title":            item.Title,
			"tvdbId":           item.RemoteID,
			"year":             item.Year,
			"qualityProfileId": c.cfg.qualityProfileID,
			"rootFolderPath":   c.cfg.rootFolder,
			"monitored":        true,
			"addOptions":       map[string]any{"searchForMissingEpisodes": true},
		}
		_, err := c.doJSON(ctx, http.MethodPost, c.cfg.sonarrURL+"/api/v3/series", c.cfg.sonarrKey, payload)
		return err == nil, err
	default:
		return false, fmt.Errorf("media: unknown kind %q", item.Kind)
	}
}

// Queue returns the SABnzbd download queue (GET /api?mode=queue).
func (c *Client) Queue(ctx context.Context) ([]QueueEntry, error) {
	if c.cfg.sabnzbdURL == "" {
		return nil, fmt.Errorf("media: sabnzbd not configured")
	}
	endpoint := fmt.Sprintf("%s/api?mode=queue&output=json&apikey=%s", c.cfg.sabnzbdURL, url.QueryEscape(c.cfg.sabnzbdKey))
	raw, err := c.doJSON(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Queue struct {
			Slots []struct {
				Filename   string `json:"filename"`
				Status     string `json:"status"`
				MB         string `json:"mb"`
				Percentage string `json:"percentage"`
				TimeLeft   string `json:"timeleft"`
			} `json:"slots"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("media: decode sabnzbd queue: %w", err)
	}
	entries := make([]QueueEntry, 0, len(payload.Queue.Slots))
	for _, s := range payload.Queue.Slots {
		entry := QueueEntry{
			Name:       s.Filename,
			Status:     s.Status,
			Percentage: s.Percentage,
			TimeLeft:   s.TimeLeft,
		}
		fmt.Sscanf(s.MB, "%d", &entry.SizeMB)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, apiKey string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("media: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("media: create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("media: response too large")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("media: %s", msg)
	}
	return json.RawMessage(data), nil
}
