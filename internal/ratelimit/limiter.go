// Package ratelimit provides per-tool sliding-window rate limiting for the
// safety engine. The window is fixed at 60 seconds; limits are configured
// per tool name, with unlisted tools unlimited by default.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the sliding window length.
const DefaultWindow = 60 * time.Second

// Config configures the limiter.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`

	// Window is the sliding window length (default 60s).
	Window time.Duration `yaml:"window"`

	// Limits maps tool name to the maximum calls per window.
	// Tools absent from the map are unlimited.
	Limits map[string]int `yaml:"limits"`
}

// DefaultConfig returns the default per-tool limits.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Window:  DefaultWindow,
		Limits: map[string]int{
			"execute_command":  10,
			"execute_workflow": 5,
		},
	}
}

// window tracks call timestamps for a single key.
type window struct {
	mu    sync.Mutex
	calls []time.Time
}

// Limiter enforces sliding-window limits per tool.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	config  Config
	nowFunc func() time.Time
}

// NewLimiter creates a limiter from the given config.
func NewLimiter(config Config) *Limiter {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	return &Limiter{
		windows: make(map[string]*window),
		config:  config,
		nowFunc: time.Now,
	}
}

// Allow reports whether a call to tool should proceed, recording it if so.
// Tools without a configured limit are always allowed and not tracked.
func (l *Limiter) Allow(tool string) bool {
	if !l.config.Enabled {
		return true
	}
	limit, ok := l.config.Limits[tool]
	if !ok || limit <= 0 {
		return true
	}

	w := l.getWindow(tool)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.nowFunc()
	w.trim(now.Add(-l.config.Window))

	if len(w.calls) >= limit {
		return false
	}
	w.calls = append(w.calls, now)
	return true
}

// RetryAfter returns how long until the oldest call in the window expires,
// or zero if a call would be allowed now.
func (l *Limiter) RetryAfter(tool string) time.Duration {
	if !l.config.Enabled {
		return 0
	}
	limit, ok := l.config.Limits[tool]
	if !ok || limit <= 0 {
		return 0
	}

	w := l.getWindow(tool)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.nowFunc()
	w.trim(now.Add(-l.config.Window))

	if len(w.calls) < limit {
		return 0
	}
	return w.calls[0].Add(l.config.Window).Sub(now)
}

// Status describes the current window for a tool.
type Status struct {
	Tool       string        `json:"tool"`
	Limit      int           `json:"limit"`
	Used       int           `json:"used"`
	AllowedNow bool          `json:"allowed_now"`
	RetryAfter time.Duration `json:"retry_after"`
}

// GetStatus returns window introspection for a tool.
func (l *Limiter) GetStatus(tool string) Status {
	limit := l.config.Limits[tool]
	if !l.config.Enabled || limit <= 0 {
		return Status{Tool: tool, Limit: limit, AllowedNow: true}
	}

	w := l.getWindow(tool)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.nowFunc()
	w.trim(now.Add(-l.config.Window))

	st := Status{
		Tool:       tool,
		Limit:      limit,
		Used:       len(w.calls),
		AllowedNow: len(w.calls) < limit,
	}
	if !st.AllowedNow {
		st.RetryAfter = w.calls[0].Add(l.config.Window).Sub(now)
	}
	return st
}

// Reset clears the window for a tool.
func (l *Limiter) Reset(tool string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, tool)
}

// SetLimit installs or replaces a per-tool limit at runtime.
func (l *Limiter) SetLimit(tool string, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.config.Limits == nil {
		l.config.Limits = make(map[string]int)
	}
	l.config.Limits[tool] = limit
}

// getWindow returns or creates the window for a key.
func (l *Limiter) getWindow(key string) *window {
	l.mu.RLock()
	w, exists := l.windows[key]
	l.mu.RUnlock()
	if exists {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock
	if w, exists = l.windows[key]; exists {
		return w
	}
	w = &window{}
	l.windows[key] = w
	return w
}

// trim drops timestamps older than cutoff (must hold w.mu).
func (w *window) trim(cutoff time.Time) {
	idx := 0
	for idx < len(w.calls) && !w.calls[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.calls = append(w.calls[:0], w.calls[idx:]...)
	}
}
