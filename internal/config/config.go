// Package config loads the relay configuration from YAML or JSON5 files
// with $include resolution, environment expansion, and a small set of
// environment-variable overrides for the CLI surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Version int `yaml:"version"`

	// DataDir is the root for all persisted state: conversations,
	// approvals, audit logs.
	DataDir string `yaml:"data_dir"`

	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Safety        SafetyConfig        `yaml:"safety"`
	Approvals     ApprovalsConfig     `yaml:"approvals"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Audit         AuditConfig         `yaml:"audit"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Media         MediaConfig         `yaml:"media"`
	GitHub        GitHubConfig        `yaml:"github"`
	Vector        VectorConfig        `yaml:"vector"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// HealthRateLimit caps /health calls per client per window; 0 disables.
	HealthRateLimit int `yaml:"health_rate_limit"`
}

// LLMConfig configures the dual-model adapter.
type LLMConfig struct {
	BackendURL  string `yaml:"backend_url"`
	ModelDir    string `yaml:"model_dir"`
	TalkerModel string `yaml:"talker_model"`
	WorkerModel string `yaml:"worker_model"`
	NCtx        int    `yaml:"n_ctx"`
	Threads     int    `yaml:"threads"`
	WarmTalker  bool   `yaml:"warm_talker"`
}

// GatewayConfig routes backend calls through a proxy host when the process
// cannot reach the target network directly.
type GatewayConfig struct {
	URL      string `yaml:"url"`
	UseProxy bool   `yaml:"use_proxy"`
}

// SafetyConfig configures the policy engine.
type SafetyConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig mirrors the sliding-window limiter settings.
type RateLimitConfig struct {
	Enabled bool           `yaml:"enabled"`
	Window  time.Duration  `yaml:"window"`
	Limits  map[string]int `yaml:"limits"`
}

// ApprovalsConfig configures the pending-action queue.
type ApprovalsConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Persist bool          `yaml:"persist"`
}

// ConversationsConfig configures the conversation store.
type ConversationsConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Persist bool          `yaml:"persist"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables
// tracing entirely.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// AuditConfig configures the JSONL audit log.
type AuditConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxSizeMB     int  `yaml:"max_size_mb"`
	MaxBackups    int  `yaml:"max_backups"`
	ISOTimestamps bool `yaml:"iso_timestamps"`
}

// HomeAssistantConfig configures the home-automation client. Empty BaseURL
// disables the integration.
type HomeAssistantConfig struct {
	BaseURL       string `yaml:"base_url"`
	Token         string `yaml:"token"`
	DefaultEntity string `yaml:"default_entity"`
}

// MediaConfig configures the Radarr/Sonarr/SABnzbd clients. All URLs empty
// disables the integration.
type MediaConfig struct {
	RadarrURL        string `yaml:"radarr_url"`
	RadarrKey        string `yaml:"radarr_key"`
	SonarrURL        string `yaml:"sonarr_url"`
	SonarrKey        string `yaml:"sonarr_key"`
	SabnzbdURL       string `yaml:"sabnzbd_url"`
	SabnzbdKey       string `yaml:"sabnzbd_key"`
	TrackingOnly     bool   `yaml:"tracking_only"`
	QualityProfileID int    `yaml:"quality_profile_id"`
	RootFolder       string `yaml:"root_folder"`
}

// GitHubConfig configures the repo-listing client. Empty token disables it.
type GitHubConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// VectorConfig configures the embedding backend and vector store. Empty
// BackendURL disables both.
type VectorConfig struct {
	BackendURL string `yaml:"backend_url"`
	EmbedModel string `yaml:"embed_model"`
	StoreURL   string `yaml:"store_url"`
	Collection string `yaml:"collection"`
}

// Default returns the stock local-deployment configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		DataDir: "data",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9201,
		},
		LLM: LLMConfig{
			BackendURL: "http://127.0.0.1:11434",
			NCtx:       4096,
			Threads:    8,
			WarmTalker: true,
		},
		Safety: SafetyConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				Window:  60 * time.Second,
				Limits: map[string]int{
					"execute_command":  10,
					"execute_workflow": 5,
				},
			},
		},
		Approvals: ApprovalsConfig{
			TTL: 10 * time.Minute,
		},
		Conversations: ConversationsConfig{
			TTL: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Vector: VectorConfig{
			Collection: "knowledge",
		},
	}
}

// Load reads a config file, applies defaults for unset sections, and then
// the environment overrides. An empty path yields the defaults plus
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, err
		}
		if v, ok := raw["version"]; ok {
			if n, ok := toInt(v); ok {
				if err := ValidateVersion(n); err != nil {
					return nil, err
				}
			}
		}
		loaded, err := decodeRawConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg.merge(loaded)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge copies every explicitly-set field of src over the defaults.
func (c *Config) merge(src *Config) {
	if src.Version != 0 {
		c.Version = src.Version
	}
	if src.DataDir != "" {
		c.DataDir = src.DataDir
	}
	if src.Server.Host != "" {
		c.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		c.Server.Port = src.Server.Port
	}
	if src.Server.HealthRateLimit != 0 {
		c.Server.HealthRateLimit = src.Server.HealthRateLimit
	}
	if src.LLM.BackendURL != "" {
		c.LLM.BackendURL = src.LLM.BackendURL
	}
	if src.LLM.ModelDir != "" {
		c.LLM.ModelDir = src.LLM.ModelDir
	}
	if src.LLM.TalkerModel != "" {
		c.LLM.TalkerModel = src.LLM.TalkerModel
	}
	if src.LLM.WorkerModel != "" {
		c.LLM.WorkerModel = src.LLM.WorkerModel
	}
	if src.LLM.NCtx != 0 {
		c.LLM.NCtx = src.LLM.NCtx
	}
	if src.LLM.Threads != 0 {
		c.LLM.Threads = src.LLM.Threads
	}
	c.LLM.WarmTalker = c.LLM.WarmTalker || src.LLM.WarmTalker
	if src.Gateway.URL != "" {
		c.Gateway = src.Gateway
	}
	if src.Safety.RateLimit.Window != 0 || len(src.Safety.RateLimit.Limits) > 0 {
		c.Safety = src.Safety
	}
	if src.Approvals.TTL != 0 || src.Approvals.Persist {
		ttl := c.Approvals.TTL
		c.Approvals = src.Approvals
		if c.Approvals.TTL == 0 {
			c.Approvals.TTL = ttl
		}
	}
	if src.Conversations.TTL != 0 || src.Conversations.Persist {
		ttl := c.Conversations.TTL
		c.Conversations = src.Conversations
		if c.Conversations.TTL == 0 {
			c.Conversations.TTL = ttl
		}
	}
	if src.Logging.Level != "" {
		c.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		c.Logging.Format = src.Logging.Format
	}
	if src.Tracing.Endpoint != "" {
		c.Tracing = src.Tracing
	}
	if src.Audit != (AuditConfig{}) {
		c.Audit = src.Audit
	}
	if src.HomeAssistant.BaseURL != "" {
		c.HomeAssistant = src.HomeAssistant
	}
	if src.Media != (MediaConfig{}) {
		c.Media = src.Media
	}
	if src.GitHub.Token != "" || src.GitHub.BaseURL != "" {
		c.GitHub = src.GitHub
	}
	if src.Vector.BackendURL != "" || src.Vector.StoreURL != "" {
		if src.Vector.Collection == "" {
			src.Vector.Collection = c.Vector.Collection
		}
		c.Vector = src.Vector
	}
}

// applyEnv applies the environment-variable surface. These win over the
// config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("BACKEND_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("BACKEND_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("LLAMA_CONTEXT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.LLM.NCtx = n
		}
	}
	if v := os.Getenv("LLAMA_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.LLM.Threads = n
		}
	}
	if v := os.Getenv("MEDIA_TRACKING_ONLY"); v != "" {
		c.Media.TrackingOnly = v == "true" || v == "1"
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("USE_GATEWAY_PROXY"); v != "" {
		c.Gateway.UseProxy = v == "true" || v == "1"
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.LLM.NCtx < 512 {
		return fmt.Errorf("llm.n_ctx %d too small (minimum 512)", c.LLM.NCtx)
	}
	if c.Gateway.UseProxy && c.Gateway.URL == "" {
		return fmt.Errorf("gateway.use_proxy requires gateway.url")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate %v out of range [0,1]", c.Tracing.SamplingRate)
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
