package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9201 {
		t.Errorf("server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.LLM.NCtx != 4096 || cfg.LLM.Threads != 8 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Safety.RateLimit.Limits["execute_command"] != 10 {
		t.Errorf("rate limits = %v", cfg.Safety.RateLimit.Limits)
	}
	if cfg.Approvals.TTL != 10*time.Minute {
		t.Errorf("approvals ttl = %v", cfg.Approvals.TTL)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "relay.yaml", `
version: 1
data_dir: /var/lib/relay
server:
  port: 8080
llm:
  backend_url: http://ollama:11434
  n_ctx: 8192
media:
  radarr_url: http://radarr:7878
  radarr_key: secret
  tracking_only: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host default lost: %q", cfg.Server.Host)
	}
	if cfg.LLM.BackendURL != "http://ollama:11434" || cfg.LLM.NCtx != 8192 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.Threads != 8 {
		t.Errorf("threads default lost: %d", cfg.LLM.Threads)
	}
	if !cfg.Media.TrackingOnly || cfg.Media.RadarrURL != "http://radarr:7878" {
		t.Errorf("media = %+v", cfg.Media)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "relay.json5", `{
  // local override
  version: 1,
  server: { port: 9000 },
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
version: 1
llm:
  backend_url: http://base:11434
  n_ctx: 2048
`)
	path := writeFile(t, dir, "relay.yaml", `
$include: base.yaml
llm:
  n_ctx: 8192
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.BackendURL != "http://base:11434" {
		t.Errorf("included backend_url lost: %q", cfg.LLM.BackendURL)
	}
	if cfg.LLM.NCtx != 8192 {
		t.Errorf("override lost: n_ctx = %d", cfg.LLM.NCtx)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("err = %v, want include cycle", err)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("RELAY_TEST_TOKEN", "tok-123")
	dir := t.TempDir()
	path := writeFile(t, dir, "relay.yaml", `
version: 1
github:
  token: ${RELAY_TEST_TOKEN}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.Token != "tok-123" {
		t.Errorf("token = %q", cfg.GitHub.Token)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND_HOST", "0.0.0.0")
	t.Setenv("BACKEND_PORT", "9300")
	t.Setenv("LLAMA_CONTEXT", "16384")
	t.Setenv("LLAMA_THREADS", "4")
	t.Setenv("MEDIA_TRACKING_ONLY", "true")
	t.Setenv("GATEWAY_URL", "http://gw:8443")
	t.Setenv("USE_GATEWAY_PROXY", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9300 {
		t.Errorf("server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.LLM.NCtx != 16384 || cfg.LLM.Threads != 4 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if !cfg.Media.TrackingOnly {
		t.Error("MEDIA_TRACKING_ONLY ignored")
	}
	if cfg.Gateway.URL != "http://gw:8443" || !cfg.Gateway.UseProxy {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }, "port"},
		{"tiny context", func(c *Config) { c.LLM.NCtx = 100 }, "n_ctx"},
		{"proxy without url", func(c *Config) { c.Gateway.UseProxy = true }, "gateway.url"},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestVersionRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "relay.yaml", "version: 99\n")
	if _, err := Load(path); err == nil {
		t.Error("future config version accepted")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "relay.yaml", `
version: 1
serverr:
  port: 1
`)
	if _, err := Load(path); err == nil {
		t.Error("unknown top-level field accepted")
	}
}
