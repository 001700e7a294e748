package main

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/internal/llm"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/internal/tools"
)

// logTail is an io.Writer that keeps the last maxLines log lines in memory,
// serving the get_recent_logs and search_logs tools. It sits in a MultiWriter
// next to stderr so the tail never changes what ships to the log pipeline.
type logTail struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	partial  []byte
}

func newLogTail(maxLines int) *logTail {
	if maxLines <= 0 {
		maxLines = 1000
	}
	return &logTail{maxLines: maxLines}
}

func (t *logTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := append(t.partial, p...)
	for {
		idx := -1
		for i, b := range buf {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(buf[:idx]), "\r")
		if line != "" {
			t.lines = append(t.lines, line)
			if len(t.lines) > t.maxLines {
				t.lines = t.lines[len(t.lines)-t.maxLines:]
			}
		}
		buf = buf[idx+1:]
	}
	t.partial = append([]byte(nil), buf...)
	return len(p), nil
}

func (t *logTail) Recent(_ context.Context, limit int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.lines) {
		limit = len(t.lines)
	}
	out := make([]string, limit)
	copy(out, t.lines[len(t.lines)-limit:])
	return out, nil
}

func (t *logTail) Search(_ context.Context, query string, limit int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(query)
	var out []string
	for i := len(t.lines) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(t.lines[i]), needle) {
			out = append(out, t.lines[i])
		}
	}
	// Oldest first, like Recent.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// shellRunner executes commands through the local shell. The safety engine
// has already vetted the command by the time this runs.
type shellRunner struct {
	timeout time.Duration
}

func (r *shellRunner) Run(ctx context.Context, command string) (*tools.CommandResult, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute command: %w", err)
		}
	}

	output := stdout.String()
	if output == "" {
		output = stderr.String()
	}
	return &tools.CommandResult{
		Output:   output,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// talkerGenerator adapts the LLM adapter to the prompt-in text-out surface
// the model-backed tools expect. It always runs on the talker tier.
type talkerGenerator struct {
	adapter *llm.Adapter
}

func (g *talkerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.adapter.Generate(ctx, prompt, llm.Options{Temperature: 0.2, MaxTokens: 256})
}

// textGenerator backs generate_text, passing the force_worker flag through to
// tier selection.
type textGenerator struct {
	adapter *llm.Adapter
}

func (g *textGenerator) GenerateText(ctx context.Context, prompt string, forceWorker bool) (string, error) {
	return g.adapter.Generate(ctx, prompt, llm.Options{ForceWorker: forceWorker, MaxTokens: 1024})
}

// traceQuery serves query_traces from the tracer's in-process span log.
type traceQuery struct {
	tracer *observability.Tracer
}

func (q *traceQuery) QueryTraces(_ context.Context, service string, limit int) ([]tools.TraceSummary, error) {
	records := q.tracer.Recent(service, limit)
	out := make([]tools.TraceSummary, 0, len(records))
	for _, r := range records {
		out = append(out, tools.TraceSummary{
			TraceID:    r.TraceID,
			Name:       r.Name,
			DurationMS: r.DurationMS,
			Status:     r.Status,
		})
	}
	return out, nil
}

// runtime backs the diagnostic tools: health, status, model status, metrics
// snapshots, and alerts, all derived from live process state.
type runtime struct {
	adapter      *llm.Adapter
	orch         *orchestrator.Orchestrator
	approvals    *approval.Queue
	integrations map[string]bool
	backendURL   string
	startedAt    time.Time

	httpClient *http.Client
}

func newRuntime(adapter *llm.Adapter, approvals *approval.Queue, integrations map[string]bool, backendURL string) *runtime {
	return &runtime{
		adapter:      adapter,
		approvals:    approvals,
		integrations: integrations,
		backendURL:   backendURL,
		startedAt:    time.Now(),
		httpClient:   &http.Client{Timeout: 3 * time.Second},
	}
}

// setOrchestrator breaks the construction cycle: the orchestrator needs the
// registry, and the status tools in the registry need the orchestrator.
func (rt *runtime) setOrchestrator(o *orchestrator.Orchestrator) {
	rt.orch = o
}

// backendHealthy pings the inference backend. Used as the pre-retry health
// gate so a dead backend fails fast instead of burning the retry budget.
func (rt *runtime) backendHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rt.backendURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := rt.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (rt *runtime) Health(ctx context.Context) (map[string]any, error) {
	status := "healthy"
	if !rt.adapter.IsModelAvailable() {
		status = "degraded"
	}
	return map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(rt.startedAt).Seconds()),
		"backend_up":     rt.backendHealthy(ctx),
		"models":         rt.adapter.ModelInfo(),
		"integrations":   rt.integrations,
	}, nil
}

func (rt *runtime) Status(ctx context.Context) (map[string]any, error) {
	if rt.orch == nil {
		return map[string]any{"status": "starting"}, nil
	}
	snapshot, err := rt.orch.Status(ctx)
	if err != nil {
		return nil, err
	}
	snapshot["uptime_seconds"] = int64(time.Since(rt.startedAt).Seconds())
	snapshot["backend_url"] = rt.backendURL
	return snapshot, nil
}

func (rt *runtime) ModelStatus(_ context.Context) (map[string]any, error) {
	info := rt.adapter.ModelInfo()
	info["available"] = rt.adapter.IsModelAvailable()
	return info, nil
}

// MetricsSnapshot sums the relay counter families from the default registry.
// Point-in-time totals for the get_metrics tool; the full series stay on
// /metrics.
func (rt *runtime) MetricsSnapshot(_ context.Context) (map[string]any, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := map[string]any{}
	for _, family := range families {
		name := family.GetName()
		if !strings.HasPrefix(name, "relay_") {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[strings.TrimPrefix(name, "relay_")] = total
	}
	return out, nil
}

func (rt *runtime) Alerts(ctx context.Context) ([]tools.Alert, error) {
	var alerts []tools.Alert

	if !rt.adapter.IsModelAvailable() {
		alerts = append(alerts, tools.Alert{
			Name:     "llm_unavailable",
			Severity: "critical",
			Message:  "no language model tier resolves; chat runs in fallback mode",
		})
	} else if !rt.backendHealthy(ctx) {
		alerts = append(alerts, tools.Alert{
			Name:     "backend_unreachable",
			Severity: "warning",
			Message:  fmt.Sprintf("inference backend %s is not responding", rt.backendURL),
		})
	}

	if rt.approvals != nil {
		if pending := rt.approvals.ListPending(); len(pending) > 0 {
			alerts = append(alerts, tools.Alert{
				Name:     "approvals_pending",
				Severity: "info",
				Message:  fmt.Sprintf("%d action(s) awaiting operator approval", len(pending)),
				Since:    pending[0].RequestedAt.UTC().Format(time.RFC3339),
			})
		}
	}

	return alerts, nil
}
