package tools

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/relay/pkg/models"
)

// objectSchema builds a JSON Schema for an object with the given properties.
func objectSchema(props map[string]any, required ...string) json.RawMessage {
	if required == nil {
		required = []string{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// HealthProvider reports liveness of the process and its integrations.
type HealthProvider interface {
	Health(ctx context.Context) (map[string]any, error)
}

// StatusProvider reports a broader runtime snapshot (conversations, tools,
// backend reachability).
type StatusProvider interface {
	Status(ctx context.Context) (map[string]any, error)
}

// ModelStatusProvider reports which model tiers are loaded.
type ModelStatusProvider interface {
	ModelStatus(ctx context.Context) (map[string]any, error)
}

// MetricsProvider exposes a point-in-time counter snapshot for the
// get_metrics tool. The full series live on /metrics.
type MetricsProvider interface {
	MetricsSnapshot(ctx context.Context) (map[string]any, error)
}

// Alert is one active condition reported by get_alerts.
type Alert struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Since    string `json:"since,omitempty"`
}

// AlertProvider lists currently-firing alerts.
type AlertProvider interface {
	Alerts(ctx context.Context) ([]Alert, error)
}

// HealthTool reports process and integration health.
type HealthTool struct {
	provider HealthProvider
}

func NewHealthTool(provider HealthProvider) *HealthTool {
	return &HealthTool{provider: provider}
}

func (t *HealthTool) Name() string { return "check_health" }

func (t *HealthTool) Description() string {
	return "Check overall system health including models and integrations."
}

func (t *HealthTool) Schema() json.RawMessage { return objectSchema(map[string]any{}) }

func (t *HealthTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *HealthTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("health provider unavailable"), nil
	}
	summary, err := t.provider.Health(ctx)
	if err != nil {
		return nil, err
	}
	return JSONResult(summary), nil
}

// SystemStatusTool reports the runtime snapshot.
type SystemStatusTool struct {
	provider StatusProvider
}

func NewSystemStatusTool(provider StatusProvider) *SystemStatusTool {
	return &SystemStatusTool{provider: provider}
}

func (t *SystemStatusTool) Name() string { return "get_system_status" }

func (t *SystemStatusTool) Description() string {
	return "Get the current runtime status: active conversations, registered tools, backend reachability."
}

func (t *SystemStatusTool) Schema() json.RawMessage { return objectSchema(map[string]any{}) }

func (t *SystemStatusTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *SystemStatusTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("status provider unavailable"), nil
	}
	status, err := t.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	return JSONResult(status), nil
}

// ModelStatusTool reports which LLM tiers are loaded and warm.
type ModelStatusTool struct {
	provider ModelStatusProvider
}

func NewModelStatusTool(provider ModelStatusProvider) *ModelStatusTool {
	return &ModelStatusTool{provider: provider}
}

func (t *ModelStatusTool) Name() string { return "get_model_status" }

func (t *ModelStatusTool) Description() string {
	return "Report which language models are loaded and which tier serves each role."
}

func (t *ModelStatusTool) Schema() json.RawMessage { return objectSchema(map[string]any{}) }

func (t *ModelStatusTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *ModelStatusTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("model status provider unavailable"), nil
	}
	status, err := t.provider.ModelStatus(ctx)
	if err != nil {
		return nil, err
	}
	return JSONResult(status), nil
}

// MetricsTool returns a counter snapshot.
type MetricsTool struct {
	provider MetricsProvider
}

func NewMetricsTool(provider MetricsProvider) *MetricsTool {
	return &MetricsTool{provider: provider}
}

func (t *MetricsTool) Name() string { return "get_metrics" }

func (t *MetricsTool) Description() string {
	return "Get a snapshot of request, tool, and inference counters."
}

func (t *MetricsTool) Schema() json.RawMessage { return objectSchema(map[string]any{}) }

func (t *MetricsTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *MetricsTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("metrics provider unavailable"), nil
	}
	snapshot, err := t.provider.MetricsSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return JSONResult(snapshot), nil
}

// AlertsTool lists firing alerts.
type AlertsTool struct {
	provider AlertProvider
}

func NewAlertsTool(provider AlertProvider) *AlertsTool {
	return &AlertsTool{provider: provider}
}

func (t *AlertsTool) Name() string { return "get_alerts" }

func (t *AlertsTool) Description() string {
	return "List currently-firing alerts with severity and duration."
}

func (t *AlertsTool) Schema() json.RawMessage { return objectSchema(map[string]any{}) }

func (t *AlertsTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *AlertsTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("alert provider unavailable"), nil
	}
	alerts, err := t.provider.Alerts(ctx)
	if err != nil {
		return nil, err
	}
	return JSONResult(map[string]any{"alerts": alerts, "count": len(alerts)}), nil
}
