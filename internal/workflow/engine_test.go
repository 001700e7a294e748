package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// orderedExecutor records invocation order and returns canned results.
type orderedExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block chan struct{}
}

func (o *orderedExecutor) exec(ctx context.Context, tool string, args map[string]any) (any, error) {
	o.mu.Lock()
	o.calls = append(o.calls, tool)
	o.mu.Unlock()
	if o.block != nil {
		select {
		case <-o.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := o.fail[tool]; ok {
		return nil, err
	}
	return map[string]any{"tool": tool, "ok": true}, nil
}

func (o *orderedExecutor) index(tool string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.calls {
		if c == tool {
			return i
		}
	}
	return -1
}

func TestExecuteSystemCheck(t *testing.T) {
	exec := &orderedExecutor{}
	e := NewEngine(exec.exec, nil, nil, nil)

	w := e.Create("system_check", nil)
	if w == nil {
		t.Fatal("system_check template missing")
	}
	e.Execute(context.Background(), w, DefaultMaxConcurrent)

	if w.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", w.Status)
	}
	for _, s := range w.Steps {
		if s.Status != StatusCompleted {
			t.Errorf("step %s status = %s, want completed", s.ID, s.Status)
		}
		if s.StartedAt == nil || s.CompletedAt == nil {
			t.Errorf("step %s missing timestamps", s.ID)
		}
	}

	// Dependency ordering: health first, alerts after metrics.
	if exec.index("check_health") > exec.index("get_metrics") {
		t.Error("get_metrics ran before its dependency check_health")
	}
	if exec.index("check_health") > exec.index("get_model_status") {
		t.Error("get_model_status ran before its dependency check_health")
	}
	if exec.index("get_metrics") > exec.index("get_alerts") {
		t.Error("get_alerts ran before its dependency get_metrics")
	}

	// Results are mirrored into the context.
	if _, ok := w.Context["step_check_health_result"]; !ok {
		t.Error("step result not mirrored into workflow context")
	}
}

func TestExecuteFailedDependencyPropagates(t *testing.T) {
	exec := &orderedExecutor{fail: map[string]error{"get_metrics": errors.New("scrape failed")}}
	e := NewEngine(exec.exec, nil, nil, nil)

	w := e.Create("system_check", nil)
	e.Execute(context.Background(), w, DefaultMaxConcurrent)

	if w.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", w.Status)
	}
	var alerts *Step
	for _, s := range w.Steps {
		if s.ID == "get_alerts" {
			alerts = s
		}
	}
	if alerts == nil {
		t.Fatal("get_alerts step missing")
	}
	if alerts.Status != StatusSkipped {
		t.Errorf("get_alerts status = %s, want skipped", alerts.Status)
	}
	if alerts.Error == "" {
		t.Error("skipped dependent has no error note")
	}
	if exec.index("get_alerts") != -1 {
		t.Error("get_alerts executed despite failed dependency")
	}
}

func TestExecuteConditionSkip(t *testing.T) {
	exec := &orderedExecutor{}
	e := NewEngine(exec.exec, nil, nil, nil)

	w := e.Create("system_check", nil)
	// Gate the leaf step on a variable that is absent.
	for _, s := range w.Steps {
		if s.ID == "get_alerts" {
			s.Condition = `$deep_check == "true"`
		}
	}
	e.Execute(context.Background(), w, DefaultMaxConcurrent)

	if w.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", w.Status)
	}
	for _, s := range w.Steps {
		if s.ID == "get_alerts" && s.Status != StatusSkipped {
			t.Errorf("gated step status = %s, want skipped", s.Status)
		}
	}
	if exec.index("get_alerts") != -1 {
		t.Error("gated step executed")
	}
}

func TestExecuteCancel(t *testing.T) {
	exec := &orderedExecutor{block: make(chan struct{})}
	e := NewEngine(exec.exec, nil, nil, nil)

	w := e.Create("system_check", nil)
	done := make(chan struct{})
	go func() {
		e.Execute(context.Background(), w, DefaultMaxConcurrent)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for exec.index("check_health") == -1 {
		select {
		case <-deadline:
			t.Fatal("first step never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !e.Cancel(w.ID) {
		t.Fatal("Cancel returned false for a running workflow")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workflow did not stop after cancel")
	}
	if w.Status != StatusFailed {
		t.Errorf("Status = %s, want failed after cancel", w.Status)
	}
	if exec.index("get_alerts") != -1 {
		t.Error("step started after cancellation")
	}
}

func TestExecuteMaxConcurrent(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	executor := func(ctx context.Context, tool string, args map[string]any) (any, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return "ok", nil
	}
	e := NewEngine(executor, nil, nil, nil)

	// Six independent steps; waves of 2 keep peak at 2.
	w := &Workflow{Name: "fanout"}
	for i := 0; i < 6; i++ {
		w.Steps = append(w.Steps, &Step{ID: fmt.Sprintf("s%d", i), ToolName: "noop", Status: StatusPending})
	}
	w.Context = map[string]any{}
	e.mu.Lock()
	e.workflows["fanout"] = w
	w.ID = "fanout"
	e.mu.Unlock()

	e.Execute(context.Background(), w, 2)
	if w.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", w.Status)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestCreateUnknownTemplate(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil)
	if w := e.Create("no_such_template", nil); w != nil {
		t.Errorf("Create returned %v for an unknown template", w)
	}
}

func TestListTemplates(t *testing.T) {
	names := ListTemplates()
	want := []string{"analyze", "debug", "diagnose", "generate_validate", "security_audit", "system_check"}
	if len(names) != len(want) {
		t.Fatalf("ListTemplates = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListTemplates[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		category string
		text     string
		want     string
	}{
		{"", "run a security audit", "security_audit"},
		{"", "do a full system check", "system_check"},
		{"", "debug the gateway", "debug"},
		{"", "diagnose the media service", "diagnose"},
		{"", "analyze request latency", "analyze"},
		{"workflow", "kick off the usual", "system_check"},
		{"", "turn on the lights", ""},
	}
	for _, tt := range tests {
		if got := Detect(tt.category, tt.text); got != tt.want {
			t.Errorf("Detect(%q, %q) = %q, want %q", tt.category, tt.text, got, tt.want)
		}
	}
}

func TestToMermaid(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil)
	w := e.Create("system_check", nil)
	out := ToMermaid(w)
	if want := "graph TD"; len(out) == 0 || out[:len(want)] != want {
		t.Fatalf("mermaid output missing header: %q", out)
	}
	for _, edge := range []string{"check_health --> get_metrics", "get_metrics --> get_alerts"} {
		if !strings.Contains(out, edge) {
			t.Errorf("mermaid output missing edge %q", edge)
		}
	}
}
