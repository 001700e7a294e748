package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

type fakeTool struct {
	name   string
	schema string
	level  models.SafetyLevel
	fn     func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func (t *fakeTool) Name() string                    { return t.name }
func (t *fakeTool) Description() string             { return "test tool" }
func (t *fakeTool) SafetyLevel() models.SafetyLevel { return t.level }

func (t *fakeTool) Schema() json.RawMessage {
	if t.schema == "" {
		return nil
	}
	return json.RawMessage(t.schema)
}

func (t *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.fn == nil {
		return TextResult("ok"), nil
	}
	return t.fn(ctx, params)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&fakeTool{name: "echo"}); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := r.Register(&fakeTool{name: "  "}); err == nil {
		t.Error("blank name accepted")
	}
	if err := r.Register(&fakeTool{name: "bad", schema: `{"type":`}); err == nil {
		t.Error("invalid schema accepted")
	}

	r.Seal()
	if err := r.Register(&fakeTool{name: "late"}); err == nil {
		t.Error("registration accepted after Seal")
	}
	if _, ok := r.Get("echo"); !ok {
		t.Error("Get(echo) = false after Seal")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil, nil, nil)
	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "ghost"})
	if models.KindOf(err) != models.ErrUnauthorized {
		t.Errorf("KindOf = %v, want %v", models.KindOf(err), models.ErrUnauthorized)
	}
}

func TestDispatchValidatesArguments(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{
		name:   "strict",
		schema: `{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(r, nil, nil, nil, nil)

	_, err := d.Dispatch(context.Background(), models.ToolCall{
		Name:      "strict",
		Arguments: json.RawMessage(`{"other":1}`),
	})
	if models.KindOf(err) != models.ErrBadRequest {
		t.Errorf("KindOf = %v, want %v", models.KindOf(err), models.ErrBadRequest)
	}

	res, err := d.Dispatch(context.Background(), models.ToolCall{
		ID:        "c1",
		Name:      "strict",
		Arguments: json.RawMessage(`{"q":"hello"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.ToolCallID != "c1" || res.Content != "ok" {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchEmptyArgumentsDefaultToObject(t *testing.T) {
	r := NewRegistry()
	var got string
	if err := r.Register(&fakeTool{
		name: "any",
		fn: func(_ context.Context, params json.RawMessage) (*Result, error) {
			got = string(params)
			return TextResult("done"), nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(r, nil, nil, nil, nil)
	if _, err := d.Dispatch(context.Background(), models.ToolCall{Name: "any"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got != "{}" {
		t.Errorf("params = %q, want {}", got)
	}
}

func TestDispatchTimeout(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{
		name: "slow",
		fn: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(r, nil, nil, nil, nil)
	d.timeout = 20 * time.Millisecond

	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "slow"})
	if models.KindOf(err) != models.ErrTimeout {
		t.Errorf("KindOf = %v, want %v", models.KindOf(err), models.ErrTimeout)
	}
}

func TestDispatchToolFailure(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{
		name: "broken",
		fn: func(context.Context, json.RawMessage) (*Result, error) {
			return nil, errors.New("backend refused")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(r, nil, nil, nil, nil)

	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "broken"})
	if models.KindOf(err) != models.ErrDependencyFailed {
		t.Errorf("KindOf = %v, want %v", models.KindOf(err), models.ErrDependencyFailed)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error = %v, want tool name included", err)
	}
}

func TestDispatchRecoversToolPanic(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{
		name: "explosive",
		fn: func(context.Context, json.RawMessage) (*Result, error) {
			panic("nil map write")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(r, nil, nil, nil, nil)

	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "explosive"})
	if err == nil {
		t.Fatal("panic swallowed without error")
	}
	if models.KindOf(err) != models.ErrInternal {
		t.Errorf("KindOf = %v, want %v", models.KindOf(err), models.ErrInternal)
	}
	if !strings.Contains(err.Error(), "explosive") {
		t.Errorf("error = %v, want tool name included", err)
	}
}

func TestDispatchSoftError(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{
		name: "soft",
		fn: func(context.Context, json.RawMessage) (*Result, error) {
			return ErrorResult("entity not found"), nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(r, nil, nil, nil, nil)

	res, err := d.Dispatch(context.Background(), models.ToolCall{Name: "soft"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.IsError || res.Content != "entity not found" {
		t.Errorf("result = %+v, want soft error surfaced", res)
	}
}
