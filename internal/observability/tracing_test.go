package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestNewTracerLocalOnlyWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "relay-test"})
	if tracer == nil {
		t.Fatal("tracer is nil")
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	// Spans must be usable without an export endpoint.
	ctx, span := tracer.TraceRequest(context.Background(), "general", "conv-1")
	if ctx == nil || span == nil {
		t.Fatal("no span context from local-only tracer")
	}
	tracer.RecordError(span, errors.New("boom"))
	span.End()
}

func TestRecentSpans(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "relay-test"})
	defer shutdown(context.Background())

	_, span := tracer.TraceToolCall(context.Background(), "get_time", "safe")
	span.End()
	_, span = tracer.TraceToolCall(context.Background(), "check_health", "safe")
	tracer.RecordError(span, errors.New("down"))
	span.End()
	_, span = tracer.TraceInference(context.Background(), "talker", "llama3")
	span.End()

	records := tracer.Recent("tool.", 10)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 tool spans", len(records))
	}
	// Newest first.
	if records[0].Name != "tool.check_health" || records[1].Name != "tool.get_time" {
		t.Errorf("records = %+v", records)
	}
	if records[0].Status != "error" {
		t.Errorf("status = %q, want error", records[0].Status)
	}
	if records[0].TraceID == "" {
		t.Error("trace id missing")
	}

	if got := tracer.Recent("tool.", 1); len(got) != 1 || got[0].Name != "tool.check_health" {
		t.Errorf("limited records = %+v", got)
	}
	if got := tracer.Recent("", 0); got != nil {
		t.Errorf("zero limit returned %+v", got)
	}
}

func TestTraceToolCallAndInference(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	ctx, span := tracer.TraceToolCall(context.Background(), "get_time", "safe")
	span.End()
	_, span = tracer.TraceInference(ctx, "talker", "llama3")
	span.End()
}

func TestGetTraceIDEmptyWithoutSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("trace id = %q, want empty", id)
	}
	if id := GetSpanID(context.Background()); id != "" {
		t.Errorf("span id = %q, want empty", id)
	}
}

func TestGetTraceIDFromSpanContext(t *testing.T) {
	traceID := trace.TraceID{0x01}
	spanID := trace.SpanID{0x02}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	if got := GetTraceID(ctx); got != traceID.String() {
		t.Errorf("trace id = %q", got)
	}
	if got := GetSpanID(ctx); got != spanID.String() {
		t.Errorf("span id = %q", got)
	}
}
