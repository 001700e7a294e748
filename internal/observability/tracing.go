package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer provides distributed tracing using OpenTelemetry.
//
// One span is created per HTTP request with nested spans per tool call and
// LLM inference. Trace context propagates across downstream HTTP calls via
// the W3C traceparent header (composite TextMap propagator set globally).
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
	recent   *spanLog
}

// recentSpanCap bounds the in-process span log.
const recentSpanCap = 256

// spanLog retains the most recently completed spans for in-process
// inspection. It implements sdktrace.SpanProcessor.
type spanLog struct {
	mu    sync.Mutex
	max   int
	spans []SpanRecord
}

// SpanRecord is one completed span from the in-process span log.
type SpanRecord struct {
	TraceID    string `json:"trace_id"`
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

func newSpanLog(max int) *spanLog { return &spanLog{max: max} }

func (l *spanLog) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (l *spanLog) OnEnd(s sdktrace.ReadOnlySpan) {
	rec := SpanRecord{
		TraceID:    s.SpanContext().TraceID().String(),
		Name:       s.Name(),
		DurationMS: s.EndTime().Sub(s.StartTime()).Milliseconds(),
		Status:     strings.ToLower(s.Status().Code.String()),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spans = append(l.spans, rec)
	if len(l.spans) > l.max {
		l.spans = l.spans[len(l.spans)-l.max:]
	}
}

func (l *spanLog) Shutdown(context.Context) error   { return nil }
func (l *spanLog) ForceFlush(context.Context) error { return nil }

// tail returns up to limit records whose name contains filter, newest first.
func (l *spanLog) tail(filter string, limit int) []SpanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []SpanRecord
	for i := len(l.spans) - 1; i >= 0 && len(out) < limit; i-- {
		if filter != "" && !strings.Contains(l.spans[i].Name, filter) {
			continue
		}
		out = append(out, l.spans[i])
	}
	return out
}

// TraceConfig configures the distributed tracing behavior.
type TraceConfig struct {
	// ServiceName identifies this service in traces
	ServiceName string

	// ServiceVersion identifies the service version
	ServiceVersion string

	// Environment specifies the deployment environment
	Environment string

	// Endpoint is the OTLP collector endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	Endpoint string

	// SamplingRate controls what fraction of traces are recorded (0.0 to 1.0).
	// Defaults to 1.0 if not specified.
	SamplingRate float64

	// EnableInsecure disables TLS for the OTLP connection (dev/testing only)
	EnableInsecure bool
}

// SpanOptions configures span creation behavior.
type SpanOptions struct {
	Kind       trace.SpanKind
	Attributes []attribute.KeyValue
}

// NewTracer creates a new tracer with the given configuration.
// Returns the tracer and a shutdown function that must be called on exit.
//
// Completed spans always land in a bounded in-process log (see Recent);
// OTLP export is added only when config.Endpoint is set.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "relay"
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	recent := newSpanLog(recentSpanCap)
	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(recent),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	exporting := false
	if config.Endpoint != "" {
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.Endpoint),
		}
		if config.EnableInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		// Exporter failure degrades to local-only tracing rather than
		// failing init.
		if exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...)); err == nil {
			providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
			exporting = true
		}
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)

	if exporting {
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	tracer := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
		recent:   recent,
	}

	return tracer, provider.Shutdown
}

// Recent returns up to limit recently completed spans, newest first,
// optionally filtered by a span-name substring.
func (t *Tracer) Recent(nameFilter string, limit int) []SpanRecord {
	if t.recent == nil || limit <= 0 {
		return nil
	}
	return t.recent.tail(nameFilter, limit)
}

// Start creates a new span and returns a context containing it.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	var options []trace.SpanStartOption

	if len(opts) > 0 {
		opt := opts[0]
		if opt.Kind != 0 {
			options = append(options, trace.WithSpanKind(opt.Kind))
		}
		if len(opt.Attributes) > 0 {
			options = append(options, trace.WithAttributes(opt.Attributes...))
		}
	}

	return t.tracer.Start(ctx, name, options...)
}

// RecordError records an error on the span and sets the span status to error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceRequest creates the server span for a chat request.
func (t *Tracer) TraceRequest(ctx context.Context, mode, conversationID string) (context.Context, trace.Span) {
	return t.Start(ctx, "chat.request", SpanOptions{
		Kind: trace.SpanKindServer,
		Attributes: []attribute.KeyValue{
			attribute.String("mode", mode),
			attribute.String("conversation_id", conversationID),
		},
	})
}

// TraceToolCall creates a client span for a tool dispatch.
func (t *Tracer) TraceToolCall(ctx context.Context, toolName, safetyLevel string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("tool.%s", toolName), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("tool", toolName),
			attribute.String("safety_level", safetyLevel),
		},
	})
}

// TraceInference creates a client span for an LLM call.
func (t *Tracer) TraceInference(ctx context.Context, role, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("llm.%s", role), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("llm.role", role),
			attribute.String("llm.model", model),
		},
	})
}

// GetTraceID extracts the trace ID from the context, or "" when absent.
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// GetSpanID extracts the span ID from the context, or "" when absent.
func GetSpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasSpanID() {
		return ""
	}
	return spanCtx.SpanID().String()
}
