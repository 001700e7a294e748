package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haasonsaas/relay/internal/observability"
)

// Redactor scrubs PII from a string before it is durably written.
// The safety engine supplies its redact_pii implementation here so that no
// sixteen-digit card number or SSN ever reaches the audit file.
type Redactor func(string) string

// Config configures the audit logger.
type Config struct {
	// Enabled controls whether events are recorded at all.
	Enabled bool `yaml:"enabled"`

	// Path is the audit log file. Empty writes to stdout (dev mode).
	Path string `yaml:"path"`

	// MaxSizeMB rotates the file when it exceeds this size (default 50).
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep (default 5).
	MaxBackups int `yaml:"max_backups"`

	// BufferSize is the producer channel capacity (default 1024).
	BufferSize int `yaml:"buffer_size"`

	// ISOTimestamps emits an ISO-8601 timestamp field alongside ts.
	ISOTimestamps bool `yaml:"iso_timestamps"`
}

// DefaultConfig returns the default audit configuration writing to
// <data_dir>/logs/security_audit.jsonl.
func DefaultConfig(dataDir string) Config {
	return Config{
		Enabled:    true,
		Path:       filepath.Join(dataDir, "logs", "security_audit.jsonl"),
		MaxSizeMB:  50,
		MaxBackups: 5,
		BufferSize: 1024,
	}
}

// Logger writes audit events as JSON lines with size-based rotation.
type Logger struct {
	config   Config
	redactor Redactor
	out      io.WriteCloser
	buffer   chan *Event
	done     chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once
}

// NewLogger creates an audit logger. redactor may be nil (no scrubbing).
func NewLogger(config Config, redactor Redactor) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 50
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}

	var out io.WriteCloser
	if config.Path == "" {
		out = os.Stdout
	} else {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, err
		}
		out = &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			Compress:   false,
		}
	}

	l := &Logger{
		config:   config,
		redactor: redactor,
		out:      out,
		buffer:   make(chan *Event, config.BufferSize),
		done:     make(chan struct{}),
	}

	l.wg.Add(1)
	go l.writeLoop()
	return l, nil
}

// Close drains buffered events and closes the output.
func (l *Logger) Close() error {
	if !l.config.Enabled {
		return nil
	}
	l.closed.Do(func() { close(l.done) })
	l.wg.Wait()
	if l.out != os.Stdout {
		return l.out.Close()
	}
	return nil
}

// Log records an event. Trace context is pulled from ctx when missing.
// If the buffer is full the event is written synchronously rather than
// dropped; audit records must not be lost under load.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if !l.config.Enabled || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.TS == 0 {
		t := now()
		event.TS = float64(t.UnixNano()) / float64(time.Second)
		if l.config.ISOTimestamps {
			event.Timestamp = t.UTC().Format(time.RFC3339Nano)
		}
	}
	if event.TraceID == "" {
		event.TraceID = observability.GetTraceID(ctx)
	}

	select {
	case l.buffer <- event:
	case <-l.done:
	default:
		l.writeEvent(event)
	}
}

// LogSafetyCheck records the outcome of a pre-execution safety check.
func (l *Logger) LogSafetyCheck(ctx context.Context, tool string, allowed bool, level string, violations []string, convID string) {
	l.Log(ctx, &Event{
		Event:          EventSafetyCheck,
		Tool:           tool,
		Allowed:        Bool(allowed),
		Level:          level,
		ViolationCount: len(violations),
		Violations:     violations,
		ConvID:         convID,
	})
}

// LogToolInvocation records a tool dispatch.
func (l *Logger) LogToolInvocation(ctx context.Context, tool, callID, convID string) {
	l.Log(ctx, &Event{
		Event:  EventToolInvocation,
		Tool:   tool,
		ConvID: convID,
		Details: map[string]any{
			"tool_call_id": callID,
		},
	})
}

// LogToolCompletion records a finished tool dispatch.
func (l *Logger) LogToolCompletion(ctx context.Context, tool, callID string, ok bool, duration time.Duration, convID string) {
	l.Log(ctx, &Event{
		Event:      EventToolCompletion,
		Tool:       tool,
		Allowed:    Bool(ok),
		ConvID:     convID,
		DurationMS: duration.Milliseconds(),
		Details: map[string]any{
			"tool_call_id": callID,
			"success":      ok,
		},
	})
}

// LogApproval records approval-queue activity.
func (l *Logger) LogApproval(ctx context.Context, tool, actionID, action string) {
	l.Log(ctx, &Event{
		Event:  EventApproval,
		Tool:   tool,
		Action: action,
		Details: map[string]any{
			"action_id": actionID,
		},
	})
}

// writeLoop is the single consumer of the event buffer.
func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-l.done:
			for {
				select {
				case event := <-l.buffer:
					l.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

// writeEvent marshals an event, scrubs PII, and appends the JSON line.
func (l *Logger) writeEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	line := string(data)
	if l.redactor != nil {
		line = l.redactor(line)
	}
	_, _ = io.WriteString(l.out, line+"\n")
}
