// Package audit provides newline-delimited JSON audit logging for every
// externally-observable action the control plane takes. Records are written
// by a single dedicated goroutine consuming from a buffered channel, so
// producers never block on disk.
package audit

import "time"

// EventType identifies the category of an audit event.
type EventType string

const (
	EventSafetyCheck    EventType = "safety_check"
	EventOutputCheck    EventType = "output_check"
	EventToolInvocation EventType = "tool_invocation"
	EventToolCompletion EventType = "tool_completion"
	EventToolDenied     EventType = "tool_denied"
	EventApproval       EventType = "approval"
	EventWorkflow       EventType = "workflow"
	EventRateLimit      EventType = "rate_limit"
	EventRequest        EventType = "request"
)

// Event is a single audit record. Field ordering in the emitted JSON is
// irrelevant; ts is UNIX seconds as a float.
type Event struct {
	ID             string         `json:"id,omitempty"`
	TS             float64        `json:"ts"`
	Event          EventType      `json:"event"`
	Tool           string         `json:"tool,omitempty"`
	Allowed        *bool          `json:"allowed,omitempty"`
	Level          string         `json:"level,omitempty"`
	ViolationCount int            `json:"violation_count,omitempty"`
	Violations     []string       `json:"violations,omitempty"`
	User           string         `json:"user,omitempty"`
	ConvID         string         `json:"conv_id,omitempty"`
	TraceID        string         `json:"trace_id,omitempty"`
	Action         string         `json:"action,omitempty"`
	DurationMS     int64          `json:"duration_ms,omitempty"`
	Error          string         `json:"error,omitempty"`
	Details        map[string]any `json:"details,omitempty"`

	// Timestamp mirrors TS for human consumption when ISO format is enabled.
	Timestamp string `json:"timestamp,omitempty"`
}

// Bool returns a pointer for the Allowed field.
func Bool(v bool) *bool { return &v }

// now returns the current time; overridable in tests.
var now = time.Now
