// Package guards validates LLM output before it reaches the user. Guards
// report findings, never errors: a finding can block or transform the text,
// but a guard must not fail the request.
package guards

import "context"

// Result is one guard's findings over a piece of text.
type Result struct {
	Guard    string `json:"guard"`
	Passed   bool   `json:"passed"`
	Blocking bool   `json:"blocking,omitempty"`

	// Issues are hard findings; Warnings are advisory.
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Confidence is the guard's certainty in its findings, [0,1].
	Confidence float64 `json:"confidence"`

	// Rewritten holds transformed text when the guard adjusted the output.
	Rewritten string `json:"rewritten,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Options tunes a pipeline run.
type Options struct {
	// Strict makes hallucination findings blocking.
	Strict bool

	// SchemaName selects a registered schema; empty skips the schema guard.
	SchemaName string

	// SchemaRequired makes a schema failure blocking.
	SchemaRequired bool
}

// Guard checks one aspect of generated text.
type Guard interface {
	Name() string
	Check(ctx context.Context, text string, opts Options) Result
}
