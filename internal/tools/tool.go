// Package tools defines the typed tool surface: the Tool interface, the
// registry with schema-checked registration, and the dispatcher that every
// execution funnels through.
package tools

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/relay/pkg/models"
)

// Tool is one capability exposed to the orchestrator.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// SafetyLevel is the default classification registered with the safety
	// engine at startup.
	SafetyLevel() models.SafetyLevel

	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is a tool's raw output before dispatch wraps it.
type Result struct {
	Content string          `json:"content,omitempty"`
	JSON    json.RawMessage `json:"json,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// TextResult wraps plain text output.
func TextResult(content string) *Result {
	return &Result{Content: content}
}

// JSONResult wraps structured output, keeping a printable rendering.
func JSONResult(payload any) *Result {
	data, err := json.Marshal(payload)
	if err != nil {
		return ErrorResult("encode result: " + err.Error())
	}
	return &Result{Content: string(data), JSON: data}
}

// ErrorResult wraps a tool-level failure the model should see.
func ErrorResult(msg string) *Result {
	return &Result{Content: msg, IsError: true}
}
