// Package models contains the wire types shared across the Relay control
// plane: conversation messages, tool calls, safety classifications, and the
// typed error kinds the orchestrator converts into user-visible responses.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool. Name must resolve
// in the tool registry before the call reaches dispatch.
type ToolCall struct {
	ID        string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of a dispatched tool call.
type ToolResult struct {
	ToolCallID string `json:"call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Retries    int    `json:"retries,omitempty"`
}

// ChatRequest is the body of POST /chat/send.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

// ChatResponse is the body returned by POST /chat/send.
type ChatResponse struct {
	Response       string       `json:"response"`
	ToolCalls      []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult `json:"tool_results,omitempty"`
	ConversationID string       `json:"conversation_id"`
	Mode           string       `json:"mode"`
	LLMUsed        bool         `json:"llm_used"`
	Success        bool         `json:"success"`
	ModelUsed      string       `json:"model_used,omitempty"`
	ActionID       string       `json:"action_id,omitempty"`
	Error          *ErrorInfo   `json:"error,omitempty"`
}

// ErrorInfo is the user-visible error envelope attached to failed responses.
type ErrorInfo struct {
	Type string `json:"type"`
	Hint string `json:"hint,omitempty"`
}
