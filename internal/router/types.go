// Package router is the deterministic layer between classification and
// dispatch: it validates and repairs LLM-emitted tool calls, maps intents to
// registered tools, and extracts arguments from the original utterance. The
// LLM can suggest; only the router decides.
package router

import (
	"github.com/haasonsaas/relay/pkg/models"
)

// IntentCategory is the coarse request category.
type IntentCategory string

const (
	CategoryQuery    IntentCategory = "query"
	CategoryCommand  IntentCategory = "command"
	CategoryCreate   IntentCategory = "create"
	CategoryModify   IntentCategory = "modify"
	CategoryDelete   IntentCategory = "delete"
	CategoryAnalyze  IntentCategory = "analyze"
	CategoryDebug    IntentCategory = "debug"
	CategoryWorkflow IntentCategory = "workflow"
	CategoryClarify  IntentCategory = "clarify"
	CategoryUnknown  IntentCategory = "unknown"
)

// ClassifiedIntent is the router's view of a request.
type ClassifiedIntent struct {
	Category             IntentCategory     `json:"category"`
	Confidence           float64            `json:"confidence"`
	ToolSuggestion       string             `json:"tool_suggestion,omitempty"`
	WorkflowID           string             `json:"workflow_id,omitempty"`
	Parameters           map[string]any     `json:"parameters,omitempty"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	SafetyLevel          models.SafetyLevel `json:"safety_level"`
	Reasoning            string             `json:"reasoning,omitempty"`
}

// Correction is the outcome of repairing an LLM response.
type Correction struct {
	// Valid reports whether a usable tool call was recovered.
	Valid bool `json:"valid"`

	// ToolCall is the corrected call, when one was recovered.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Response is the plain-text fallback when no call was recovered.
	Response string `json:"response,omitempty"`

	// Corrections lists what the router changed, for debug surfacing.
	Corrections []string `json:"corrections,omitempty"`
}
