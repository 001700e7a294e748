package llm

import (
	"fmt"
	"strings"
)

// Mode selects the system-prompt flavour.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeMCP     Mode = "mcp"
	ModeAI      Mode = "ai"
	ModeDebug   Mode = "debug"
)

const rolePreamble = "You are Relay, a local assistant. Keep replies concise and factual. " +
	"If a task needs a tool, emit a tool call instead of describing the action."

var modeSnippets = map[Mode]string{
	ModeGeneral: "Answer conversationally. Prefer short replies.",
	ModeMCP:     "You are operating as a tool backend. Respond with structured output only when asked.",
	ModeAI:      "You may reason about system internals, models, and metrics. Cite tool results, never invent them.",
	ModeDebug:   "Debug mode: include your reasoning and any corrections applied to your output.",
}

// ToolSummary is one catalog line for the system prompt.
type ToolSummary struct {
	Name        string
	Description string
}

// SystemPrompt composes the role preamble, the mode snippet, and the tool
// catalog with the fence syntax.
func SystemPrompt(mode Mode, tools []ToolSummary) string {
	var b strings.Builder
	b.WriteString(rolePreamble)
	b.WriteString("\n\n")

	snippet, ok := modeSnippets[mode]
	if !ok {
		snippet = modeSnippets[ModeGeneral]
	}
	b.WriteString(snippet)

	if len(tools) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
		b.WriteString("\nTo call a tool, reply with exactly one fenced block:\n")
		b.WriteString("```tool_call\n{\"name\": \"<tool>\", \"arguments\": {}}\n```\n")
	}
	return b.String()
}
