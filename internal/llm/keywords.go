// Package llm routes chat between two local model tiers: a fast talker for
// conversation and a heavy worker for code and analysis. The adapter hides
// model discovery, lazy loading, context-window bounds, and the tool-call
// fence protocol.
package llm

import "strings"

// Role names a model tier.
type Role string

const (
	RoleTalker Role = "talker"
	RoleWorker Role = "worker"
)

// workerKeywords route a request to the heavy model when present in the
// last user message.
var workerKeywords = []string{
	"implement",
	"fix",
	"edit",
	"create",
	"write",
	"code",
	"build",
	"refactor",
	"debug",
	"analyze",
	"analyse",
	"step by step",
	"architecture",
	"optimize",
	"review",
	"complex",
	"algorithm",
	"function",
	"script",
}

// NeedsWorker reports whether the text calls for the worker model.
func NeedsWorker(text string) bool {
	normalized := strings.ToLower(text)
	for _, kw := range workerKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// SelectRole picks a tier from the last user message.
func SelectRole(lastUserMessage string, forceWorker bool) Role {
	if forceWorker || NeedsWorker(lastUserMessage) {
		return RoleWorker
	}
	return RoleTalker
}
