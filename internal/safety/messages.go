package safety

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// maxWarningsShown caps how many violations appear in a rendered message.
const maxWarningsShown = 3

// ConfirmationMessage renders the canonical user-facing prompt for a
// RESTRICTED operation awaiting a yes/confirm turn.
func ConfirmationMessage(toolName string, args json.RawMessage, result models.SafetyCheckResult, actionID string) string {
	var b strings.Builder
	b.WriteString("⚠️ Confirmation required\n\n")
	fmt.Fprintf(&b, "Tool: %s\n", toolName)
	fmt.Fprintf(&b, "Safety level: %s\n", result.Level.String())
	writeArgs(&b, args)
	writeWarnings(&b, result.Violations)
	fmt.Fprintf(&b, "\nReply \"confirm\" to proceed or anything else to cancel. (action %s)\n", actionID)
	return b.String()
}

// ApprovalMessage renders the canonical user-facing notice for a DANGEROUS
// operation waiting on an operator grant.
func ApprovalMessage(toolName string, args json.RawMessage, result models.SafetyCheckResult, actionID string) string {
	var b strings.Builder
	b.WriteString("🛑 Operator approval required\n\n")
	fmt.Fprintf(&b, "Tool: %s\n", toolName)
	fmt.Fprintf(&b, "Safety level: %s\n", result.Level.String())
	writeArgs(&b, args)
	writeWarnings(&b, result.Violations)
	fmt.Fprintf(&b, "\nThe request is queued as action %s. An operator must approve it before it runs.\n", actionID)
	return b.String()
}

func writeArgs(b *strings.Builder, args json.RawMessage) {
	if len(args) == 0 {
		return
	}
	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil || len(parsed) == 0 {
		return
	}
	b.WriteString("Arguments:\n")
	for k, v := range parsed {
		fmt.Fprintf(b, "  %s: %v\n", k, v)
	}
}

func writeWarnings(b *strings.Builder, violations []models.PolicyViolation) {
	if len(violations) == 0 {
		return
	}
	b.WriteString("Warnings:\n")
	for i, v := range violations {
		if i >= maxWarningsShown {
			break
		}
		fmt.Fprintf(b, "  - %s\n", v.Message)
	}
}
