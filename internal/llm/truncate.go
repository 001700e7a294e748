package llm

import (
	"unicode/utf8"

	"github.com/haasonsaas/relay/pkg/models"
)

const (
	// charsPerToken is the conservative size estimate used for budgeting.
	charsPerToken = 4

	// reserveTokens is held back for the system prompt and the response.
	reserveTokens = 1500

	truncationBreadcrumb = "[Earlier conversation truncated]"
)

// ContextBudgetChars returns the character budget for history given the
// model context size.
func ContextBudgetChars(nCtx int) int {
	budget := (nCtx - reserveTokens) * charsPerToken
	if budget < charsPerToken {
		return charsPerToken
	}
	return budget
}

// TruncateHistory prunes messages to the context budget. Oldest messages are
// dropped first; the most recent user message always survives, its content
// cut to fit when it alone exceeds the budget. When anything was dropped, a
// system breadcrumb is prepended so the model knows history is partial.
func TruncateHistory(messages []models.Message, nCtx int) []models.Message {
	budget := ContextBudgetChars(nCtx)

	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	if total <= budget {
		return messages
	}

	lastUser := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			lastUser = i
			break
		}
	}

	// Drop oldest messages until the contiguous suffix fits.
	used := len(truncationBreadcrumb)
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if used+len(messages[i].Content) > budget {
			break
		}
		used += len(messages[i].Content)
		start = i
	}

	if lastUser >= 0 && start > lastUser {
		// The surviving suffix would lose the last user message. Keep from
		// that message onward and cut its content to fit.
		start = lastUser
		m := messages[lastUser]
		room := budget - len(truncationBreadcrumb)
		for i := lastUser + 1; i < len(messages); i++ {
			room -= len(messages[i].Content)
		}
		if room < 0 {
			room = 0
		}
		if room < len(m.Content) {
			m.Content = cutToFit(m.Content, room)
		}
		out := make([]models.Message, 0, len(messages)-start+1)
		out = append(out, models.Message{Role: models.RoleSystem, Content: truncationBreadcrumb})
		out = append(out, m)
		out = append(out, messages[lastUser+1:]...)
		return out
	}

	out := make([]models.Message, 0, len(messages)-start+1)
	out = append(out, models.Message{Role: models.RoleSystem, Content: truncationBreadcrumb})
	out = append(out, messages[start:]...)
	return out
}

// cutToFit truncates s so the result, ellipsis included, stays within budget
// bytes, backing up to a rune boundary so the cut never splits a character.
func cutToFit(s string, budget int) string {
	const ellipsis = "…"
	if budget >= len(s) {
		return s
	}
	cut := budget - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		if budget >= len(ellipsis) {
			return ellipsis
		}
		return ""
	}
	return s[:cut] + ellipsis
}
