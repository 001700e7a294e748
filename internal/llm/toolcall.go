package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/pkg/models"
)

// fenceRe matches the first fenced block tagged tool_call or json, or
// untagged. The tag preference is handled by scanning tagged fences first.
var (
	toolCallFenceRe = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)```")
	jsonFenceRe     = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
	bareFenceRe     = regexp.MustCompile("(?s)```\\s*\\n(\\{.*?\\})\\s*```")
)

// ExtractToolCall scans generated text for the tool-call fence protocol and
// returns the parsed call plus the text with the fence removed. A malformed
// or nameless payload yields a nil call and the original text.
func ExtractToolCall(text string) (*models.ToolCall, string) {
	for _, re := range []*regexp.Regexp{toolCallFenceRe, jsonFenceRe, bareFenceRe} {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		payload := text[m[2]:m[3]]
		call := parseToolCall(payload)
		if call == nil {
			continue
		}
		cleaned := strings.TrimSpace(text[:m[0]] + text[m[1]:])
		return call, cleaned
	}

	// Last resort: a bare JSON object that happens to be a tool call.
	if obj, ok := intent.ExtractJSON(text); ok {
		if call := callFromMap(obj); call != nil {
			return call, ""
		}
	}
	return nil, text
}

func parseToolCall(payload string) *models.ToolCall {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &obj); err != nil {
		return nil
	}
	return callFromMap(obj)
}

func callFromMap(obj map[string]any) *models.ToolCall {
	name, _ := obj["name"].(string)
	if name == "" {
		return nil
	}
	args := json.RawMessage(`{}`)
	if m, ok := obj["arguments"].(map[string]any); ok {
		if data, err := json.Marshal(m); err == nil {
			args = data
		}
	}
	return &models.ToolCall{Name: name, Arguments: args}
}
