package intent

import (
	"encoding/json"
	"strings"
)

// ExtractJSON parses a JSON object out of raw LLM output. Strategy:
//  1. strip markdown fences
//  2. direct parse
//  3. scan for the first balanced {...}, ignoring braces inside strings
//     (backslash escapes honoured), and parse that substring
func ExtractJSON(raw string) (map[string]any, bool) {
	candidate := StripFences(raw)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
		return parsed, true
	}

	obj, ok := firstBalancedObject(candidate)
	if !ok {
		return nil, false
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, returning the trimmed inner text.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first != "" && !strings.ContainsAny(first, "{}") {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// firstBalancedObject returns the first balanced top-level JSON object in s.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// MatchTag resolves a possibly-sloppy intent string against the closed set.
// Exact match wins; otherwise substring overlap in either direction; else
// general-chat.
func MatchTag(s string) Tag {
	candidate := Tag(strings.ToLower(strings.TrimSpace(s)))
	if tagSet[candidate] {
		return candidate
	}
	cs := string(candidate)
	for _, t := range AllTags {
		ts := string(t)
		if cs != "" && (strings.Contains(ts, cs) || strings.Contains(cs, ts)) {
			return t
		}
	}
	return TagGeneralChat
}
