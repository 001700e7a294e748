package workflow

import (
	"fmt"
	"strings"
)

// EvalCondition evaluates the small step-condition grammar against a
// context:
//
//	$var == "lit"
//	$var != "lit"
//	$var exists
//	true | false
//
// An empty condition is true. A malformed condition is false, so a typo can
// never run a gated step.
func EvalCondition(condition string, ctx map[string]any) bool {
	cond := strings.TrimSpace(condition)
	switch cond {
	case "":
		return true
	case "true":
		return true
	case "false":
		return false
	}

	fields := strings.Fields(cond)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "$") {
		return false
	}
	name := strings.TrimPrefix(fields[0], "$")

	if len(fields) == 2 && fields[1] == "exists" {
		_, ok := ctx[name]
		return ok
	}
	if len(fields) < 3 {
		return false
	}

	value, ok := ctx[name]
	lit := strings.Trim(strings.Join(fields[2:], " "), `"`)
	switch fields[1] {
	case "==":
		return ok && fmt.Sprintf("%v", value) == lit
	case "!=":
		return !ok || fmt.Sprintf("%v", value) != lit
	default:
		return false
	}
}

// substituteArgs resolves $var references in string argument values from the
// workflow context. Non-string values and unknown variables pass through
// untouched.
func substituteArgs(args map[string]any, ctx map[string]any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		if strings.HasPrefix(s, "$") {
			if cv, found := ctx[strings.TrimPrefix(s, "$")]; found {
				out[k] = cv
				continue
			}
			out[k] = s
			continue
		}
		// Inline substitution for embedded $var references.
		for name, cv := range ctx {
			ref := "$" + name
			if strings.Contains(s, ref) {
				s = strings.ReplaceAll(s, ref, fmt.Sprintf("%v", cv))
			}
		}
		out[k] = s
	}
	return out
}
