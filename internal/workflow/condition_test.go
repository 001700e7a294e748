package workflow

import "testing"

func TestEvalCondition(t *testing.T) {
	ctx := map[string]any{
		"target": "gateway",
		"count":  3,
	}

	tests := []struct {
		cond string
		want bool
	}{
		{"", true},
		{"true", true},
		{"false", false},
		{`$target == "gateway"`, true},
		{`$target == "media"`, false},
		{`$target != "media"`, true},
		{`$target != "gateway"`, false},
		{`$count == "3"`, true},
		{"$target exists", true},
		{"$missing exists", false},
		{`$missing == "x"`, false},
		{`$missing != "x"`, true},
		{"garbage input", false},
		{"$target", false},
	}
	for _, tt := range tests {
		if got := EvalCondition(tt.cond, ctx); got != tt.want {
			t.Errorf("EvalCondition(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}
}

func TestSubstituteArgs(t *testing.T) {
	ctx := map[string]any{
		"target":           "gateway",
		"step_logs_result": "err: timeout",
		"count":            5,
	}
	args := map[string]any{
		"service": "$target",
		"text":    "logs said $step_logs_result",
		"limit":   10,
		"query":   "$missing",
	}

	got := substituteArgs(args, ctx)
	if got["service"] != "gateway" {
		t.Errorf("service = %v, want gateway", got["service"])
	}
	if got["text"] != "logs said err: timeout" {
		t.Errorf("text = %v", got["text"])
	}
	if got["limit"] != 10 {
		t.Errorf("limit = %v, want 10 unchanged", got["limit"])
	}
	if got["query"] != "$missing" {
		t.Errorf("query = %v, want untouched $missing", got["query"])
	}
}
