package guards

import (
	"context"
	"fmt"
	"regexp"
)

// Hallucination flags responses that admit fabrication or hedge heavily
// while making confident numeric claims.
type Hallucination struct{}

func (Hallucination) Name() string { return "hallucination" }

var fabricationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI don't have access\b`),
	regexp.MustCompile(`(?i)\bas an AI\b`),
	regexp.MustCompile(`(?i)\bI just made (that |this |it )?up\b`),
	regexp.MustCompile(`(?i)\bI cannot verify\b`),
	regexp.MustCompile(`(?i)\bhypothetically speaking\b`),
}

var hedgingRe = regexp.MustCompile(`(?i)\b(might be|possibly|perhaps|could be|I think|probably|it seems)\b`)

var certaintyRe = regexp.MustCompile(`(?i)\b(always|never|definitely|certainly|absolutely|guaranteed)\b`)

var contradictionRe = regexp.MustCompile(`(?i)\b(however,? (that|this) is (not|wrong)|on second thought|actually,? no)\b`)

// numericClaimRe catches figures stated without a source marker nearby.
var numericClaimRe = regexp.MustCompile(`\b\d+(?:\.\d+)?%|\b\d{4,}\b`)

func (Hallucination) Check(_ context.Context, text string, opts Options) Result {
	r := Result{Guard: "hallucination", Passed: true, Confidence: 1.0, Metadata: map[string]any{}}

	for _, re := range fabricationPatterns {
		if m := re.FindString(text); m != "" {
			r.Issues = append(r.Issues, fmt.Sprintf("fabrication marker: %q", m))
		}
	}

	hedges := len(hedgingRe.FindAllString(text, -1))
	certainty := len(certaintyRe.FindAllString(text, -1))
	contradictions := len(contradictionRe.FindAllString(text, -1))
	numbers := len(numericClaimRe.FindAllString(text, -1))

	r.Metadata["hedging_count"] = hedges
	r.Metadata["certainty_count"] = certainty
	r.Metadata["contradiction_count"] = contradictions
	r.Metadata["numeric_claims"] = numbers

	if hedges >= 3 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("heavy hedging (%d markers)", hedges))
	}
	if contradictions > 0 {
		r.Issues = append(r.Issues, "self-contradiction marker present")
	}
	if certainty > 0 && numbers > 0 {
		r.Warnings = append(r.Warnings, "confident numeric claim without a cited source")
	}

	if len(r.Issues) > 0 {
		r.Passed = false
		r.Blocking = opts.Strict
		r.Confidence = 1.0 - 0.2*float64(len(r.Issues))
		if r.Confidence < 0.1 {
			r.Confidence = 0.1
		}
	}
	return r
}
