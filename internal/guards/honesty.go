package guards

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Honesty flags unsourced or absolute claims and can soften them in place.
type Honesty struct {
	// AutoHedge rewrites the first absolute claim with a hedge prefix.
	AutoHedge bool
}

func (Honesty) Name() string { return "honesty" }

var unsourcedClaimRe = regexp.MustCompile(`(?i)\b(studies show|research proves|all experts agree|it is well known|everyone knows)\b`)

var absoluteRe = regexp.MustCompile(`(?i)\b(always|never|impossible|everyone|no one|all of them)\b`)

var falseConfidenceRe = regexp.MustCompile(`(?i)\b(I know for sure|I'm 100% certain|trust me|without a doubt)\b`)

var disclaimerTopics = []struct {
	re    *regexp.Regexp
	topic string
}{
	{regexp.MustCompile(`(?i)\b(diagnos\w+|symptom|medication|dosage|treatment)\b`), "medical"},
	{regexp.MustCompile(`(?i)\b(lawsuit|liabilit\w+|contract law|legal advice)\b`), "legal"},
	{regexp.MustCompile(`(?i)\b(invest\w+|stock pick|portfolio|financial advice)\b`), "financial"},
}

var disclaimerRe = regexp.MustCompile(`(?i)\b(not (medical|legal|financial) advice|consult (a|your) (doctor|lawyer|professional|advisor))\b`)

func (h Honesty) Check(_ context.Context, text string, _ Options) Result {
	r := Result{Guard: "honesty", Passed: true, Confidence: 1.0, Metadata: map[string]any{}}

	if m := unsourcedClaimRe.FindString(text); m != "" {
		r.Warnings = append(r.Warnings, fmt.Sprintf("unsourced claim: %q", m))
	}
	if m := falseConfidenceRe.FindString(text); m != "" {
		r.Issues = append(r.Issues, fmt.Sprintf("false confidence: %q", m))
		r.Passed = false
	}
	for _, dt := range disclaimerTopics {
		if dt.re.MatchString(text) && !disclaimerRe.MatchString(text) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s topic without a disclaimer", dt.topic))
		}
	}

	if m := absoluteRe.FindStringIndex(text); m != nil {
		word := text[m[0]:m[1]]
		r.Warnings = append(r.Warnings, fmt.Sprintf("absolute claim: %q", word))
		if h.AutoHedge {
			r.Rewritten = text[:m[0]] + hedgeFor(word) + text[m[1]:]
		}
	}
	return r
}

// hedgeFor softens an absolute marker while keeping the sentence readable.
func hedgeFor(word string) string {
	switch strings.ToLower(word) {
	case "always":
		return "generally"
	case "never":
		return "rarely"
	case "impossible":
		return "unlikely"
	case "everyone":
		return "most people"
	case "no one":
		return "few people"
	default:
		return "typically " + word
	}
}
