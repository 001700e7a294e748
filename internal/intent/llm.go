package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/haasonsaas/relay/internal/observability"
)

// Generator is the slice of the LLM adapter the fallback classifier needs.
// The talker model serves classification; see internal/llm.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// GenerateOptions carries the sampling knobs the classifier pins down.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

const (
	llmTimeout     = 10 * time.Second
	llmTemperature = 0.1
	llmMaxTokens   = 100
	retryTempScale = 0.7

	// Confidence assigned when the LLM path degrades entirely.
	degradedConfidence = 0.3
	// Confidence assigned when extraction succeeded but the tag needed
	// fuzzy resolution or the payload was partial.
	salvagedConfidence = 0.5
	// Confidence assigned to a clean LLM classification.
	llmConfidence = 0.75
)

// llmClassifier wraps the talker model with prompt construction, defensive
// extraction, and request coalescing for identical utterances in flight.
type llmClassifier struct {
	gen     Generator
	logger  *observability.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

func newLLMClassifier(gen Generator, logger *observability.Logger, metrics *observability.Metrics) *llmClassifier {
	return &llmClassifier{gen: gen, logger: logger, metrics: metrics}
}

// classify asks the talker model for a tag. Identical utterances in flight
// share one inference via singleflight. Failure never propagates: the
// caller always gets a usable Result.
func (c *llmClassifier) classify(ctx context.Context, text string) Result {
	v, err, _ := c.group.Do(text, func() (any, error) {
		return c.classifyOnce(ctx, text), nil
	})
	if err != nil {
		return degraded()
	}
	return v.(Result)
}

func (c *llmClassifier) classifyOnce(ctx context.Context, text string) Result {
	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	prompt := buildPrompt(text)

	raw, err := c.gen.Generate(ctx, prompt, GenerateOptions{
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
	})
	if err != nil {
		// One retry at reduced temperature; a colder sample is more
		// likely to emit parseable JSON.
		raw, err = c.gen.Generate(ctx, prompt, GenerateOptions{
			Temperature: llmTemperature * retryTempScale,
			MaxTokens:   llmMaxTokens,
		})
	}
	if err != nil {
		if c.logger != nil {
			c.logger.Warn(ctx, "intent llm fallback failed", "error", err)
		}
		if c.metrics != nil {
			c.metrics.ErrorCounter.WithLabelValues("intent", "llm_unavailable").Inc()
		}
		return degraded()
	}

	return parseClassification(raw)
}

// parseClassification turns raw model output into a Result, salvaging what
// it can from malformed responses.
func parseClassification(raw string) Result {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return Result{Tag: TagGeneralChat, Confidence: salvagedConfidence, Parameters: map[string]any{}, UsedLLM: true}
	}

	tagStr, _ := obj["tag"].(string)
	if tagStr == "" {
		tagStr, _ = obj["intent"].(string)
	}
	tag := MatchTag(tagStr)

	params := map[string]any{}
	if p, ok := obj["parameters"].(map[string]any); ok {
		params = p
	}
	params = NormalizeParams(params)

	confidence := llmConfidence
	if Tag(strings.ToLower(strings.TrimSpace(tagStr))) != tag {
		confidence = salvagedConfidence
	}
	if conf, ok := obj["confidence"].(float64); ok && conf > 0 && conf <= 1 {
		confidence = conf
	}

	return Result{Tag: tag, Confidence: confidence, Parameters: params, UsedLLM: true}
}

func degraded() Result {
	return Result{Tag: TagGeneralChat, Confidence: degradedConfidence, Parameters: map[string]any{}, UsedLLM: true}
}

// buildPrompt enumerates the closed tag set with parameter contracts plus a
// handful of few-shot examples, and demands bare JSON.
func buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Classify the user message into exactly one intent tag.\n\nTags:\n")
	for _, t := range AllTags {
		fmt.Fprintf(&b, "- %s %s\n", t, paramContracts[t])
	}
	b.WriteString(`
Respond with only a JSON object: {"tag":"<tag>","parameters":{...}}

Examples:
Message: could you make it a bit cooler in here
{"tag":"home-ac-set-mode","parameters":{"action":"set_mode","mode":"cool"}}
Message: is there anything good to watch tonight
{"tag":"general-chat","parameters":{}}
Message: grab the latest season of severance
{"tag":"media-download","parameters":{"query":"severance","media_type":"show"}}
Message: kill the lamp in the study
{"tag":"home-light","parameters":{"action":"off","room":"office"}}

Message: `)
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}
