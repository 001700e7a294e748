package intent

import (
	"context"
	"time"

	"github.com/haasonsaas/relay/internal/observability"
)

// Classifier is the two-stage intent classifier.
type Classifier struct {
	llm     *llmClassifier
	logger  *observability.Logger
	metrics *observability.Metrics
	nowFunc func() time.Time
}

// NewClassifier builds a classifier. gen may be nil, in which case the
// fallback stage degrades to general-chat.
func NewClassifier(gen Generator, logger *observability.Logger, metrics *observability.Metrics) *Classifier {
	c := &Classifier{logger: logger, metrics: metrics, nowFunc: time.Now}
	if gen != nil {
		c.llm = newLLMClassifier(gen, logger, metrics)
	}
	return c
}

// Classify runs the fast path and, when it misses and useLLM is set, the LLM
// fallback. It never returns an error: the worst case is general-chat.
func (c *Classifier) Classify(ctx context.Context, text string, useLLM bool) Result {
	start := c.nowFunc()

	result := ClassifyRules(text)
	if result.Confidence >= fastPathThreshold || !useLLM || c.llm == nil {
		result.ClassificationMS = c.nowFunc().Sub(start).Milliseconds()
		c.observe(ctx, result)
		return result
	}

	result = c.llm.classify(ctx, text)
	result.ClassificationMS = c.nowFunc().Sub(start).Milliseconds()
	c.observe(ctx, result)
	return result
}

func (c *Classifier) observe(ctx context.Context, result Result) {
	if c.logger != nil {
		c.logger.Debug(ctx, "intent classified",
			"tag", string(result.Tag),
			"confidence", result.Confidence,
			"used_llm", result.UsedLLM,
			"duration_ms", result.ClassificationMS,
		)
	}
}
