package guards

import (
	"context"

	"github.com/haasonsaas/relay/internal/observability"
)

// PipelineResult aggregates a run over all guards.
type PipelineResult struct {
	Passed bool `json:"passed"`

	// Text is the final output, including any guard rewrites.
	Text string `json:"text"`

	Results []Result `json:"results"`
}

// Pipeline runs guards sequentially, applying rewrites and short-circuiting
// on blocking findings only.
type Pipeline struct {
	guards []Guard
	logger *observability.Logger
}

// NewPipeline builds the default hallucination → honesty → schema chain.
func NewPipeline(schema *Schema, logger *observability.Logger) *Pipeline {
	if schema == nil {
		schema = NewSchema()
	}
	return &Pipeline{
		guards: []Guard{Hallucination{}, Honesty{AutoHedge: true}, schema},
		logger: logger,
	}
}

// Run checks text with every guard in order. A blocking finding stops the
// chain; non-blocking findings accumulate and rewritten text feeds the next
// guard.
func (p *Pipeline) Run(ctx context.Context, text string, opts Options) PipelineResult {
	out := PipelineResult{Passed: true, Text: text}
	for _, g := range p.guards {
		r := g.Check(ctx, out.Text, opts)
		out.Results = append(out.Results, r)
		if r.Rewritten != "" {
			out.Text = r.Rewritten
		}
		if !r.Passed && p.logger != nil {
			p.logger.Warn(ctx, "guard finding", "guard", g.Name(), "issues", len(r.Issues), "blocking", r.Blocking)
		}
		if r.Blocking {
			out.Passed = false
			return out
		}
		if !r.Passed {
			out.Passed = false
		}
	}
	return out
}
