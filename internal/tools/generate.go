package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/internal/guards"
	"github.com/haasonsaas/relay/pkg/models"
)

// TextGenerator produces free-form text, optionally pinned to the worker tier.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, forceWorker bool) (string, error)
}

// GenerateTool exposes raw text generation as a tool so workflows can chain
// model output into later steps.
type GenerateTool struct {
	generator TextGenerator
}

func NewGenerateTool(generator TextGenerator) *GenerateTool {
	return &GenerateTool{generator: generator}
}

func (t *GenerateTool) Name() string { return "generate_text" }

func (t *GenerateTool) Description() string {
	return "Generate text from a prompt. Set force_worker for code and reasoning tasks."
}

func (t *GenerateTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"prompt": map[string]any{
			"type":        "string",
			"description": "Prompt to generate from.",
		},
		"force_worker": map[string]any{
			"type":        "boolean",
			"description": "Route to the worker model regardless of prompt keywords.",
		},
	}, "prompt")
}

func (t *GenerateTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *GenerateTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.generator == nil {
		return ErrorResult("language model unavailable"), nil
	}
	var input struct {
		Prompt      string `json:"prompt"`
		ForceWorker bool   `json:"force_worker"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return ErrorResult("prompt is required"), nil
	}
	text, err := t.generator.GenerateText(ctx, prompt, input.ForceWorker)
	if err != nil {
		return nil, err
	}
	return JSONResult(map[string]any{"text": text, "force_worker": input.ForceWorker}), nil
}

// GuardRunner is the slice of the guard pipeline the check tool needs.
type GuardRunner interface {
	Run(ctx context.Context, text string, opts guards.Options) guards.PipelineResult
}

// GuardCheckTool runs the output-guard pipeline over arbitrary text, the
// validation half of generate-then-validate workflows.
type GuardCheckTool struct {
	runner GuardRunner
}

func NewGuardCheckTool(runner GuardRunner) *GuardCheckTool {
	return &GuardCheckTool{runner: runner}
}

func (t *GuardCheckTool) Name() string { return "check_guards" }

func (t *GuardCheckTool) Description() string {
	return "Run the hallucination, honesty, and schema guards over a text."
}

func (t *GuardCheckTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"text": map[string]any{
			"type":        "string",
			"description": "Text to validate.",
		},
		"strict": map[string]any{
			"type":        "boolean",
			"description": "Make hallucination findings blocking.",
		},
	}, "text")
}

func (t *GuardCheckTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *GuardCheckTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.runner == nil {
		return ErrorResult("guard pipeline unavailable"), nil
	}
	var input struct {
		Text   string `json:"text"`
		Strict bool   `json:"strict"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return ErrorResult("text is required"), nil
	}
	result := t.runner.Run(ctx, input.Text, guards.Options{Strict: input.Strict})
	return JSONResult(map[string]any{
		"passed": result.Passed,
		"guards": result.Results,
		"text":   result.Text,
	}), nil
}
