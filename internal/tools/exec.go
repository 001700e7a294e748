package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// CommandResult mirrors the /command response payload.
type CommandResult struct {
	Output   string `json:"output"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// CommandRunner executes a shell command. Sandboxing, allow-listing, and
// working-directory policy all live behind this interface; the tool only
// shapes arguments and results.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*CommandResult, error)
}

// ExecuteCommandTool runs a shell command through the injected runner.
// Restricted: the safety engine requires confirmation before dispatch
// reaches this tool.
type ExecuteCommandTool struct {
	runner CommandRunner
}

func NewExecuteCommandTool(runner CommandRunner) *ExecuteCommandTool {
	return &ExecuteCommandTool{runner: runner}
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }

func (t *ExecuteCommandTool) Description() string {
	return "Run a shell command and return its output, stderr, and exit code."
}

func (t *ExecuteCommandTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "Shell command to execute.",
		},
	}, "command")
}

func (t *ExecuteCommandTool) SafetyLevel() models.SafetyLevel { return models.SafetyRestricted }

func (t *ExecuteCommandTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.runner == nil {
		return ErrorResult("command runner unavailable"), nil
	}
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return ErrorResult("command is required"), nil
	}

	result, err := t.runner.Run(ctx, command)
	if err != nil {
		return nil, err
	}
	out := JSONResult(result)
	out.IsError = result.ExitCode != 0
	return out, nil
}
