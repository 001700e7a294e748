// Package workflow executes pre-defined DAGs of tool calls. Templates fix
// the step graph up front so multi-step operations never depend on LLM
// reasoning about ordering.
package workflow

import (
	"time"
)

// Status is a workflow or step lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Step is one node of the DAG.
type Step struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ToolName     string         `json:"tool_name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Status       Status         `json:"status"`
	Result       any            `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	Condition    string         `json:"condition,omitempty"`
	SkipOnFail   bool           `json:"skip_on_failure,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMS   int64          `json:"duration_ms,omitempty"`
}

// Workflow is a DAG instance.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       []*Step        `json:"steps"`
	Status      Status         `json:"status"`
	Context     map[string]any `json:"context,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// step returns the step with the given id, or nil.
func (w *Workflow) step(id string) *Step {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// IsComplete reports whether no step can still make progress.
func (w *Workflow) IsComplete() bool {
	for _, s := range w.Steps {
		if s.Status == StatusPending || s.Status == StatusRunning {
			return false
		}
	}
	return true
}

// NextSteps returns pending steps whose dependencies have all completed.
func (w *Workflow) NextSteps() []*Step {
	var ready []*Step
	for _, s := range w.Steps {
		if s.Status != StatusPending {
			continue
		}
		ok := true
		for _, dep := range s.Dependencies {
			d := w.step(dep)
			if d == nil || d.Status != StatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	return ready
}

// hasPending reports whether any step is still pending.
func (w *Workflow) hasPending() bool {
	for _, s := range w.Steps {
		if s.Status == StatusPending {
			return true
		}
	}
	return false
}

// Summary is the compact progress view returned to the orchestrator.
type Summary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Status      Status  `json:"status"`
	Total       int     `json:"total_steps"`
	Completed   int     `json:"completed_steps"`
	Failed      int     `json:"failed_steps"`
	Skipped     int     `json:"skipped_steps"`
	Description string  `json:"description,omitempty"`
	Steps       []*Step `json:"steps,omitempty"`
}

// Summarize builds a Summary including step snapshots.
func (w *Workflow) Summarize() Summary {
	s := Summary{
		ID:          w.ID,
		Name:        w.Name,
		Status:      w.Status,
		Total:       len(w.Steps),
		Description: w.Description,
		Steps:       w.Steps,
	}
	for _, st := range w.Steps {
		switch st.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
