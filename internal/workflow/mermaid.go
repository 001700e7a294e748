package workflow

import (
	"fmt"
	"strings"
)

// ToMermaid renders the DAG as a Mermaid flowchart for the dashboard. Node
// style tracks step status.
func ToMermaid(w *Workflow) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, s := range w.Steps {
		label := s.Name
		if label == "" {
			label = s.ID
		}
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", s.ID, escapeMermaid(label))
		for _, dep := range s.Dependencies {
			fmt.Fprintf(&b, "    %s --> %s\n", dep, s.ID)
		}
	}
	for _, s := range w.Steps {
		switch s.Status {
		case StatusCompleted:
			fmt.Fprintf(&b, "    style %s fill:#9f9\n", s.ID)
		case StatusFailed:
			fmt.Fprintf(&b, "    style %s fill:#f99\n", s.ID)
		case StatusRunning:
			fmt.Fprintf(&b, "    style %s fill:#99f\n", s.ID)
		case StatusSkipped:
			fmt.Fprintf(&b, "    style %s fill:#ccc\n", s.ID)
		}
	}
	return b.String()
}

func escapeMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	return strings.ReplaceAll(s, "\n", " ")
}
