// Package plan holds the agent's checklist model and the parser that
// extracts it (along with code and answer blocks) from LLM responses.
package plan

import (
	"fmt"
	"strings"
)

// Step is a single numbered entry in the agent's plan.
type Step struct {
	Index       int    `json:"index"`       // 1-based, taken from the numbering in the text
	Description string `json:"description"` // Free-text description
	Completed   bool   `json:"completed"`   // Checkbox state ([x] vs [ ])
}

// State is an ordered checklist parsed from a <plan> block.
// A new State always replaces the previous one wholesale; states are
// never merged incrementally.
type State struct {
	Steps   []Step `json:"steps"`
	RawText string `json:"raw_text"`
}

// TotalSteps returns the number of steps in the plan.
func (s *State) TotalSteps() int { return len(s.Steps) }

// CompletedSteps returns the number of steps marked done.
func (s *State) CompletedSteps() int {
	n := 0
	for _, st := range s.Steps {
		if st.Completed {
			n++
		}
	}
	return n
}

// CurrentStep returns the first incomplete step, or nil when every step
// is complete. It is always recomputed from Steps, never cached.
func (s *State) CurrentStep() *Step {
	for i := range s.Steps {
		if !s.Steps[i].Completed {
			return &s.Steps[i]
		}
	}
	return nil
}

// PendingSteps returns the steps still marked incomplete, in order.
func (s *State) PendingSteps() []Step {
	var pending []Step
	for _, st := range s.Steps {
		if !st.Completed {
			pending = append(pending, st)
		}
	}
	return pending
}

// Complete reports whether every step is checked off.
func (s *State) Complete() bool {
	return s.CurrentStep() == nil
}

// Progress returns a compact "done/total" display string.
func (s *State) Progress() string {
	return fmt.Sprintf("%d/%d", s.CompletedSteps(), s.TotalSteps())
}

// Format renders the plan back into the checkbox wire format.
func (s *State) Format() string {
	var sb strings.Builder
	for i, st := range s.Steps {
		if i > 0 {
			sb.WriteString("\n")
		}
		mark := " "
		if st.Completed {
			mark = "x"
		}
		sb.WriteString(fmt.Sprintf("%d. [%s] %s", st.Index, mark, st.Description))
	}
	return sb.String()
}
