package engine

import (
	"time"

	"github.com/ChamsBouzaiene/datapilot/internal/plan"
)

// EventType enumerates the lifecycle events emitted by the Engine.
type EventType string

const (
	EventAgentStarted    EventType = "agent_started"
	EventRoundStarted    EventType = "round_started"
	EventLLMCallStarted  EventType = "llm_call_started"
	EventLLMCallFinished EventType = "llm_call_finished"
	EventPlanUpdated     EventType = "plan_updated"
	EventCodeExecuting   EventType = "code_executing"
	EventCodeSuccess     EventType = "code_success"
	EventCodeFailed      EventType = "code_failed"
	EventAnswerAccepted  EventType = "answer_accepted"
	EventAgentError      EventType = "agent_error"
	EventRoundFinished   EventType = "round_finished"
	EventAgentFinished   EventType = "agent_finished"
)

// Event is one entry in the Engine's event stream. Events are emitted
// once, in order, and never mutated after emission.
type Event struct {
	Type      EventType   `json:"type"`
	Message   string      `json:"message,omitempty"`
	Plan      *plan.State `json:"plan,omitempty"` // set for plan_updated
	Round     int         `json:"round,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
