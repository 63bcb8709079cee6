// Package session persists and restores agent run state. A snapshot is a
// pure projection of Engine internals; restoring replaces them wholesale,
// never merging.
package session

import (
	"time"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
	"github.com/ChamsBouzaiene/datapilot/internal/plan"

	"github.com/google/uuid"
)

// SessionState is the persisted snapshot of one run.
type SessionState struct {
	SessionID   string           `json:"session_id"`
	Config      engine.Config    `json:"config"`
	Messages    []engine.Message `json:"messages"`
	RoundNum    int              `json:"round_num"`
	CurrentPlan *plan.State      `json:"current_plan,omitempty"`
}

// Meta is the listing view of a stored session.
type Meta struct {
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	RoundNum  int       `json:"round_num"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Snapshot captures an engine's state under the given session id.
func Snapshot(sessionID string, e *engine.Engine) SessionState {
	return SessionState{
		SessionID:   sessionID,
		Config:      e.Config(),
		Messages:    e.Messages(),
		RoundNum:    e.RoundNum(),
		CurrentPlan: e.Plan(),
	}
}

// Restore pushes a snapshot back into an engine.
func Restore(e *engine.Engine, st SessionState) {
	e.RestoreState(st.Messages, st.RoundNum, st.CurrentPlan)
}
