// Package engine implements the round-by-round planning loop that drives
// an LLM through plan, code and execution cycles until it produces an
// accepted answer.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/datapilot/internal/executor"
	"github.com/ChamsBouzaiene/datapilot/internal/plan"
)

// Recorder receives every code execution attempt for later reconstruction.
// The notebook package provides the production implementation.
type Recorder interface {
	TrackExecution(code string, res executor.Result, stepDesc string)
}

// Engine is the orchestrating state machine. It owns the conversation
// history, the current plan and the round counter; all three are mutated
// only from the goroutine running the loop. An Engine instance must not
// be shared across concurrent runs.
type Engine struct {
	cfg          Config
	llm          Caller
	exec         executor.Executor
	recorder     Recorder
	systemPrompt string

	messages    []Message
	currentPlan *plan.State
	roundNum    int
	answer      string
	runErr      error
}

// New creates an Engine. recorder may be nil when no reconstruction is
// wanted (e.g. in a dry run).
func New(cfg Config, llm Caller, exec executor.Executor, recorder Recorder, systemPrompt string) *Engine {
	return &Engine{
		cfg:          cfg,
		llm:          llm,
		exec:         exec,
		recorder:     recorder,
		systemPrompt: systemPrompt,
	}
}

// Run executes the loop synchronously, draining the event stream.
// It returns the final answer, or an error if the run ended on an
// unrecoverable LLM failure.
func (e *Engine) Run(ctx context.Context, task string) (string, error) {
	for range e.RunStream(ctx, task) {
	}
	if e.answer == "" && e.runErr != nil {
		return "", e.runErr
	}
	return e.answer, e.runErr
}

// RunStream executes the loop and streams lifecycle events. The channel
// is unbuffered: emission is synchronous and ordered, and there is exactly
// one consumer per run. The final event is always agent_finished.
func (e *Engine) RunStream(ctx context.Context, task string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		e.run(ctx, task, events)
	}()
	return events
}

func (e *Engine) emit(events chan<- Event, t EventType, message string) {
	events <- Event{Type: t, Message: message, Round: e.roundNum, Timestamp: time.Now()}
}

func (e *Engine) run(ctx context.Context, task string, events chan<- Event) {
	e.emit(events, EventAgentStarted, fmt.Sprintf("Starting task: %s", task))

	e.messages = []Message{
		{Role: RoleSystem, Content: e.systemPrompt},
		{Role: RoleUser, Content: fmt.Sprintf("Task: %s", task)},
	}
	e.roundNum = 0
	e.answer = ""
	e.runErr = nil

	for e.roundNum < e.cfg.MaxRounds {
		// Cancellation is honored between rounds only; in-flight calls
		// are never interrupted by the loop itself.
		if ctx.Err() != nil {
			e.runErr = ctx.Err()
			e.emit(events, EventAgentError, fmt.Sprintf("run aborted: %v", ctx.Err()))
			break
		}

		e.roundNum++
		e.emit(events, EventRoundStarted,
			fmt.Sprintf("Round %d/%d", e.roundNum, e.cfg.MaxRounds))

		e.emit(events, EventLLMCallStarted, "")
		response, err := e.llm.Call(ctx, e.messages)
		if err != nil {
			// A gateway failure is fatal: the ladder already did its work.
			e.runErr = err
			e.emit(events, EventAgentError, fmt.Sprintf("LLM error: %v", err))
			break
		}
		e.emit(events, EventLLMCallFinished, preview(response, 200))

		parsed := plan.Parse(response)

		if parsed.Plan != nil {
			// A later plan completely supersedes an earlier one.
			e.currentPlan = parsed.Plan
			events <- Event{
				Type:      EventPlanUpdated,
				Message:   parsed.UpdateReason,
				Plan:      parsed.Plan,
				Round:     e.roundNum,
				Timestamp: time.Now(),
			}
		}

		if parsed.HasAnswer {
			if pending := e.pendingSteps(); len(pending) > 0 {
				log.Printf("WARNING: rejecting early answer: %d steps still pending", len(pending))
				e.append(Message{Role: RoleAssistant, Content: response})
				e.append(Message{Role: RoleUser, Content: "Please complete all remaining plan steps before providing " +
					"the final answer. Some steps are still marked as [ ]."})
				continue
			}
			e.answer = parsed.Answer
			e.emit(events, EventAnswerAccepted, e.answer)
			break
		}

		if parsed.Code != "" {
			e.executeRound(ctx, events, response, parsed.Code)
		} else {
			e.append(Message{Role: RoleAssistant, Content: response})
			e.append(Message{Role: RoleUser, Content: "Please continue with the next step of your plan."})
		}

		e.emit(events, EventRoundFinished, "")
	}

	if e.roundNum >= e.cfg.MaxRounds && e.answer == "" {
		e.answer = fmt.Sprintf("Max rounds (%d) reached without completion.", e.cfg.MaxRounds)
		e.emit(events, EventAgentError, e.answer)
	}

	e.emit(events, EventAgentFinished, e.answer)
}

// executeRound runs one code block through the external executor, records
// the attempt, and feeds the outcome back into the conversation.
func (e *Engine) executeRound(ctx context.Context, events chan<- Event, response, code string) {
	e.emit(events, EventCodeExecuting, preview(code, 100))

	stepDesc := ""
	if e.currentPlan != nil {
		if cur := e.currentPlan.CurrentStep(); cur != nil {
			stepDesc = cur.Description
		}
	}

	res, err := e.exec.Execute(ctx, code)
	if err != nil {
		// Infrastructure failures are surfaced like any failed execution;
		// code execution is never fatal to the loop.
		res = executor.Result{Success: false, Error: err.Error(), Output: err.Error()}
	}

	if e.recorder != nil {
		e.recorder.TrackExecution(code, res, stepDesc)
	}

	outPreview := preview(res.Output, 500)
	if outPreview == "" {
		outPreview = "(no output)"
	}
	if res.Success {
		e.emit(events, EventCodeSuccess, outPreview)
	} else {
		e.emit(events, EventCodeFailed, outPreview)
	}

	e.append(Message{Role: RoleAssistant, Content: response})
	e.append(Message{Role: RoleUser, Content: buildFeedback(code, res)})
}

// buildFeedback formats an execution outcome for the next user turn.
// Output is ANSI-cleaned and hard-capped so a runaway print loop cannot
// blow up the conversation.
func buildFeedback(code string, res executor.Result) string {
	output := plan.CleanANSI(res.Output)
	if len(output) > maxFeedbackChars {
		output = output[:maxFeedbackChars] +
			fmt.Sprintf("\n... (truncated, %d chars total)", len(output))
	}

	var sb strings.Builder
	sb.WriteString("Code executed:\n```python\n")
	sb.WriteString(code)
	sb.WriteString("\n```\n\n")

	if res.Success {
		sb.WriteString("Output:\n")
		sb.WriteString(output)
		if n := len(res.Images); n > 0 {
			sb.WriteString(fmt.Sprintf("\n[%d image(s) generated]", n))
		}
	} else {
		sb.WriteString("Error:\n")
		sb.WriteString(output)
	}
	return sb.String()
}

func (e *Engine) pendingSteps() []plan.Step {
	// No plan ever stated means nothing to gate on.
	if e.currentPlan == nil {
		return nil
	}
	return e.currentPlan.PendingSteps()
}

func (e *Engine) append(msg Message) { e.messages = append(e.messages, msg) }

// Messages returns a copy of the conversation history.
func (e *Engine) Messages() []Message {
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// RoundNum returns the number of rounds executed so far.
func (e *Engine) RoundNum() int { return e.roundNum }

// Plan returns the current plan, or nil when no plan was ever stated.
func (e *Engine) Plan() *plan.State { return e.currentPlan }

// Answer returns the accepted (or synthesized) final answer.
func (e *Engine) Answer() string { return e.answer }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// RestoreState replaces the engine internals wholesale from a persisted
// snapshot. There are no partial-merge semantics.
func (e *Engine) RestoreState(messages []Message, roundNum int, currentPlan *plan.State) {
	e.messages = append([]Message(nil), messages...)
	e.roundNum = roundNum
	e.currentPlan = currentPlan
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
