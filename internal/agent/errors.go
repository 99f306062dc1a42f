// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a step failure.
type ErrorKind string

const (
	// -- Collaborator failures --
	KindCapture   ErrorKind = "CaptureError"   // The device layer could not produce an observation.
	KindTransport ErrorKind = "TransportError" // The model call failed or timed out.
	KindExecution ErrorKind = "ExecutionError" // The executor could not carry out the action.

	// -- Loop decisions --
	KindParse          ErrorKind = "ParseError"   // The model response was not a valid action.
	KindLoopDetected   ErrorKind = "LoopDetected" // Severe repetition replaced the candidate with ABORT.
	KindDecomposition  ErrorKind = "PlanDecompositionFailure"
	KindCancelled      ErrorKind = "Cancelled"
	KindUserUnanswered ErrorKind = "UserUnanswered" // No reply arrived while awaiting the user.
)

var (
	ErrLoopDetected             = errors.New("severe action loop detected")
	ErrParseBudgetExhausted     = errors.New("consecutive parse failure budget exhausted")
	ErrTransportBudgetExhausted = errors.New("consecutive model failure budget exhausted")
	ErrCaptureBudgetExhausted   = errors.New("consecutive capture failure budget exhausted")
	// ErrInteractionBudgetExhausted ends a run that keeps asking for help.
	ErrInteractionBudgetExhausted = errors.New("user interaction budget exhausted")
	// ErrNotAwaiting is returned by Reply when no question is pending.
	ErrNotAwaiting = errors.New("agent is not awaiting a reply")
	// ErrReplyTimeout ends a run whose question went unanswered.
	ErrReplyTimeout = errors.New("timed out waiting for a user reply")
)

// StepError is structured information about a failed step. It wraps the
// underlying cause.
type StepError struct {
	Kind ErrorKind
	Step int
	Err  error
}

func newStepError(kind ErrorKind, step int, err error) *StepError {
	return &StepError{Kind: kind, Step: step, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Fatal reports whether the error ended the run.
func (e *StepError) Fatal() bool {
	return errors.Is(e.Err, ErrLoopDetected) ||
		errors.Is(e.Err, ErrParseBudgetExhausted) ||
		errors.Is(e.Err, ErrTransportBudgetExhausted) ||
		errors.Is(e.Err, ErrCaptureBudgetExhausted) ||
		errors.Is(e.Err, ErrInteractionBudgetExhausted)
}
