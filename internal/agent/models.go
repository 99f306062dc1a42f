// internal/agent/models.go
package agent

import (
	"time"

	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/history"
	"github.com/xkilldash9x/droidpilot/internal/planner"
)

// State is the phase of a run.
type State string

const (
	StateIdle         State = "IDLE"          // Created, Run not yet called.
	StateRunning      State = "RUNNING"       // Observing, deciding or acting.
	StateAwaitingUser State = "AWAITING_USER" // Suspended on ASK_USER or TAKE_OVER.
	StateTerminated   State = "TERMINATED"    // RunResult produced.
)

// StopReason says why a run terminated.
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopAborted   StopReason = "aborted"
	StopExhausted StopReason = "exhausted"
)

// StepResult is published to the host after every step attempt, including
// attempts that failed before dispatch.
type StepResult struct {
	RunID string `json:"run_id"`
	// Step is the history step number, or 0 when nothing was recorded.
	Step        int             `json:"step"`
	StepCount   int             `json:"step_count"`
	Action      actions.Action  `json:"action"`
	Outcome     actions.Outcome `json:"outcome"`
	Err         *StepError      `json:"-"`
	LoopWarning string          `json:"loop_warning,omitempty"`
	State       State           `json:"state"`
	SubGoalID   int             `json:"sub_goal_id,omitempty"`
	// Substituted is set when the loop replaced the model's action.
	Substituted bool `json:"substituted,omitempty"`
}

// UserQuery is published on Queries when the run suspends for the user.
type UserQuery struct {
	RunID    string       `json:"run_id"`
	Kind     actions.Kind `json:"kind"` // ASK_USER or TAKE_OVER
	Question string       `json:"question"`
}

// RunResult is the terminal state of a run.
type RunResult struct {
	RunID       string                      `json:"run_id"`
	Task        string                      `json:"task"`
	Success     bool                        `json:"success"`
	StopReason  StopReason                  `json:"stop_reason"`
	Message     string                      `json:"message"`
	StepCount   int                         `json:"step_count"`
	FinalAction *actions.Action             `json:"final_action,omitempty"`
	Plan        *planner.TaskPlan           `json:"plan,omitempty"`
	History     history.ConversationHistory `json:"history"`
	Errors      []error                     `json:"-"`
	Duration    time.Duration               `json:"duration"`
}
