// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/history"
	"github.com/xkilldash9x/droidpilot/internal/planner"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// Observer reports the device state before each step.
type Observer interface {
	CaptureScreen(ctx context.Context) (schemas.Screenshot, error)
	// CurrentApp returns schemas.UnknownApp as the package when the
	// foreground app cannot be determined.
	CurrentApp(ctx context.Context) (schemas.AppInfo, error)
}

// Waker is implemented by observers that can turn the screen on.
type Waker interface {
	EnsureAwake(ctx context.Context, wake bool) (bool, error)
}

// Executor dispatches a validated action to the device. A returned error is
// recorded as an ExecutionError; the outcome is recorded either way.
type Executor interface {
	Execute(ctx context.Context, action actions.Action) (actions.Outcome, error)
}

// Planner decomposes tasks and tracks sub-goal progress.
type Planner interface {
	CreatePlan(ctx context.Context, task string) (*planner.TaskPlan, error)
	Advance(plan *planner.TaskPlan, action actions.Action, currentApp string, actionsOnGoal int) bool
	RecoveryHint(plan *planner.TaskPlan, stuckCount int, screenInfo string) string
}

// LoopChecker classifies the tail of a run as repetitive.
type LoopChecker interface {
	Check(entries []history.HistoryEntry, candidate *actions.Action) history.Detection
}

// Replier answers questions on the user's behalf in auto reply mode.
type Replier interface {
	Reply(ctx context.Context, task, question string) (string, error)
}

// Recorder archives the run. It is the write side of store.Recorder.
type Recorder interface {
	CreateSession(ctx context.Context, s store.Session) (store.Session, error)
	RecordStep(ctx context.Context, rec store.StepRecord) error
	UpdateStatus(ctx context.Context, id string, u store.StatusUpdate) error
}
