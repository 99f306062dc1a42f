// internal/agent/session.go
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/internal/history"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// Archive failures are logged and never affect the run. A failed
// CreateSession disables archiving for the rest of the run.

func (a *Agent) openSession(ctx context.Context, task string) {
	if a.deps.Recorder == nil {
		return
	}
	if _, err := a.deps.Recorder.CreateSession(ctx, store.Session{
		ID:     a.runID,
		Task:   task,
		Device: a.deps.Device,
		Status: store.StatusRunning,
	}); err != nil {
		a.logger.Warn("Failed to archive session, continuing without it", zap.Error(err))
		a.deps.Recorder = nil
	}
}

func (a *Agent) archiveStep(ctx context.Context, e history.HistoryEntry, warning string, stepErr *StepError) {
	if a.deps.Recorder == nil {
		return
	}
	rec := store.StepRecord{
		SessionID:   a.runID,
		Step:        e.Step,
		Action:      e.Action,
		Outcome:     e.Outcome,
		SubGoalID:   e.SubGoalID,
		LoopWarning: warning,
		RecordedAt:  e.Timestamp,
	}
	if stepErr != nil {
		rec.Error = stepErr.Error()
	}
	if err := a.deps.Recorder.RecordStep(context.WithoutCancel(ctx), rec); err != nil {
		a.logger.Warn("Failed to archive step", zap.Int("step", e.Step), zap.Error(err))
	}
}

func (a *Agent) updateSession(ctx context.Context, status store.Status, question string) {
	if a.deps.Recorder == nil {
		return
	}
	if err := a.deps.Recorder.UpdateStatus(context.WithoutCancel(ctx), a.runID, store.StatusUpdate{
		Status:          status,
		StepCount:       a.stepCount,
		PendingQuestion: question,
	}); err != nil {
		a.logger.Warn("Failed to update archived session", zap.String("status", string(status)), zap.Error(err))
	}
}

func (a *Agent) closeSession(ctx context.Context, res RunResult) {
	if a.deps.Recorder == nil {
		return
	}
	status := store.StatusAborted
	switch res.StopReason {
	case StopCompleted:
		status = store.StatusCompleted
	case StopExhausted:
		status = store.StatusExhausted
	}
	if err := a.deps.Recorder.UpdateStatus(context.WithoutCancel(ctx), a.runID, store.StatusUpdate{
		Status:    status,
		StepCount: res.StepCount,
		Message:   res.Message,
	}); err != nil {
		a.logger.Warn("Failed to close archived session", zap.Error(err))
	}
}
