package store

import (
	"context"
	"errors"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/droidpilot/internal/actions"
)

// ErrNotFound is returned when a session ID does not exist.
var ErrNotFound = errors.New("session not found")

// Status is the lifecycle state of an archived session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused" // Waiting on ASK_USER or TAKE_OVER.
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusExhausted Status = "exhausted"
)

// Finished reports whether the session has reached a terminal state.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusExhausted
}

// finishedStatuses are eligible for pruning.
var finishedStatuses = []string{string(StatusCompleted), string(StatusAborted), string(StatusExhausted)}

// Session is one archived agent run.
type Session struct {
	ID              string    `json:"id"`
	Task            string    `json:"task"`
	Device          string    `json:"device,omitempty"`
	Status          Status    `json:"status"`
	StepCount       int       `json:"step_count"`
	Message         string    `json:"message,omitempty"`
	PendingQuestion string    `json:"pending_question,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StepRecord is the archived form of one history entry.
type StepRecord struct {
	SessionID   string          `json:"session_id"`
	Step        int             `json:"step"`
	Action      actions.Action  `json:"action"`
	Outcome     actions.Outcome `json:"outcome"`
	SubGoalID   int             `json:"sub_goal_id,omitempty"`
	LoopWarning string          `json:"loop_warning,omitempty"`
	Error       string          `json:"error,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// StatusUpdate changes the mutable fields of a session.
type StatusUpdate struct {
	Status          Status
	StepCount       int
	Message         string
	PendingQuestion string
}

// Filter narrows ListSessions. Zero fields match everything.
type Filter struct {
	Status Status
	Device string
	Limit  int
}

// Recorder archives sessions and their steps.
type Recorder interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	RecordStep(ctx context.Context, rec StepRecord) error
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) error
	GetSession(ctx context.Context, id string) (Session, []StepRecord, error)
	ListSessions(ctx context.Context, f Filter) ([]Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	// PruneSessions removes finished sessions not updated within olderThan.
	PruneSessions(ctx context.Context, olderThan time.Duration) (int, error)
	Close() error
}

func encodePayload(rec StepRecord) (action, outcome []byte, err error) {
	if action, err = json.Marshal(rec.Action); err != nil {
		return nil, nil, err
	}
	if outcome, err = json.Marshal(rec.Outcome); err != nil {
		return nil, nil, err
	}
	return action, outcome, nil
}

func decodePayload(rec *StepRecord, action, outcome []byte) error {
	if len(action) > 0 {
		if err := json.Unmarshal(action, &rec.Action); err != nil {
			return err
		}
	}
	if len(outcome) > 0 {
		if err := json.Unmarshal(outcome, &rec.Outcome); err != nil {
			return err
		}
	}
	return nil
}
