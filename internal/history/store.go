// internal/history/store.go
package history

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/planner"
)

// Store is the append-only record of a single run. It is owned by one agent
// and is not safe for concurrent mutation.
type Store struct {
	logger  *zap.Logger
	history ConversationHistory

	// pendingReply is a user answer not yet attached to an entry.
	pendingReply *QA
	loopWarning  string
	now          func() time.Time
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger: logger.Named("history"),
		now:    time.Now,
	}
}

// StartTask discards any previous run and begins a new one. The plan's
// first sub-goal is marked in progress. plan may be nil.
func (s *Store) StartTask(task string, plan *planner.TaskPlan) {
	s.history = ConversationHistory{Task: task, Plan: plan}
	s.pendingReply = nil
	s.loopWarning = ""
	if plan != nil {
		plan.Start()
	}
	s.logger.Debug("Task started", zap.String("task", task), zap.Bool("planned", plan != nil))
}

// AppendStep records an executed action and returns the stored entry. The
// entry is attributed to the plan's current sub-goal and picks up any
// pending user reply.
func (s *Store) AppendStep(a actions.Action, obs Observation, outcome actions.Outcome) HistoryEntry {
	entry := HistoryEntry{
		Step:        len(s.history.Entries) + 1,
		Action:      a.Clone(),
		Observation: obs,
		Timestamp:   s.now(),
		SubGoalID:   s.history.Plan.CurrentID(),
		Outcome:     outcome,
	}
	if s.pendingReply != nil {
		entry.UserReply = s.pendingReply.Answer
		s.pendingReply = nil
	}
	s.history.Entries = append(s.history.Entries, entry)
	s.loopWarning = ""

	s.logger.Debug("Step recorded",
		zap.Int("step", entry.Step),
		zap.String("action", a.Describe()),
		zap.Bool("success", outcome.Success),
		zap.Int("sub_goal", entry.SubGoalID),
	)
	return entry.clone()
}

// RecordReply logs a user answer. It is shown in the next context and then
// attached to the next appended entry.
func (s *Store) RecordReply(question, answer string) {
	qa := QA{Question: question, Answer: answer, Step: len(s.history.Entries)}
	s.history.QALog = append(s.history.QALog, qa)
	s.pendingReply = &qa
}

// SetLoopWarning exposes a loop warning in contexts built before the next
// AppendStep.
func (s *Store) SetLoopWarning(msg string) {
	s.loopWarning = msg
}

// Task returns the task text of the current run.
func (s *Store) Task() string { return s.history.Task }

// Len returns the number of recorded entries.
func (s *Store) Len() int { return len(s.history.Entries) }

// Entries returns copies of all recorded entries.
func (s *Store) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history.Entries))
	for i, e := range s.history.Entries {
		out[i] = e.clone()
	}
	return out
}

// Last returns the most recent entry.
func (s *Store) Last() (HistoryEntry, bool) {
	if len(s.history.Entries) == 0 {
		return HistoryEntry{}, false
	}
	return s.history.Entries[len(s.history.Entries)-1].clone(), true
}

// QALog returns the questions asked so far and their answers.
func (s *Store) QALog() []QA {
	return append([]QA(nil), s.history.QALog...)
}

// Plan returns a copy of the run's plan, or nil.
func (s *Store) Plan() *planner.TaskPlan {
	return s.history.Plan.Clone()
}

// ActionsOnSubGoal counts how many of the last window entries belong to the
// given sub-goal. A window of zero or less counts all entries.
func (s *Store) ActionsOnSubGoal(id, window int) int {
	entries := s.history.Entries
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	n := 0
	for _, e := range entries {
		if e.SubGoalID == id {
			n++
		}
	}
	return n
}

// Snapshot returns a deep copy of the run state for hosts and archives.
func (s *Store) Snapshot() ConversationHistory {
	return ConversationHistory{
		Task:    s.history.Task,
		Entries: s.Entries(),
		QALog:   s.QALog(),
		Plan:    s.Plan(),
	}
}
