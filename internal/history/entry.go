// internal/history/entry.go
package history

import (
	"time"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/planner"
)

// Observation is what the device layer reported before a step.
type Observation struct {
	// ScreenInfo is the textual screen state, such as the foreground app.
	ScreenInfo    string             `json:"screen_info"`
	Screenshot    *schemas.ImagePart `json:"-"`
	ScreenshotRef string             `json:"screenshot_ref,omitempty"`
}

// HistoryEntry is one executed step. Entries are immutable once appended.
type HistoryEntry struct {
	Step        int             `json:"step"`
	Action      actions.Action  `json:"action"`
	Observation Observation     `json:"observation"`
	Timestamp   time.Time       `json:"timestamp"`
	UserReply   string          `json:"user_reply,omitempty"`
	SubGoalID   int             `json:"sub_goal_id,omitempty"`
	Outcome     actions.Outcome `json:"outcome"`
}

func (e HistoryEntry) clone() HistoryEntry {
	e.Action = e.Action.Clone()
	return e
}

// QA is one question asked of the user and the reply received.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// Step is the number of entries recorded when the reply arrived.
	Step int `json:"step"`
}

// ConversationHistory is the full state of one task run.
type ConversationHistory struct {
	Task    string            `json:"task"`
	Entries []HistoryEntry    `json:"entries"`
	QALog   []QA              `json:"qa_log,omitempty"`
	Plan    *planner.TaskPlan `json:"plan,omitempty"`
}
