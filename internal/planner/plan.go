// internal/planner/plan.go
package planner

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a sub-goal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Source records where a plan came from.
type Source string

const (
	SourceTemplate Source = "template" // Matched a library template.
	SourceModel    Source = "model"    // Decomposed by the fast model.
	SourceDefault  Source = "default"  // Generic two-step fallback.
)

// SubGoal is one checkable milestone of a task.
type SubGoal struct {
	ID           int    `json:"id"`
	Description  string `json:"description"`
	Status       Status `json:"status"`
	TargetApp    string `json:"target_app,omitempty"`
	Verification string `json:"verification,omitempty"`
}

// TaskPlan is the ordered decomposition of a task. At most one sub-goal is
// in progress at a time, and it is always SubGoals[CurrentIndex].
type TaskPlan struct {
	OriginalTask string    `json:"original_task"`
	SubGoals     []SubGoal `json:"sub_goals"`
	CurrentIndex int       `json:"current_index"`
	Notes        []string  `json:"notes,omitempty"`
	Source       Source    `json:"source"`
	TemplateName string    `json:"template_name,omitempty"`
}

// maxRenderedNotes bounds how many notes appear in the progress block.
const maxRenderedNotes = 3

func newPlan(task string, source Source, steps []Step) *TaskPlan {
	plan := &TaskPlan{OriginalTask: task, Source: source}
	for i, s := range steps {
		plan.SubGoals = append(plan.SubGoals, SubGoal{
			ID:           i + 1,
			Description:  s.Description,
			Status:       StatusPending,
			TargetApp:    s.TargetApp,
			Verification: s.Verification,
		})
	}
	return plan
}

// Start marks the current sub-goal in progress. It is a no-op when the plan
// is complete or already started.
func (p *TaskPlan) Start() {
	if g := p.Current(); g != nil && g.Status == StatusPending {
		g.Status = StatusInProgress
	}
}

// Current returns the sub-goal being worked on, or nil once every sub-goal
// has been passed.
func (p *TaskPlan) Current() *SubGoal {
	if p == nil || p.CurrentIndex < 0 || p.CurrentIndex >= len(p.SubGoals) {
		return nil
	}
	return &p.SubGoals[p.CurrentIndex]
}

// CurrentID returns the ID of the current sub-goal, or 0.
func (p *TaskPlan) CurrentID() int {
	if g := p.Current(); g != nil {
		return g.ID
	}
	return 0
}

// IsComplete reports whether every sub-goal is completed.
func (p *TaskPlan) IsComplete() bool {
	for _, g := range p.SubGoals {
		if g.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Remaining counts sub-goals that are not completed.
func (p *TaskPlan) Remaining() int {
	n := 0
	for _, g := range p.SubGoals {
		if g.Status != StatusCompleted {
			n++
		}
	}
	return n
}

// CompleteCurrent marks the current sub-goal completed and starts the next.
// It reports false when there was nothing to complete.
func (p *TaskPlan) CompleteCurrent() bool {
	g := p.Current()
	if g == nil {
		return false
	}
	g.Status = StatusCompleted
	p.CurrentIndex++
	p.Start()
	return true
}

// FailCurrent marks the current sub-goal failed and notes why.
func (p *TaskPlan) FailCurrent(reason string) {
	g := p.Current()
	if g == nil {
		return
	}
	g.Status = StatusFailed
	p.AddNote(fmt.Sprintf("step %d failed: %s", g.ID, reason))
}

// AddNote appends an execution note. Empty notes are dropped.
func (p *TaskPlan) AddNote(note string) {
	if note = strings.TrimSpace(note); note != "" {
		p.Notes = append(p.Notes, note)
	}
}

// Clone returns a deep copy safe to hand to hosts.
func (p *TaskPlan) Clone() *TaskPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.SubGoals = append([]SubGoal(nil), p.SubGoals...)
	c.Notes = append([]string(nil), p.Notes...)
	return &c
}

// SuggestRecovery proposes a way out after the same action repeated
// stuckCount times.
func (p *TaskPlan) SuggestRecovery(stuckCount int, lang string) string {
	zh := lang == "zh"
	switch {
	case stuckCount >= 5:
		if zh {
			return "多次重复操作，建议 ABORT 或 TAKE_OVER"
		}
		return "the same action keeps repeating; consider ABORT or TAKE_OVER"
	case stuckCount >= 3:
		if zh {
			return "操作似乎卡住，尝试 BACK 返回或 HOME 回到桌面重新开始"
		}
		return "progress looks stuck; try BACK or HOME and start over"
	case stuckCount >= 2:
		if zh {
			return "操作似乎无效，尝试不同位置或方法"
		}
		return "the action seems ineffective; try a different position or approach"
	}
	return ""
}

var (
	loginKeywords   = []string{"登录", "登入", "sign in", "login", "log in", "账号", "密码", "password"}
	loadingKeywords = []string{"加载中", "loading", "请稍候", "正在加载", "please wait"}
	popupKeywords   = []string{"确定", "取消", "允许", "拒绝", "知道了", "close", "dismiss", "allow", "deny"}
)

// InspectObservation scans screen text for login walls, loading states and
// popups, returning a hint for the model or "" when nothing stands out.
func InspectObservation(screenInfo, lang string) string {
	lower := strings.ToLower(screenInfo)
	if lower == "" {
		return ""
	}
	zh := lang == "zh"
	var hints []string
	if containsAny(lower, loginKeywords) {
		hints = append(hints, pick(zh, "检测到登录页面，可能需要 TAKE_OVER 让用户登录", "login screen detected; TAKE_OVER may be needed"))
	}
	if containsAny(lower, loadingKeywords) {
		hints = append(hints, pick(zh, "页面正在加载，建议 WAIT 等待", "page is loading; consider WAIT"))
	}
	if containsAny(lower, popupKeywords) {
		hints = append(hints, pick(zh, "检测到弹窗，可能需要先处理", "a popup may need to be dismissed first"))
	}
	return strings.Join(hints, "; ")
}

// RenderProgress renders the plan for the model: every sub-goal with a
// status marker, the current goal and its check, the remaining count and
// the most recent notes.
func (p *TaskPlan) RenderProgress(lang string) string {
	zh := lang == "zh"
	var b strings.Builder

	completed := len(p.SubGoals) - p.Remaining()
	b.WriteString(pick(zh, "## 任务规划\n", "## Task Plan\n"))
	fmt.Fprintf(&b, "%s: %s\n", pick(zh, "**原始任务**", "**Original Task**"), p.OriginalTask)
	fmt.Fprintf(&b, "%s: %d/%d\n\n", pick(zh, "**进度**", "**Progress**"), completed, len(p.SubGoals))
	b.WriteString(pick(zh, "**步骤列表**:\n", "**Steps**:\n"))

	current := p.CurrentID()
	for _, g := range p.SubGoals {
		marker := ""
		if g.ID == current {
			marker = pick(zh, " 👈 **当前**", " 👈 **Current**")
		}
		fmt.Fprintf(&b, "%s %d. %s%s\n", statusIcon(g.Status), g.ID, g.Description, marker)
	}

	if g := p.Current(); g != nil {
		fmt.Fprintf(&b, "\n%s: %s\n", pick(zh, "**当前目标**", "**Current Goal**"), g.Description)
		if g.Verification != "" {
			fmt.Fprintf(&b, "%s: %s\n", pick(zh, "**完成标志**", "**Completion Check**"), g.Verification)
		}
	}

	if remaining := p.Remaining(); remaining > 0 {
		if zh {
			fmt.Fprintf(&b, "\n⚠️ **还有 %d 个步骤未完成，不要提前结束任务！**\n", remaining)
		} else {
			fmt.Fprintf(&b, "\n⚠️ **%d steps remaining, do NOT complete the task prematurely!**\n", remaining)
		}
	}

	if len(p.Notes) > 0 {
		b.WriteString(pick(zh, "\n**执行备注**:\n", "\n**Execution Notes**:\n"))
		start := len(p.Notes) - maxRenderedNotes
		if start < 0 {
			start = 0
		}
		for _, n := range p.Notes[start:] {
			b.WriteString("- " + n + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusIcon(s Status) string {
	switch s {
	case StatusCompleted:
		return "✅"
	case StatusInProgress:
		return "🔄"
	case StatusFailed:
		return "❌"
	default:
		return "⬜"
	}
}

func pick(zh bool, zhText, enText string) string {
	if zh {
		return zhText
	}
	return enText
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
