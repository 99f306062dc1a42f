// internal/history/context.go
package history

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/llmutil"
)

// ContextOptions shapes the message sequence sent to the model.
type ContextOptions struct {
	// MaxHistorySteps is how many recent entries are replayed as turns.
	MaxHistorySteps int
	// ImageWindow is how many of the replayed entries keep their screenshot.
	// The current observation always carries its image.
	ImageWindow int
	Lang        string
	// SystemPrompt replaces the built-in instructions. The action schema is
	// always appended.
	SystemPrompt string
}

// maxCondensedActions caps the executed-actions list in the final message.
const maxCondensedActions = 20

const systemPromptEN = `You are an agent that operates an Android phone to complete the user's task.
Each turn you receive the current screenshot and a summary of what has been done so far.
Reply with exactly one action. Coordinates are normalized to 0-1000 on both axes, origin at the top left.
Follow the task plan: finish the current step before moving on, and only declare the task complete when every step is done.
If an action failed or the screen did not change, try a different approach instead of repeating it.
Ask the user only when information is genuinely missing. Hand over control for logins, captchas and payments.`

const systemPromptZH = `你是一个操作安卓手机完成用户任务的智能体。
每一轮你会收到当前截图以及已执行操作的摘要。
每次只输出一个操作。坐标在两个方向上都归一化到 0-1000，原点在左上角。
请按照任务规划执行：完成当前步骤后再进行下一步，只有所有步骤都完成时才能结束任务。
如果操作失败或屏幕没有变化，请换一种方法，不要重复同样的操作。
只有在确实缺少信息时才询问用户。遇到登录、验证码和支付时请让用户接管。`

// actionRecord is the JSON form of an action replayed as an assistant turn.
type actionRecord struct {
	Action    string `json:"action"`
	Point     string `json:"point,omitempty"`
	Point1    string `json:"point1,omitempty"`
	Point2    string `json:"point2,omitempty"`
	Direction string `json:"direction,omitempty"`
	Value     string `json:"value,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Message   string `json:"message,omitempty"`
	Return    string `json:"return,omitempty"`
}

func newActionRecord(a actions.Action) actionRecord {
	r := actionRecord{
		Action:    string(a.Kind),
		Direction: string(a.Params.Direction),
		Value:     a.Params.Value,
		Duration:  a.Params.Duration,
		Message:   a.Params.Message,
		Return:    a.Params.Return,
	}
	if p := a.Params.Point; p != nil {
		r.Point = p.String()
	}
	if p := a.Params.Point1; p != nil {
		r.Point1 = p.String()
	}
	if p := a.Params.Point2; p != nil {
		r.Point2 = p.String()
	}
	return r
}

// BuildContext renders the stored run into model messages: the system
// message, recent steps as user/assistant pairs, and a final user message
// with the task, plan progress, executed actions and the current screen.
// The output depends only on the store contents, obs and opts.
func (s *Store) BuildContext(obs Observation, opts ContextOptions) []schemas.Message {
	zh := opts.Lang == "zh"
	msgs := []schemas.Message{schemas.SystemMessage(s.systemPrompt(opts))}

	entries := s.history.Entries
	start := 0
	if opts.MaxHistorySteps >= 0 && len(entries) > opts.MaxHistorySteps {
		start = len(entries) - opts.MaxHistorySteps
	}
	imageFrom := len(entries) - opts.ImageWindow

	for i := start; i < len(entries); i++ {
		e := entries[i]
		if e.UserReply != "" {
			msgs = append(msgs, schemas.UserMessage(label(zh, "用户回复: ", "User Reply: ")+e.UserReply))
		}

		var text strings.Builder
		if i == start && start > 0 {
			fmt.Fprintf(&text, label(zh, "[已省略前 %d 步]\n", "[%d earlier steps omitted]\n"), start)
		}
		fmt.Fprintf(&text, label(zh, "第 %d 步屏幕: %s", "Step %d screen: %s"), e.Step, e.Observation.ScreenInfo)

		var images []schemas.ImagePart
		if i >= imageFrom && e.Observation.Screenshot != nil {
			images = append(images, *e.Observation.Screenshot)
		}
		msgs = append(msgs, schemas.UserMessage(text.String(), images...))
		msgs = append(msgs, schemas.AssistantMessage(renderAssistantTurn(e.Action)))
	}

	if s.pendingReply != nil {
		msgs = append(msgs, schemas.UserMessage(label(zh, "用户回复: ", "User Reply: ")+s.pendingReply.Answer))
	}

	var images []schemas.ImagePart
	if obs.Screenshot != nil {
		images = append(images, *obs.Screenshot)
	}
	msgs = append(msgs, schemas.UserMessage(s.finalMessage(obs, zh), images...))
	return msgs
}

func (s *Store) systemPrompt(opts ContextOptions) string {
	instructions := opts.SystemPrompt
	if instructions == "" {
		instructions = systemPromptEN
		if opts.Lang == "zh" {
			instructions = systemPromptZH
		}
	}
	return instructions + "\n\n" + actions.SchemaPrompt(opts.Lang)
}

func renderAssistantTurn(a actions.Action) string {
	var b strings.Builder
	if a.Thinking != "" {
		b.WriteString("<think>" + a.Thinking + "</think>\n")
	}
	payload, err := llmutil.MarshalCompact(newActionRecord(a))
	if err != nil {
		// actionRecord holds only strings.
		payload = `{"action":"` + string(a.Kind) + `"}`
	}
	b.WriteString("```json\n" + payload + "\n```")
	return b.String()
}

func (s *Store) finalMessage(obs Observation, zh bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", label(zh, "## 用户任务", "## User Task"), s.history.Task)

	if plan := s.history.Plan; plan != nil {
		b.WriteString("\n" + plan.RenderProgress(langOf(zh)) + "\n")
	}

	if n := len(s.history.Entries); n > 0 {
		b.WriteString(label(zh, "\n### 已执行操作:\n", "\n### Executed Actions:\n"))
		from := 0
		if n > maxCondensedActions {
			from = n - maxCondensedActions
		}
		for _, e := range s.history.Entries[from:] {
			b.WriteString(condense(e) + "\n")
		}
	}

	if s.loopWarning != "" {
		fmt.Fprintf(&b, "\n⚠️ **%s**: %s\n", label(zh, "警告", "Warning"), s.loopWarning)
	}

	if len(s.history.QALog) > 0 {
		b.WriteString(label(zh, "\n### 问答记录:\n", "\n### Q&A:\n"))
		for _, qa := range s.history.QALog {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
		}
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", label(zh, "### 当前屏幕:", "### Current Screen:"), obs.ScreenInfo)
	b.WriteString(label(zh,
		"\n请根据截图和任务规划决定下一步操作，并按要求的格式输出。",
		"\nDecide the next action from the screenshot and the plan, and output it in the required format."))
	return b.String()
}

// condense renders an entry as "Step N: KIND @ x,y [value]".
func condense(e HistoryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d: %s", e.Step, e.Action.Kind)
	p := e.Action.Params
	switch {
	case p.Point != nil:
		b.WriteString(" @ " + p.Point.String())
	case p.Point1 != nil && p.Point2 != nil:
		b.WriteString(" " + p.Point1.String() + " -> " + p.Point2.String())
	}
	if p.Direction != "" {
		b.WriteString(" " + string(p.Direction))
	}
	if v := p.Value; v != "" {
		if r := []rune(v); len(r) > 30 {
			v = string(r[:30]) + "..."
		}
		b.WriteString(" [" + v + "]")
	}
	if !e.Outcome.Success {
		b.WriteString(" (failed")
		if e.Outcome.ErrorCode != "" {
			b.WriteString(": " + string(e.Outcome.ErrorCode))
		}
		b.WriteString(")")
	}
	return b.String()
}

func label(zh bool, zhText, enText string) string {
	if zh {
		return zhText
	}
	return enText
}

func langOf(zh bool) string {
	if zh {
		return "zh"
	}
	return "en"
}
