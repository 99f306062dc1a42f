// internal/agent/reply.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
)

// fallbackReply is used in auto mode when the replier fails.
const fallbackReply = "Please continue with the task."

const takeOverPrompt = "Please complete this step on the device, then reply to continue."

// ModelReplier answers ASK_USER questions with the fast model tier.
type ModelReplier struct {
	client  schemas.LLMClient
	lang    string
	timeout time.Duration
}

// NewModelReplier creates a replier backed by client.
func NewModelReplier(client schemas.LLMClient, lang string, timeout time.Duration) *ModelReplier {
	return &ModelReplier{client: client, lang: lang, timeout: timeout}
}

// Reply implements Replier.
func (r *ModelReplier) Reply(ctx context.Context, task, question string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	system := "You answer on behalf of a phone user whose agent is carrying out a task. " +
		"Reply with one short sentence that lets the agent proceed. Make reasonable choices when the task does not say."
	if r.lang == "zh" {
		system = "你代表手机用户回答智能体在执行任务时提出的问题。请用一句简短的话回答，让智能体可以继续执行。任务没有说明时请做出合理选择。"
	}
	resp, err := r.client.Generate(ctx, schemas.GenerationRequest{
		Messages: []schemas.Message{
			schemas.SystemMessage(system),
			schemas.UserMessage(fmt.Sprintf("Task: %s\nQuestion: %s", task, question)),
		},
		Tier:    schemas.TierFast,
		Options: schemas.GenerationOptions{MaxTokens: 128},
	})
	if err != nil {
		return "", fmt.Errorf("auto reply failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("auto reply returned no response")
	}
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", fmt.Errorf("auto reply was empty")
	}
	return answer, nil
}

// questionOf extracts the prompt shown to the user for an interactive action.
func questionOf(a actions.Action) string {
	if a.Kind == actions.KindTakeOver {
		msg := firstNonEmpty(a.Params.Message, a.Params.Value)
		if msg == "" {
			return takeOverPrompt
		}
		return msg + "\n" + takeOverPrompt
	}
	return firstNonEmpty(a.Params.Value, a.Params.Message)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
