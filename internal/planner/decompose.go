// internal/planner/decompose.go
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/llmutil"
)

// maxDecomposedSteps caps how many sub-goals a model decomposition may add.
const maxDecomposedSteps = 12

// DecompositionError is returned when the model could not produce a usable
// plan. CreatePlan recovers from it with the default plan.
type DecompositionError struct {
	Task string
	Err  error
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("failed to decompose task %q: %v", e.Task, e.Err)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// stepDraft is the JSON shape the model is asked to return.
type stepDraft struct {
	Description  string `json:"description"`
	Verification string `json:"verification"`
	AppTarget    string `json:"app_target,omitempty"`
}

const decomposePromptEN = `You are a mobile task planner. Break the user's task into 2 to 8 concrete sub-goals that a phone agent can check off one at a time.

Return ONLY a JSON array. Each item has:
- "description": what to do, in one short imperative sentence
- "verification": what the screen shows once the sub-goal is done
- "app_target": the app this sub-goal happens in, if it launches one

Example task: Send "see you at 8" to Alice on WeChat
[{"description":"Open WeChat","verification":"WeChat chat list is visible","app_target":"WeChat"},{"description":"Open the chat with Alice","verification":"chat window with Alice is open"},{"description":"Type the message","verification":"message is in the input box"},{"description":"Tap Send","verification":"message appears in the chat"}]

Example task: Find the Mac Mini price on Taobao and save it in Notes
[{"description":"Open Taobao","verification":"Taobao home page is visible","app_target":"Taobao"},{"description":"Search for Mac Mini","verification":"search results are shown"},{"description":"Open a Mac Mini listing and read the price","verification":"price is visible"},{"description":"Go back to the home screen","verification":"home screen is visible"},{"description":"Open Notes","verification":"notes list is visible","app_target":"Notes"},{"description":"Create a note with the price and save it","verification":"note is saved"}]

Task: %s`

const decomposePromptZH = `你是一个手机任务规划助手。请把用户的任务拆分为 2 到 8 个可以逐一完成、可以验证的子目标。

只返回 JSON 数组，每一项包含：
- "description": 要做什么（一句简短的话）
- "verification": 完成后屏幕上应看到什么
- "app_target": 如果该步骤需要打开应用，填写应用名称

示例任务：在微信给张三发消息"晚上8点见"
[{"description":"打开微信","verification":"微信聊天列表已显示","app_target":"微信"},{"description":"打开与张三的聊天","verification":"与张三的聊天窗口已打开"},{"description":"输入消息内容","verification":"消息已填入输入框"},{"description":"点击发送","verification":"消息出现在聊天记录中"}]

示例任务：在淘宝查一下 Mac Mini 的价格并记到备忘录
[{"description":"打开淘宝","verification":"淘宝首页已显示","app_target":"淘宝"},{"description":"搜索 Mac Mini","verification":"显示搜索结果"},{"description":"点击商品查看价格","verification":"已看到价格"},{"description":"返回桌面","verification":"桌面已显示"},{"description":"打开备忘录","verification":"备忘录已打开","app_target":"备忘录"},{"description":"新建备忘录写入价格并保存","verification":"备忘录已保存"}]

任务：%s`

// decompose asks the fast model tier for a plan.
func (p *Planner) decompose(ctx context.Context, task string) ([]Step, error) {
	if p.llm == nil {
		return nil, &DecompositionError{Task: task, Err: errors.New("no model configured")}
	}

	tmpl := decomposePromptEN
	if p.lang == "zh" {
		tmpl = decomposePromptZH
	}
	req := schemas.GenerationRequest{
		Messages: []schemas.Message{schemas.UserMessage(fmt.Sprintf(tmpl, task))},
		Tier:     schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			MaxTokens:       1024,
			ForceJSONFormat: true,
		},
	}

	resp, err := p.llm.Generate(ctx, req)
	if err != nil {
		return nil, &DecompositionError{Task: task, Err: err}
	}
	if resp == nil {
		return nil, &DecompositionError{Task: task, Err: errors.New("model returned no response")}
	}

	drafts, err := llmutil.ParseJSONResponse[[]stepDraft](resp.Text)
	if err != nil {
		return nil, &DecompositionError{Task: task, Err: err}
	}

	var steps []Step
	for _, d := range *drafts {
		desc := strings.TrimSpace(d.Description)
		if desc == "" {
			continue
		}
		steps = append(steps, Step{
			Description:  desc,
			TargetApp:    strings.TrimSpace(d.AppTarget),
			Verification: strings.TrimSpace(d.Verification),
		})
		if len(steps) == maxDecomposedSteps {
			break
		}
	}
	if len(steps) == 0 {
		return nil, &DecompositionError{Task: task, Err: errors.New("model returned no sub-goals")}
	}
	return steps, nil
}
