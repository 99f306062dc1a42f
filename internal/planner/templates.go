// internal/planner/templates.go
package planner

import (
	"regexp"
	"strings"
)

// Step is one sub-goal of a template. Description and TargetApp may refer
// to pattern submatches as ${1}, ${2}, and so on.
type Step struct {
	Description  string
	TargetApp    string
	Verification string
}

// Template maps a family of tasks to a fixed decomposition.
type Template struct {
	Name    string
	Pattern *regexp.Regexp
	Steps   []Step
}

// Library is an ordered set of templates. The first matching template wins.
type Library []Template

// Match returns the expanded steps of the first template matching task.
func (l Library) Match(task string) (string, []Step, bool) {
	task = strings.TrimSpace(task)
	for _, t := range l {
		idx := t.Pattern.FindStringSubmatchIndex(task)
		if idx == nil {
			continue
		}
		return t.Name, t.expand(task, idx), true
	}
	return "", nil, false
}

func (t Template) expand(task string, idx []int) []Step {
	out := make([]Step, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = Step{
			Description:  strings.TrimSpace(string(t.Pattern.ExpandString(nil, s.Description, task, idx))),
			TargetApp:    strings.TrimSpace(string(t.Pattern.ExpandString(nil, s.TargetApp, task, idx))),
			Verification: s.Verification,
		}
	}
	return out
}

// DefaultLibrary returns the built-in English and Chinese templates.
func DefaultLibrary() Library {
	return Library{
		{
			Name:    "open-and-search",
			Pattern: regexp.MustCompile(`(?i)^open (.+?) and search (?:for )?(.+)$`),
			Steps: []Step{
				{Description: "Launch ${1}", TargetApp: "${1}", Verification: "${1} is in the foreground"},
				{Description: "Tap the search box", Verification: "search box is focused"},
				{Description: "Type the query ${2}", Verification: "search results are shown"},
			},
		},
		{
			Name:    "send-message",
			Pattern: regexp.MustCompile(`(?i)send (?:a )?message .*?\b(?:on|via|in|using) (wechat|whatsapp|telegram|signal|messages)\b`),
			Steps: []Step{
				{Description: "Launch ${1}", TargetApp: "${1}", Verification: "chat list is visible"},
				{Description: "Open the conversation with the contact", Verification: "chat window is open"},
				{Description: "Type the message", Verification: "message text is in the input box"},
				{Description: "Tap the send button", Verification: "message appears in the chat"},
			},
		},
		{
			Name:    "take-photo",
			Pattern: regexp.MustCompile(`(?i)take (?:a )?(?:photo|picture|selfie)`),
			Steps: []Step{
				{Description: "Launch Camera", TargetApp: "Camera", Verification: "viewfinder is visible"},
				{Description: "Press the shutter button", Verification: "thumbnail of the new photo appears"},
			},
		},
		{
			Name:    "write-note",
			Pattern: regexp.MustCompile(`(?i)(?:write|take|create|add) (?:a )?note`),
			Steps: []Step{
				{Description: "Launch Notes", TargetApp: "Notes", Verification: "notes list is visible"},
				{Description: "Tap the new note button", Verification: "an empty note is open"},
				{Description: "Type the note content", Verification: "content is shown in the note"},
				{Description: "Save the note", Verification: "note appears in the list"},
			},
		},
		{
			Name:    "change-setting",
			Pattern: regexp.MustCompile(`(?i)(?:turn (?:on|off)|enable|disable|change) .*\bsettings?\b|\bsettings?\b.*(?:turn (?:on|off)|enable|disable|change)`),
			Steps: []Step{
				{Description: "Launch Settings", TargetApp: "Settings", Verification: "settings menu is visible"},
				{Description: "Open the relevant settings page", Verification: "target option is visible"},
				{Description: "Select the new value", Verification: "option shows the new value"},
			},
		},
		{
			Name:    "shop-price-to-memo",
			Pattern: regexp.MustCompile(`(淘宝|京东|拼多多).*价格.*备忘录`),
			Steps: []Step{
				{Description: "打开${1}", TargetApp: "${1}", Verification: "${1}首页已显示"},
				{Description: "点击搜索框", Verification: "搜索框已激活"},
				{Description: "输入商品名称并搜索", Verification: "显示搜索结果"},
				{Description: "点击目标商品查看详情", Verification: "商品详情页已显示"},
				{Description: "记录商品价格", Verification: "已看到价格信息"},
				{Description: "返回桌面", Verification: "桌面已显示"},
				{Description: "打开备忘录", TargetApp: "备忘录", Verification: "备忘录已打开"},
				{Description: "点击新建备忘录", Verification: "编辑界面已显示"},
				{Description: "输入价格信息并保存", Verification: "备忘录已保存"},
			},
		},
		{
			Name:    "wechat-moments",
			Pattern: regexp.MustCompile(`微信.*朋友圈.*发|发.*朋友圈`),
			Steps: []Step{
				{Description: "打开微信", TargetApp: "微信", Verification: "微信首页已显示"},
				{Description: "点击发现", Verification: "发现页已显示"},
				{Description: "点击朋友圈", Verification: "朋友圈已显示"},
				{Description: "点击右上角相机图标", Verification: "发布选项已弹出"},
				{Description: "输入朋友圈内容", Verification: "内容已填写"},
				{Description: "点击发表", Verification: "朋友圈已发布"},
			},
		},
		{
			Name:    "wechat-message",
			Pattern: regexp.MustCompile(`微信.*发.*消息|发.*消息.*微信`),
			Steps: []Step{
				{Description: "打开微信", TargetApp: "微信", Verification: "微信首页已显示"},
				{Description: "找到并点击联系人", Verification: "聊天窗口已打开"},
				{Description: "输入消息内容", Verification: "消息已填入输入框"},
				{Description: "点击发送", Verification: "消息已出现在聊天记录中"},
			},
		},
		{
			Name:    "alipay-transfer",
			Pattern: regexp.MustCompile(`支付宝.*转账`),
			Steps: []Step{
				{Description: "打开支付宝", TargetApp: "支付宝", Verification: "支付宝首页已显示"},
				{Description: "点击转账", Verification: "转账页面已显示"},
				{Description: "选择或输入收款人", Verification: "收款人已确定"},
				{Description: "输入转账金额", Verification: "金额已填写"},
				{Description: "确认转账", Verification: "需要用户确认支付"},
			},
		},
		{
			Name:    "shop-search",
			Pattern: regexp.MustCompile(`(淘宝|京东|拼多多).*(?:搜索|找|买)`),
			Steps: []Step{
				{Description: "打开${1}", TargetApp: "${1}", Verification: "${1}首页已显示"},
				{Description: "点击搜索框", Verification: "搜索框已激活"},
				{Description: "输入商品名称并搜索", Verification: "显示搜索结果"},
				{Description: "浏览搜索结果", Verification: "找到目标商品"},
				{Description: "点击查看商品详情", Verification: "商品详情页已显示"},
			},
		},
		{
			Name:    "content-search",
			Pattern: regexp.MustCompile(`(小红书|抖音|哔哩哔哩|B站).*(?:搜索|找|看)`),
			Steps: []Step{
				{Description: "打开${1}", TargetApp: "${1}", Verification: "${1}首页已显示"},
				{Description: "点击搜索", Verification: "搜索框已激活"},
				{Description: "输入关键词并搜索", Verification: "显示搜索结果"},
				{Description: "浏览并点击目标内容", Verification: "内容详情已显示"},
			},
		},
		{
			Name:    "memo-write",
			Pattern: regexp.MustCompile(`备忘录.*(?:写|记)|(?:写|记).*备忘录`),
			Steps: []Step{
				{Description: "打开备忘录", TargetApp: "备忘录", Verification: "备忘录已打开"},
				{Description: "点击新建", Verification: "编辑界面已显示"},
				{Description: "输入内容", Verification: "内容已填写"},
				{Description: "保存备忘录", Verification: "备忘录已保存"},
			},
		},
		{
			Name:    "open-and-search-zh",
			Pattern: regexp.MustCompile(`打开(\S+?)(?:并|然后|，)?搜索(.+)$`),
			Steps: []Step{
				{Description: "打开${1}", TargetApp: "${1}", Verification: "${1}已打开"},
				{Description: "点击搜索框", Verification: "搜索框已激活"},
				{Description: "输入搜索内容${2}", Verification: "显示搜索结果"},
			},
		},
		{
			Name:    "open-settings-zh",
			Pattern: regexp.MustCompile(`打开.*设置|设置.*(?:修改|打开|关闭)`),
			Steps: []Step{
				{Description: "打开设置", TargetApp: "设置", Verification: "设置页面已显示"},
				{Description: "找到目标设置项", Verification: "设置项已显示"},
				{Description: "修改设置", Verification: "设置已更改"},
			},
		},
	}
}

// defaultSteps is the generic plan used when nothing else applies.
func defaultSteps(lang string) []Step {
	if lang == "zh" {
		return []Step{
			{Description: "分析任务并开始执行", Verification: "已进入相关界面"},
			{Description: "完成任务目标", Verification: "任务目标已达成"},
		}
	}
	return []Step{
		{Description: "Begin the task", Verification: "the relevant screen is open"},
		{Description: "Complete the task goal", Verification: "the task goal is achieved"},
	}
}
