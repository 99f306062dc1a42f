// internal/actions/schema_prompt.go
package actions

import (
	"fmt"
	"strings"
)

type kindDoc struct {
	kind   Kind
	en, zh string
	format string
}

// kindDocs lists what is advertised to the model. NOTE is accepted but not
// advertised.
var kindDocs = []kindDoc{
	{KindClick, "Tap a screen coordinate", "点击屏幕坐标", "action:CLICK\tpoint:x,y"},
	{KindDoubleTap, "Double tap a screen coordinate", "双击屏幕坐标", "action:DOUBLE_TAP\tpoint:x,y"},
	{KindLongPress, "Long press a screen coordinate", "长按屏幕坐标", "action:LONG_PRESS\tpoint:x,y\tduration:seconds(optional)"},
	{KindSwipe, "Swipe the screen", "滑动屏幕", "action:SWIPE\tpoint1:x1,y1\tpoint2:x2,y2  |  action:SWIPE\tpoint:x,y\tdirection:UP/DOWN/LEFT/RIGHT"},
	{KindType, "Type text, optionally tapping a field first", "输入文字(可选先点击输入框)", "action:TYPE\tvalue:text\tpoint:x,y(optional)"},
	{KindBack, "Press the back key", "按返回键", "action:BACK"},
	{KindHome, "Press the home key", "按主页键(返回桌面)", "action:HOME"},
	{KindLaunch, "Launch an app by name", "启动应用", "action:LAUNCH\tvalue:app_name"},
	{KindWait, "Wait for the page to load", "等待页面加载", "action:WAIT\tvalue:seconds"},
	{KindAskUser, "Ask the user a question", "向用户询问信息", "action:ASK_USER\tvalue:question"},
	{KindComplete, "The whole task is finished", "任务【完全】完成", "action:COMPLETE\treturn:report"},
	{KindAbort, "The task truly cannot be done", "确实无法继续时终止任务", "action:ABORT\tvalue:reason"},
	{KindTakeOver, "Hand control to the user (login, captcha)", "请求用户接管(登录、验证码)", "action:TAKE_OVER\tmessage:reason"},
}

// SchemaPrompt describes the action space and the expected output format.
// lang is "zh" or "en"; anything else falls back to English.
func SchemaPrompt(lang string) string {
	zh := lang == "zh"
	var b strings.Builder
	if zh {
		b.WriteString("# 动作空间\n\n所有坐标使用归一化坐标系 (0-1000)，原点在左上角。\n\n")
	} else {
		b.WriteString("# Action Space\n\nAll coordinates are normalized to 0-1000 with the origin at the top-left corner.\n\n")
	}

	for i, d := range kindDocs {
		desc, label := d.en, "Format"
		if zh {
			desc, label = d.zh, "格式"
		}
		fmt.Fprintf(&b, "%d. %s: %s\n   %s: %s\n\n", i+1, d.kind, desc, label, d.format)
	}

	if zh {
		b.WriteString("# 输出格式\n\n<THINK>思考过程</THINK>\nexplain:动作说明\taction:动作类型\t参数...\tsummary:历史总结\n\n")
		b.WriteString("字段之间用制表符分隔。每次只输出一个动作。\n")
	} else {
		b.WriteString("# Output Format\n\n<THINK>reasoning</THINK>\nexplain:description\taction:type\tparams...\tsummary:history_summary\n\n")
		b.WriteString("Separate fields with tabs. Output exactly one action per response.\n")
	}
	return b.String()
}
