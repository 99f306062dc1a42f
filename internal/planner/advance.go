// internal/planner/advance.go
package planner

import (
	"strings"

	"github.com/xkilldash9x/droidpilot/internal/actions"
)

// Advancer decides whether an executed action satisfied the current
// sub-goal. The reason is logged when it returns true.
type Advancer interface {
	Satisfied(goal SubGoal, action actions.Action, currentApp string, actionsOnGoal int) (bool, string)
}

// PackageResolver maps a human app name to an Android package.
type PackageResolver func(name string) (string, bool)

var (
	tapIntent  = []string{"tap", "click", "press", "select", "open", "send", "点击", "发送", "选择", "打开"}
	typeIntent = []string{"type", "enter", "input", "search", "write", "输入", "搜索", "填写", "写"}
	navIntent  = []string{"return", "home", "desktop", "back", "返回", "桌面", "主页"}
)

// HeuristicAdvancer advances on keyword matches between the action kind and
// the sub-goal description, on reaching the target app, or after enough
// attempts on one sub-goal.
type HeuristicAdvancer struct {
	// AutoAdvanceAfter forces progress after this many actions on the same
	// sub-goal. Zero disables it.
	AutoAdvanceAfter int
	Resolve          PackageResolver
}

// Satisfied implements Advancer.
func (h HeuristicAdvancer) Satisfied(goal SubGoal, a actions.Action, currentApp string, actionsOnGoal int) (bool, string) {
	desc := strings.ToLower(goal.Description)

	switch a.Kind {
	case actions.KindLaunch:
		if goal.TargetApp != "" && h.reachedApp(goal.TargetApp, a.Params.Value, currentApp) {
			return true, "target app launched"
		}
	case actions.KindClick, actions.KindDoubleTap, actions.KindLongPress:
		if containsAny(desc, tapIntent) {
			return true, "tap matches sub-goal"
		}
	case actions.KindType:
		if containsAny(desc, typeIntent) {
			return true, "text entry matches sub-goal"
		}
	case actions.KindBack, actions.KindHome:
		if containsAny(desc, navIntent) {
			return true, "navigation matches sub-goal"
		}
	}

	if h.AutoAdvanceAfter > 0 && actionsOnGoal >= h.AutoAdvanceAfter {
		return true, "attempt budget for sub-goal reached"
	}
	return false, ""
}

func (h HeuristicAdvancer) reachedApp(target, launched, currentApp string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" {
		return false
	}
	if l := strings.ToLower(strings.TrimSpace(launched)); l != "" && (strings.Contains(l, t) || strings.Contains(t, l)) {
		return true
	}
	cur := strings.ToLower(currentApp)
	if cur == "" {
		return false
	}
	if strings.Contains(cur, t) {
		return true
	}
	if h.Resolve != nil {
		if pkg, ok := h.Resolve(target); ok && strings.EqualFold(pkg, currentApp) {
			return true
		}
	}
	return false
}
