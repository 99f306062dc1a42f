// internal/actions/render.go
package actions

import (
	"fmt"
	"strings"
)

// Render writes an action in the given convention. Parsing the output yields
// an action equal to a, provided its free-text fields are trimmed and, for
// the tab convention, contain no tabs, newlines or double spaces.
func Render(a Action, c Convention) string {
	if c == ConventionFunction {
		return renderFunction(a)
	}
	return renderTab(a)
}

func renderTab(a Action) string {
	var b strings.Builder
	if a.Thinking != "" {
		b.WriteString("<THINK>" + a.Thinking + "</THINK>\n")
	}

	p := a.Params
	var fields []string
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, key+":"+value)
		}
	}
	add("explain", a.Explanation)
	add("action", string(a.Kind))
	if p.Point != nil {
		add("point", p.Point.String())
	}
	if p.Point1 != nil {
		add("point1", p.Point1.String())
	}
	if p.Point2 != nil {
		add("point2", p.Point2.String())
	}
	add("direction", string(p.Direction))
	add("value", p.Value)
	add("duration", p.Duration)
	add("message", p.Message)
	add("reason", p.Reason)
	add("status", p.Status)
	add("return", p.Return)
	add("summary", a.Summary)

	b.WriteString(strings.Join(fields, "\t"))
	return b.String()
}

func renderFunction(a Action) string {
	var b strings.Builder
	if a.Thinking != "" {
		b.WriteString("<think>" + a.Thinking + "</think>\n")
	}

	p := a.Params
	var args []string
	str := func(key, value string) {
		if value != "" {
			args = append(args, key+"="+quote(value))
		}
	}
	pt := func(key string, v *Point) {
		if v != nil {
			args = append(args, fmt.Sprintf("%s=[%d,%d]", key, v.X, v.Y))
		}
	}

	if a.Kind == KindComplete {
		// finish(message=...) must lead so the call is recognized.
		if p.Message != "" {
			args = append(args, "message="+quote(p.Message), "return="+quote(p.Return))
		} else {
			args = append(args, "message="+quote(p.Return))
		}
	} else {
		args = append(args, "action="+quote(a.Kind.FunctionName()))
	}

	pt("element", p.Point)
	pt("start", p.Point1)
	pt("end", p.Point2)
	str("direction", string(p.Direction))

	switch {
	case a.Kind == KindType:
		str("text", p.Value)
	case a.Kind == KindLaunch:
		str("app", p.Value)
	case a.Kind == KindWait && p.Duration == "":
		str("duration", p.Value)
	default:
		str("value", p.Value)
	}
	if !(a.Kind == KindWait && p.Duration == "") {
		str("duration", p.Duration)
	}
	if a.Kind != KindComplete {
		str("message", p.Message)
		str("return", p.Return)
	}
	str("reason", p.Reason)
	str("status", p.Status)
	str("explain", a.Explanation)
	str("summary", a.Summary)

	name := "do"
	if a.Kind == KindComplete {
		name = "finish"
	}
	b.WriteString(name + "(" + strings.Join(args, ", ") + ")")
	return b.String()
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}
