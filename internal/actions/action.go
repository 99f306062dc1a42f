// internal/actions/action.go
package actions

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// CoordinateMax is the upper bound of the normalized coordinate space.
const CoordinateMax = 1000

// Point is a screen position in normalized coordinates, both axes in [0, 1000].
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Valid reports whether both coordinates lie in the normalized range.
func (p Point) Valid() bool {
	return p.X >= 0 && p.X <= CoordinateMax && p.Y >= 0 && p.Y <= CoordinateMax
}

// ToAbsolute maps the point onto a screen of the given pixel size.
func (p Point) ToAbsolute(width, height int) (int, int) {
	return p.X * width / CoordinateMax, p.Y * height / CoordinateMax
}

// Within reports whether o lies inside a square of half-width tol around p.
func (p Point) Within(o Point, tol int) bool {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx <= tol && dx >= -tol && dy <= tol && dy >= -tol
}

func (p Point) String() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

// Params carries the typed arguments of an action. Which fields are required
// depends on the kind; see Validate.
type Params struct {
	Point     *Point    `json:"point,omitempty"`
	Point1    *Point    `json:"point1,omitempty"`
	Point2    *Point    `json:"point2,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Value     string    `json:"value,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Message   string    `json:"message,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Status    string    `json:"status,omitempty"`
	Return    string    `json:"return,omitempty"`
}

// Equal compares params by value, following point pointers.
func (p Params) Equal(o Params) bool {
	return pointEqual(p.Point, o.Point) &&
		pointEqual(p.Point1, o.Point1) &&
		pointEqual(p.Point2, o.Point2) &&
		p.Direction == o.Direction &&
		p.Value == o.Value &&
		p.Duration == o.Duration &&
		p.Message == o.Message &&
		p.Reason == o.Reason &&
		p.Status == o.Status &&
		p.Return == o.Return
}

// Clone returns a copy that shares no pointers with p.
func (p Params) Clone() Params {
	c := p
	c.Point = clonePoint(p.Point)
	c.Point1 = clonePoint(p.Point1)
	c.Point2 = clonePoint(p.Point2)
	return c
}

func pointEqual(a, b *Point) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePoint(p *Point) *Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Action is a single validated instruction produced from model output.
type Action struct {
	Kind        Kind   `json:"kind"`
	Params      Params `json:"params"`
	Thinking    string `json:"thinking,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// SameAs reports whether two actions would do the same thing: equal kind and
// equal params. Rationale and commentary are ignored.
func (a Action) SameAs(b Action) bool {
	return a.Kind == b.Kind && a.Params.Equal(b.Params)
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	c := a
	c.Params = a.Params.Clone()
	return c
}

var pointNames = [...]string{"point", "point1", "point2"}

// Validate checks the action against the schema of its kind.
func (a Action) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	p := a.Params

	for i, pt := range []*Point{p.Point, p.Point1, p.Point2} {
		if pt != nil && !pt.Valid() {
			return fmt.Errorf("%s (%s) is outside [0, %d]", pointNames[i], pt, CoordinateMax)
		}
	}
	if p.Direction != "" {
		if _, ok := ParseDirection(string(p.Direction)); !ok || string(p.Direction) != strings.ToUpper(string(p.Direction)) {
			return fmt.Errorf("unknown direction %q", p.Direction)
		}
	}
	if p.Duration != "" {
		if _, ok := ParseSeconds(p.Duration); !ok {
			return fmt.Errorf("duration %q is not a number of seconds", p.Duration)
		}
	}

	switch a.Kind {
	case KindClick, KindDoubleTap, KindLongPress:
		if p.Point == nil {
			return fmt.Errorf("%s requires point", a.Kind)
		}
	case KindSwipe:
		twoPoints := p.Point1 != nil && p.Point2 != nil
		pointDirection := p.Point != nil && p.Direction != ""
		if !twoPoints && !pointDirection {
			return fmt.Errorf("SWIPE requires point1 and point2, or point and direction")
		}
	case KindType, KindLaunch, KindAskUser, KindNote:
		if strings.TrimSpace(p.Value) == "" {
			return fmt.Errorf("%s requires value", a.Kind)
		}
	case KindWait:
		if _, ok := ParseSeconds(p.Value); !ok {
			return fmt.Errorf("WAIT requires value in seconds, got %q", p.Value)
		}
	}
	return nil
}

// ParseSeconds reads a leading non-negative number from strings such as
// "2", "1.5" or "3 seconds".
func ParseSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' })
	if end == -1 {
		end = len(s)
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// Describe renders a compact one-line form such as "CLICK point=500,300",
// used in history listings and logs.
func (a Action) Describe() string {
	var b strings.Builder
	b.WriteString(string(a.Kind))
	p := a.Params
	add := func(k, v string) {
		if v != "" {
			b.WriteString(" " + k + "=" + v)
		}
	}
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
	add("return", p.Return)
	return b.String()
}

// ErrorCode classifies a failed step for hosts and the session archive.
type ErrorCode string

const (
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeDeviceCommand     ErrorCode = "DEVICE_COMMAND_FAILED"
	ErrCodeTimeout           ErrorCode = "TIMEOUT_ERROR"
	ErrCodeExecutorPanic     ErrorCode = "EXECUTOR_PANIC"
	ErrCodeUserAbort         ErrorCode = "USER_ABORTED"
)

// Outcome is the result of dispatching one action.
type Outcome struct {
	Success bool `json:"success"`
	// ShouldFinish asks the loop to end the run after this step.
	ShouldFinish bool      `json:"should_finish,omitempty"`
	Message      string    `json:"message,omitempty"`
	ErrorCode    ErrorCode `json:"error_code,omitempty"`
}
