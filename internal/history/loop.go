// internal/history/loop.go
package history

import (
	"fmt"

	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// Pattern names the kind of repetition a detection matched.
type Pattern string

const (
	PatternNone        Pattern = ""
	PatternIdentical   Pattern = "identical_action"
	PatternSwipes      Pattern = "repeated_swipes"
	PatternStuckTap    Pattern = "stuck_tap"
	PatternOscillation Pattern = "oscillation"
)

// Severity grades a detection. The agent aborts on SeveritySevere.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeveritySevere:
		return "severe"
	default:
		return "none"
	}
}

// Detection is the result of a loop check.
type Detection struct {
	Pattern  Pattern
	Count    int
	Severity Severity
	Message  string
}

// Detected reports whether any pattern fired.
func (d Detection) Detected() bool { return d.Severity > SeverityNone }

// LoopDetector classifies the tail of a run as looping.
type LoopDetector struct {
	cfg config.LoopConfig
}

// NewLoopDetector creates a detector with the given thresholds.
func NewLoopDetector(cfg config.LoopConfig) *LoopDetector {
	return &LoopDetector{cfg: cfg}
}

// Check inspects entries plus the candidate action, when non-nil, and
// returns the most severe matching pattern. Ties keep the first pattern in
// the order identical, swipes, stuck tap, oscillation.
func (d *LoopDetector) Check(entries []HistoryEntry, candidate *actions.Action) Detection {
	seq := make([]actions.Action, 0, len(entries)+1)
	for _, e := range entries {
		seq = append(seq, e.Action)
	}
	if candidate != nil {
		seq = append(seq, *candidate)
	}
	if len(seq) == 0 {
		return Detection{}
	}

	best := Detection{}
	for _, det := range []Detection{
		d.identical(seq),
		d.swipes(seq),
		d.stuckTap(seq),
		d.oscillation(seq),
	} {
		if det.Severity > best.Severity {
			best = det
		}
	}
	return best
}

func (d *LoopDetector) grade(p Pattern, count, threshold, severeAt int, msg string) Detection {
	if threshold <= 0 || count < threshold {
		return Detection{}
	}
	sev := SeverityWarning
	if severeAt > 0 && count >= severeAt {
		sev = SeveritySevere
	}
	return Detection{Pattern: p, Count: count, Severity: sev, Message: msg}
}

// identical counts the trailing run of actions equal to the last one,
// swipes included. Only swipes that vary fall through to the swipe rule.
func (d *LoopDetector) identical(seq []actions.Action) Detection {
	last := seq[len(seq)-1]
	n := 0
	for i := len(seq) - 1; i >= 0 && seq[i].SameAs(last); i-- {
		n++
	}
	return d.grade(PatternIdentical, n, d.cfg.IdenticalThreshold, d.cfg.SevereCount,
		fmt.Sprintf("the same action (%s) was repeated %d times in a row", last.Describe(), n))
}

// swipes counts the trailing run of swipes whatever their parameters.
func (d *LoopDetector) swipes(seq []actions.Action) Detection {
	n := 0
	for i := len(seq) - 1; i >= 0 && seq[i].Kind == actions.KindSwipe; i-- {
		n++
	}
	return d.grade(PatternSwipes, n, d.cfg.SwipeThreshold, d.cfg.SevereSwipes,
		fmt.Sprintf("%d swipes in a row without any other action", n))
}

// stuckTap counts trailing CLICKs landing within PointTolerance of the
// most recent one.
func (d *LoopDetector) stuckTap(seq []actions.Action) Detection {
	last := seq[len(seq)-1]
	if last.Kind != actions.KindClick || last.Params.Point == nil {
		return Detection{}
	}
	anchor := *last.Params.Point
	n := 0
	for i := len(seq) - 1; i >= 0; i-- {
		a := seq[i]
		if a.Kind != actions.KindClick || a.Params.Point == nil || !a.Params.Point.Within(anchor, d.cfg.PointTolerance) {
			break
		}
		n++
	}
	return d.grade(PatternStuckTap, n, d.cfg.StuckTapThreshold, d.cfg.SevereCount,
		fmt.Sprintf("%d taps around %s without visible progress", n, anchor))
}

// oscillation measures the trailing X,Y,X,Y run for two different actions.
func (d *LoopDetector) oscillation(seq []actions.Action) Detection {
	if len(seq) < 4 {
		return Detection{}
	}
	x, y := seq[len(seq)-1], seq[len(seq)-2]
	if x.SameAs(y) {
		return Detection{}
	}
	n := 0
	for i := len(seq) - 1; i >= 0; i-- {
		want := x
		if (len(seq)-1-i)%2 == 1 {
			want = y
		}
		if !seq[i].SameAs(want) {
			break
		}
		n++
	}
	cycles := n / 2
	if d.cfg.OscillationCycles <= 0 || cycles < d.cfg.OscillationCycles {
		return Detection{}
	}
	return d.grade(PatternOscillation, n, 1, d.cfg.SevereCount,
		fmt.Sprintf("alternating between %s and %s for %d steps", y.Kind, x.Kind, n))
}
