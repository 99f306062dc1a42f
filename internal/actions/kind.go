// internal/actions/kind.go
package actions

import "strings"

// Kind is the closed set of operations a model may request on the device.
type Kind string

const (
	// -- Touch --
	KindClick     Kind = "CLICK"      // Tap a point.
	KindDoubleTap Kind = "DOUBLE_TAP" // Tap a point twice in quick succession.
	KindLongPress Kind = "LONG_PRESS" // Press and hold a point.

	// -- Gesture and input --
	KindSwipe Kind = "SWIPE" // Drag between two points, or from a point in a direction.
	KindType  Kind = "TYPE"  // Enter text into the focused field.

	// -- Navigation --
	KindBack   Kind = "BACK"   // System back key.
	KindHome   Kind = "HOME"   // System home key.
	KindLaunch Kind = "LAUNCH" // Start an app by name or package.

	// -- Control flow --
	KindWait     Kind = "WAIT"      // Pause for a number of seconds.
	KindAskUser  Kind = "ASK_USER"  // Suspend and ask the user a question.
	KindComplete Kind = "COMPLETE"  // The task is done.
	KindAbort    Kind = "ABORT"     // The task cannot be done.
	KindTakeOver Kind = "TAKE_OVER" // Hand the device to the user (login, captcha).
	KindNote     Kind = "NOTE"      // Record information without touching the device.
)

// allKinds preserves declaration order for prompts and iteration.
var allKinds = []Kind{
	KindClick, KindDoubleTap, KindLongPress, KindSwipe, KindType,
	KindBack, KindHome, KindLaunch, KindWait, KindAskUser,
	KindComplete, KindAbort, KindTakeOver, KindNote,
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the kind ends a run.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindAbort
}

// Interactive reports whether the kind suspends the run for the user.
func (k Kind) Interactive() bool {
	return k == KindAskUser || k == KindTakeOver
}

// TouchesDevice reports whether dispatching the kind sends input to the device.
func (k Kind) TouchesDevice() bool {
	switch k {
	case KindClick, KindDoubleTap, KindLongPress, KindSwipe, KindType,
		KindBack, KindHome, KindLaunch:
		return true
	default:
		return false
	}
}

// aliases maps every accepted action name to its kind. Lookup is
// case-sensitive; names outside this table do not parse.
var aliases = map[string]Kind{
	"CLICK":        KindClick,
	"Tap":          KindClick,
	"DOUBLE_TAP":   KindDoubleTap,
	"DOUBLE_CLICK": KindDoubleTap,
	"Double Tap":   KindDoubleTap,
	"LONG_PRESS":   KindLongPress,
	"LONGPRESS":    KindLongPress,
	"Long Press":   KindLongPress,
	"SWIPE":        KindSwipe,
	"SLIDE":        KindSwipe,
	"SCROLL":       KindSwipe,
	"Swipe":        KindSwipe,
	"TYPE":         KindType,
	"Type":         KindType,
	"Type_Name":    KindType,
	"BACK":         KindBack,
	"Back":         KindBack,
	"HOME":         KindHome,
	"Home":         KindHome,
	"LAUNCH":       KindLaunch,
	"AWAKE":        KindLaunch,
	"Launch":       KindLaunch,
	"WAIT":         KindWait,
	"Wait":         KindWait,
	"ASK_USER":     KindAskUser,
	"INFO":         KindAskUser,
	"Interact":     KindAskUser,
	"COMPLETE":     KindComplete,
	"finish":       KindComplete,
	"ABORT":        KindAbort,
	"TAKE_OVER":    KindTakeOver,
	"Take_over":    KindTakeOver,
	"NOTE":         KindNote,
	"Call_API":     KindNote,
}

// LookupKind resolves an action name from model output. Surrounding
// whitespace is ignored; case is not.
func LookupKind(name string) (Kind, bool) {
	k, ok := aliases[strings.TrimSpace(name)]
	return k, ok
}

// functionNames is the preferred name for each kind in the function-call
// convention. Kinds missing here render under their canonical name.
var functionNames = map[Kind]string{
	KindClick:     "Tap",
	KindDoubleTap: "Double Tap",
	KindLongPress: "Long Press",
	KindSwipe:     "Swipe",
	KindType:      "Type",
	KindBack:      "Back",
	KindHome:      "Home",
	KindLaunch:    "Launch",
	KindWait:      "Wait",
	KindAskUser:   "Interact",
	KindTakeOver:  "Take_over",
}

// FunctionName returns the name used for k inside do(action=...).
func (k Kind) FunctionName() string {
	if name, ok := functionNames[k]; ok {
		return name
	}
	return string(k)
}

// Direction is a swipe direction.
type Direction string

const (
	DirectionUp    Direction = "UP"
	DirectionDown  Direction = "DOWN"
	DirectionLeft  Direction = "LEFT"
	DirectionRight Direction = "RIGHT"
)

// ParseDirection accepts a direction name in any case.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return d, true
	default:
		return "", false
	}
}
