// internal/device/executor.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

const (
	defaultSwipeDuration     = 500 * time.Millisecond
	defaultLongPressDuration = 2 * time.Second
	typeFocusDelay           = 500 * time.Millisecond
)

// ConfirmFunc asks the user to approve a sensitive tap. Returning false
// cancels the tap and ends the run.
type ConfirmFunc func(ctx context.Context, message string) bool

// actionHandler performs one kind of action. A returned error marks the
// outcome as failed and is classified into an error code by Execute.
type actionHandler func(ctx context.Context, action actions.Action) (actions.Outcome, error)

// Executor dispatches validated actions to a device over ADB.
type Executor struct {
	adb      *ADB
	cfg      config.DeviceConfig
	logger   *zap.Logger
	handlers map[actions.Kind]actionHandler
	resolve  func(name string) (string, bool)
	confirm  ConfirmFunc
	sleep    func(ctx context.Context, d time.Duration) error

	sizeMu        sync.Mutex
	width, height int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithConfirm installs the approval hook for taps that carry a message.
func WithConfirm(fn ConfirmFunc) ExecutorOption {
	return func(e *Executor) { e.confirm = fn }
}

// WithPackageResolver replaces the built-in app table used by LAUNCH.
func WithPackageResolver(fn func(name string) (string, bool)) ExecutorOption {
	return func(e *Executor) { e.resolve = fn }
}

// WithScreenSize fixes the pixel size instead of querying "wm size".
func WithScreenSize(width, height int) ExecutorOption {
	return func(e *Executor) { e.width, e.height = width, height }
}

// WithSleeper replaces the context-aware sleep used by WAIT and input pacing.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor builds an executor and checks that every action kind has a
// handler.
func NewExecutor(adb *ADB, cfg config.DeviceConfig, logger *zap.Logger, opts ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		adb:     adb,
		cfg:     cfg,
		logger:  logger.Named("executor"),
		resolve: FindPackage,
		confirm: func(context.Context, string) bool { return true },
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registerHandlers()
	if err := ValidateExecutor(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Executor) registerHandlers() {
	e.handlers = map[actions.Kind]actionHandler{
		actions.KindClick:     e.handleClick,
		actions.KindDoubleTap: e.handleDoubleTap,
		actions.KindLongPress: e.handleLongPress,
		actions.KindSwipe:     e.handleSwipe,
		actions.KindType:      e.handleType,
		actions.KindBack:      e.handleBack,
		actions.KindHome:      e.handleHome,
		actions.KindLaunch:    e.handleLaunch,
		actions.KindWait:      e.handleWait,
		actions.KindAskUser:   e.handleNoop,
		actions.KindTakeOver:  e.handleNoop,
		actions.KindNote:      e.handleNoop,
		actions.KindComplete:  e.handleFinish,
		actions.KindAbort:     e.handleFinish,
	}
}

// Supports reports whether the executor has a handler for kind.
func (e *Executor) Supports(kind actions.Kind) bool {
	_, ok := e.handlers[kind]
	return ok
}

// KindSupporter is implemented by executors that can enumerate their kinds.
type KindSupporter interface {
	Supports(kind actions.Kind) bool
}

// ValidateExecutor fails when any declared action kind has no handler.
func ValidateExecutor(s KindSupporter) error {
	var missing []error
	for _, k := range actions.Kinds() {
		if !s.Supports(k) {
			missing = append(missing, fmt.Errorf("no handler for action kind %s", k))
		}
	}
	return errors.Join(missing...)
}

// Execute runs one action. The returned error, when set, explains a failed
// outcome; the outcome is always populated.
func (e *Executor) Execute(ctx context.Context, action actions.Action) (outcome actions.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Executor panicked", zap.String("kind", string(action.Kind)), zap.Any("panic", r))
			err = fmt.Errorf("executor panic while handling %s: %v", action.Kind, r)
			outcome = actions.Outcome{Message: err.Error(), ErrorCode: actions.ErrCodeExecutorPanic}
		}
	}()

	if verr := action.Validate(); verr != nil {
		return actions.Outcome{Message: verr.Error(), ErrorCode: actions.ErrCodeInvalidParameters}, verr
	}
	handler, ok := e.handlers[action.Kind]
	if !ok {
		err = fmt.Errorf("no handler for action kind %s", action.Kind)
		return actions.Outcome{Message: err.Error(), ErrorCode: actions.ErrCodeUnknownAction}, err
	}

	outcome, err = handler(ctx, action)
	if err != nil {
		outcome.Success = false
		if outcome.ErrorCode == "" {
			outcome.ErrorCode = classifyError(ctx, err)
		}
		if outcome.Message == "" {
			outcome.Message = err.Error()
		}
		e.logger.Warn("Action execution failed",
			zap.String("kind", string(action.Kind)),
			zap.String("error_code", string(outcome.ErrorCode)),
			zap.Error(err))
		return outcome, err
	}
	return outcome, nil
}

func classifyError(ctx context.Context, err error) actions.ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return actions.ErrCodeTimeout
	}
	return actions.ErrCodeDeviceCommand
}

var success = actions.Outcome{Success: true}

// -- Handlers --

func (e *Executor) handleClick(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	if a.Params.Message != "" && !e.confirm(ctx, a.Params.Message) {
		return actions.Outcome{
			ShouldFinish: true,
			Message:      "user declined sensitive operation: " + a.Params.Message,
			ErrorCode:    actions.ErrCodeUserAbort,
		}, nil
	}
	x, y, err := e.absolute(ctx, *a.Params.Point)
	if err != nil {
		return actions.Outcome{}, err
	}
	return success, e.adb.Tap(ctx, x, y)
}

func (e *Executor) handleDoubleTap(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	x, y, err := e.absolute(ctx, *a.Params.Point)
	if err != nil {
		return actions.Outcome{}, err
	}
	return success, e.adb.DoubleTap(ctx, x, y)
}

func (e *Executor) handleLongPress(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	x, y, err := e.absolute(ctx, *a.Params.Point)
	if err != nil {
		return actions.Outcome{}, err
	}
	return success, e.adb.LongPress(ctx, x, y, duration(a.Params.Duration, defaultLongPressDuration))
}

func (e *Executor) handleSwipe(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	p := a.Params
	d := duration(p.Duration, defaultSwipeDuration)

	if p.Point1 != nil && p.Point2 != nil {
		x1, y1, err := e.absolute(ctx, *p.Point1)
		if err != nil {
			return actions.Outcome{}, err
		}
		x2, y2, err := e.absolute(ctx, *p.Point2)
		if err != nil {
			return actions.Outcome{}, err
		}
		return success, e.adb.Swipe(ctx, x1, y1, x2, y2, d)
	}

	w, h, err := e.screenSize(ctx)
	if err != nil {
		return actions.Outcome{}, err
	}
	x, y := p.Point.ToAbsolute(w, h)
	dx, dy := int(e.cfg.SwipeFraction*float64(w)), int(e.cfg.SwipeFraction*float64(h))
	x2, y2 := x, y
	switch p.Direction {
	case actions.DirectionUp:
		y2 = y - dy
	case actions.DirectionDown:
		y2 = y + dy
	case actions.DirectionLeft:
		x2 = x - dx
	case actions.DirectionRight:
		x2 = x + dx
	default:
		return actions.Outcome{ErrorCode: actions.ErrCodeInvalidParameters}, fmt.Errorf("invalid swipe direction %q", p.Direction)
	}
	return success, e.adb.Swipe(ctx, x, y, clamp(x2, 0, w-1), clamp(y2, 0, h-1), d)
}

func (e *Executor) handleType(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	if a.Params.Point != nil {
		x, y, err := e.absolute(ctx, *a.Params.Point)
		if err != nil {
			return actions.Outcome{}, err
		}
		if err := e.adb.Tap(ctx, x, y); err != nil {
			return actions.Outcome{}, fmt.Errorf("failed to focus input field: %w", err)
		}
		if err := e.sleep(ctx, typeFocusDelay); err != nil {
			return actions.Outcome{}, err
		}
	}
	return success, e.adb.TypeText(ctx, a.Params.Value, e.cfg.UseYADB)
}

func (e *Executor) handleBack(ctx context.Context, _ actions.Action) (actions.Outcome, error) {
	return success, e.adb.Back(ctx)
}

func (e *Executor) handleHome(ctx context.Context, _ actions.Action) (actions.Outcome, error) {
	return success, e.adb.Home(ctx)
}

func (e *Executor) handleLaunch(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	pkg, ok := e.resolve(a.Params.Value)
	if !ok {
		return actions.Outcome{ErrorCode: actions.ErrCodeInvalidParameters}, fmt.Errorf("unknown app %q", a.Params.Value)
	}
	if err := e.adb.Launch(ctx, pkg); err != nil {
		return actions.Outcome{}, fmt.Errorf("failed to launch %s (%s): %w", a.Params.Value, pkg, err)
	}
	return actions.Outcome{Success: true, Message: "launched " + pkg}, nil
}

func (e *Executor) handleWait(ctx context.Context, a actions.Action) (actions.Outcome, error) {
	secs, _ := actions.ParseSeconds(a.Params.Value)
	return success, e.sleep(ctx, time.Duration(secs*float64(time.Second)))
}

// handleNoop covers kinds the loop itself acts on.
func (e *Executor) handleNoop(_ context.Context, _ actions.Action) (actions.Outcome, error) {
	return success, nil
}

func (e *Executor) handleFinish(_ context.Context, a actions.Action) (actions.Outcome, error) {
	msg := a.Params.Return
	if a.Kind == actions.KindAbort {
		msg = firstNonEmpty(a.Params.Reason, a.Params.Value, "Task aborted")
	} else if msg == "" {
		msg = "Task completed"
	}
	return actions.Outcome{Success: true, ShouldFinish: true, Message: msg}, nil
}

// -- Geometry --

func (e *Executor) absolute(ctx context.Context, p actions.Point) (int, int, error) {
	w, h, err := e.screenSize(ctx)
	if err != nil {
		return 0, 0, err
	}
	x, y := p.ToAbsolute(w, h)
	return x, y, nil
}

// screenSize queries the display once and caches it. A failed query falls
// back to a common phone resolution.
func (e *Executor) screenSize(ctx context.Context) (int, int, error) {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	if e.width > 0 && e.height > 0 {
		return e.width, e.height, nil
	}
	w, h, err := e.adb.ScreenSize(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		e.logger.Warn("Could not read screen size, using fallback", zap.Error(err),
			zap.Int("width", fallbackWidth), zap.Int("height", fallbackHeight))
		w, h = fallbackWidth, fallbackHeight
	}
	e.width, e.height = w, h
	return w, h, nil
}

func duration(seconds string, def time.Duration) time.Duration {
	if v, ok := actions.ParseSeconds(seconds); ok && v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return def
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
