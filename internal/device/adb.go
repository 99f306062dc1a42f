// internal/device/adb.go
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes one adb invocation and returns its standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the adb binary found at Path.
type ExecRunner struct {
	Path string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	path := r.Path
	if path == "" {
		path = "adb"
	}
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", path, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

const (
	keycodeHome  = "3"
	keycodeBack  = "4"
	keycodePower = "26"

	yadbClassPath = "/data/local/tmp/yadb"
	yadbMain      = "com.ysbing.yadb.Main"

	fallbackWidth  = 1080
	fallbackHeight = 1920
)

var (
	physicalSizeRe = regexp.MustCompile(`Physical size:\s*(\d+)x(\d+)`)
	overrideSizeRe = regexp.MustCompile(`Override size:\s*(\d+)x(\d+)`)
)

// ADB issues device commands for a single serial.
type ADB struct {
	runner  Runner
	serial  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewADB binds a runner to a device serial. An empty serial targets the only
// attached device.
func NewADB(runner Runner, serial string, timeout time.Duration, logger *zap.Logger) *ADB {
	return &ADB{
		runner:  runner,
		serial:  serial,
		timeout: timeout,
		logger:  logger.Named("adb").With(zap.String("serial", serial)),
	}
}

// Serial returns the device serial this instance targets.
func (a *ADB) Serial() string { return a.serial }

func (a *ADB) run(ctx context.Context, args ...string) ([]byte, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if a.serial != "" {
		args = append([]string{"-s", a.serial}, args...)
	}
	out, err := a.runner.Run(ctx, args...)
	if err != nil {
		a.logger.Debug("adb command failed", zap.Strings("args", args), zap.Error(err))
	}
	return out, err
}

func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	return a.run(ctx, append([]string{"shell"}, args...)...)
}

// Tap taps an absolute pixel position.
func (a *ADB) Tap(ctx context.Context, x, y int) error {
	_, err := a.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// DoubleTap taps the same position twice.
func (a *ADB) DoubleTap(ctx context.Context, x, y int) error {
	if err := a.Tap(ctx, x, y); err != nil {
		return err
	}
	return a.Tap(ctx, x, y)
}

// LongPress holds a position, expressed as a zero-length swipe.
func (a *ADB) LongPress(ctx context.Context, x, y int, d time.Duration) error {
	return a.Swipe(ctx, x, y, x, y, d)
}

// Swipe drags between two absolute positions over d.
func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	_, err := a.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(d.Milliseconds(), 10))
	return err
}

// TypeText enters text into the focused field. With useYADB the YADB
// keyboard is tried first because "input text" cannot type non-ASCII.
func (a *ADB) TypeText(ctx context.Context, text string, useYADB bool) error {
	if useYADB {
		_, err := a.shell(ctx, "app_process", "-Djava.class.path="+yadbClassPath, "/data/local/tmp", yadbMain, "-keyboard", shellQuote(text))
		if err == nil {
			return nil
		}
		a.logger.Debug("YADB input failed, falling back to input text", zap.Error(err))
	}
	// input text reads %s as a space.
	_, err := a.shell(ctx, "input", "text", shellQuote(strings.ReplaceAll(text, " ", "%s")))
	return err
}

// Back presses the system back key.
func (a *ADB) Back(ctx context.Context) error {
	_, err := a.shell(ctx, "input", "keyevent", keycodeBack)
	return err
}

// Home presses the system home key.
func (a *ADB) Home(ctx context.Context) error {
	_, err := a.shell(ctx, "input", "keyevent", keycodeHome)
	return err
}

// Launch starts the launcher activity of a package.
func (a *ADB) Launch(ctx context.Context, pkg string) error {
	out, err := a.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	if bytes.Contains(out, []byte("monkey aborted")) || bytes.Contains(out, []byte("No activities found")) {
		return fmt.Errorf("package %s has no launchable activity", pkg)
	}
	return nil
}

// ScreenSize reports the display size in pixels, preferring an override
// size when one is set.
func (a *ADB) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := a.shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	return parseScreenSize(string(out))
}

func parseScreenSize(out string) (int, int, error) {
	m := overrideSizeRe.FindStringSubmatch(out)
	if m == nil {
		m = physicalSizeRe.FindStringSubmatch(out)
	}
	if m == nil {
		return 0, 0, fmt.Errorf("unrecognized wm size output: %q", strings.TrimSpace(out))
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h, nil
}

// Screencap returns a PNG of the current screen.
func (a *ADB) Screencap(ctx context.Context) ([]byte, error) {
	out, err := a.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("screencap returned no data")
	}
	return out, nil
}

// ResumedActivity returns the raw dumpsys line naming the foreground activity.
func (a *ADB) ResumedActivity(ctx context.Context) (string, error) {
	out, err := a.shell(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "mResumedActivity") || strings.Contains(line, "topResumedActivity") {
			return strings.TrimSpace(line), nil
		}
	}
	return "", nil
}

// ScreenOn reports whether the display is on. Unknown states count as on.
func (a *ADB) ScreenOn(ctx context.Context) (bool, error) {
	out, err := a.shell(ctx, "dumpsys", "power")
	if err != nil {
		return true, err
	}
	s := string(out)
	if strings.Contains(s, "Display Power: state=OFF") || strings.Contains(s, "mWakefulness=Asleep") {
		return false, nil
	}
	return true, nil
}

// Wake presses power and swipes up to dismiss an insecure lock screen.
func (a *ADB) Wake(ctx context.Context) error {
	if _, err := a.shell(ctx, "input", "keyevent", keycodePower); err != nil {
		return err
	}
	return a.Swipe(ctx, 500, 1000, 500, 300, 300*time.Millisecond)
}

// ListDevices returns the serials of attached devices in the "device" state.
func ListDevices(ctx context.Context, runner Runner) ([]string, error) {
	out, err := runner.Run(ctx, "devices")
	if err != nil {
		return nil, fmt.Errorf("failed to list adb devices: %w", err)
	}
	var serials []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}

// shellQuote wraps s in single quotes for the device shell, which re-splits
// everything adb passes to it.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
