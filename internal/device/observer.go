// internal/device/observer.go
package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Registers the JPEG decoder for DecodeConfig.
	_ "image/png"  // Registers the PNG decoder for DecodeConfig.
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// Observer captures screen state over ADB.
type Observer struct {
	adb    *ADB
	logger *zap.Logger
}

// NewObserver creates an observer bound to one device.
func NewObserver(adb *ADB, logger *zap.Logger) *Observer {
	return &Observer{adb: adb, logger: logger.Named("observer")}
}

// CaptureScreen takes a screenshot and reads its dimensions from the image
// header.
func (o *Observer) CaptureScreen(ctx context.Context) (schemas.Screenshot, error) {
	data, err := o.adb.Screencap(ctx)
	if err != nil {
		return schemas.Screenshot{}, fmt.Errorf("screen capture failed: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return schemas.Screenshot{}, fmt.Errorf("screen capture returned an undecodable image (%d bytes): %w", len(data), err)
	}
	return schemas.Screenshot{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// CurrentApp reports the foreground package. An unparseable dumpsys answer
// yields the unknown app without an error.
func (o *Observer) CurrentApp(ctx context.Context) (schemas.AppInfo, error) {
	unknown := schemas.AppInfo{Package: schemas.UnknownApp, Activity: schemas.UnknownApp}
	line, err := o.adb.ResumedActivity(ctx)
	if err != nil {
		return unknown, fmt.Errorf("failed to query foreground activity: %w", err)
	}
	info, ok := parseResumedActivity(line)
	if !ok {
		o.logger.Debug("Foreground activity not recognized", zap.String("line", line))
		return unknown, nil
	}
	return info, nil
}

// parseResumedActivity extracts the component from a line such as
// "mResumedActivity: ActivityRecord{1a2b u0 com.example/.MainActivity t12}".
func parseResumedActivity(line string) (schemas.AppInfo, bool) {
	for _, field := range strings.Fields(line) {
		field = strings.TrimRight(field, "}")
		pkg, activity, found := strings.Cut(field, "/")
		if !found || !strings.Contains(pkg, ".") || pkg == "" {
			continue
		}
		return schemas.AppInfo{Package: pkg, Activity: activity}, true
	}
	return schemas.AppInfo{}, false
}

// EnsureAwake wakes the screen if it is off and reports whether it is on
// afterwards.
func (o *Observer) EnsureAwake(ctx context.Context, wake bool) (bool, error) {
	on, err := o.adb.ScreenOn(ctx)
	if err != nil {
		// dumpsys is unavailable on some builds; assume the screen is usable.
		o.logger.Warn("Could not read screen power state", zap.Error(err))
		return true, nil
	}
	if on || !wake {
		return on, nil
	}
	o.logger.Info("Screen is off, waking device")
	if err := o.adb.Wake(ctx); err != nil {
		return false, fmt.Errorf("failed to wake screen: %w", err)
	}
	return o.adb.ScreenOn(ctx)
}
