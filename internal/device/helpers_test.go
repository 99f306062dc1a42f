// internal/device/helpers_test.go
package device

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/internal/config"
)

// fakeRunner records adb invocations and answers them from a table keyed by
// the argument prefix (after the -s serial pair).
type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string
	failures  map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string]string{}, failures: map[string]error{}}
}

func (f *fakeRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(args) >= 2 && args[0] == "-s" {
		args = args[2:]
	}
	line := strings.Join(args, " ")
	f.calls = append(f.calls, line)
	for prefix, err := range f.failures {
		if strings.HasPrefix(line, prefix) {
			return nil, err
		}
	}
	for prefix, out := range f.responses {
		if strings.HasPrefix(line, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func zapLogger(t *testing.T) *zap.Logger { return zaptest.NewLogger(t) }

func testDeviceConfig() config.DeviceConfig {
	return config.NewDefaultConfig().Device
}

// newTestExecutor wires an executor to a fake runner on a 1000x2000 screen
// with an instant sleeper.
func newTestExecutor(t *testing.T, runner *fakeRunner, opts ...ExecutorOption) (*Executor, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	logger := zaptest.NewLogger(t)
	adb := NewADB(runner, "emulator-5554", time.Second, logger)
	base := []ExecutorOption{
		WithScreenSize(1000, 2000),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	}
	exec, err := NewExecutor(adb, testDeviceConfig(), logger, append(base, opts...)...)
	require.NoError(t, err)
	return exec, &slept
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}
