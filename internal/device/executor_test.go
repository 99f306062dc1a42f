// internal/device/executor_test.go
package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/droidpilot/internal/actions"
)

func pt(x, y int) *actions.Point { return &actions.Point{X: x, Y: y} }

func TestExecutor_DeviceCommands(t *testing.T) {
	tests := []struct {
		name   string
		action actions.Action
		want   []string
	}{
		{
			name:   "click maps normalized to pixels",
			action: actions.Action{Kind: actions.KindClick, Params: actions.Params{Point: pt(500, 250)}},
			want:   []string{"shell input tap 500 500"},
		},
		{
			name:   "double tap taps twice",
			action: actions.Action{Kind: actions.KindDoubleTap, Params: actions.Params{Point: pt(100, 100)}},
			want:   []string{"shell input tap 100 200", "shell input tap 100 200"},
		},
		{
			name:   "long press is a stationary swipe",
			action: actions.Action{Kind: actions.KindLongPress, Params: actions.Params{Point: pt(100, 100)}},
			want:   []string{"shell input swipe 100 200 100 200 2000"},
		},
		{
			name:   "two point swipe",
			action: actions.Action{Kind: actions.KindSwipe, Params: actions.Params{Point1: pt(500, 800), Point2: pt(500, 200), Duration: "1"}},
			want:   []string{"shell input swipe 500 1600 500 400 1000"},
		},
		{
			name:   "direction swipe moves by the swipe fraction",
			action: actions.Action{Kind: actions.KindSwipe, Params: actions.Params{Point: pt(500, 500), Direction: actions.DirectionUp}},
			want:   []string{"shell input swipe 500 1000 500 400 500"},
		},
		{
			name:   "direction swipe is clamped to the screen",
			action: actions.Action{Kind: actions.KindSwipe, Params: actions.Params{Point: pt(900, 500), Direction: actions.DirectionRight}},
			want:   []string{"shell input swipe 900 1000 999 1000 500"},
		},
		{
			name:   "back",
			action: actions.Action{Kind: actions.KindBack},
			want:   []string{"shell input keyevent 4"},
		},
		{
			name:   "home",
			action: actions.Action{Kind: actions.KindHome},
			want:   []string{"shell input keyevent 3"},
		},
		{
			name:   "launch resolves app names",
			action: actions.Action{Kind: actions.KindLaunch, Params: actions.Params{Value: "微信"}},
			want:   []string{"shell monkey -p com.tencent.mm -c android.intent.category.LAUNCHER 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			exec, _ := newTestExecutor(t, runner)

			outcome, err := exec.Execute(context.Background(), tt.action)
			require.NoError(t, err)
			assert.True(t, outcome.Success)
			assert.False(t, outcome.ShouldFinish)
			assert.Equal(t, tt.want, runner.Calls())
		})
	}
}

func TestExecutor_TypeFocusesThenTypesWithYADB(t *testing.T) {
	runner := newFakeRunner()
	exec, slept := newTestExecutor(t, runner)

	action := actions.Action{Kind: actions.KindType, Params: actions.Params{Point: pt(500, 100), Value: "it's fine"}}
	outcome, err := exec.Execute(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "shell input tap 500 200", calls[0])
	assert.Equal(t, `shell app_process -Djava.class.path=/data/local/tmp/yadb /data/local/tmp com.ysbing.yadb.Main -keyboard 'it'\''s fine'`, calls[1])
	assert.Equal(t, []time.Duration{typeFocusDelay}, *slept)
}

func TestExecutor_TypeFallsBackToInputText(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["shell app_process"] = errors.New("yadb missing")
	exec, _ := newTestExecutor(t, runner)

	outcome, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindType, Params: actions.Params{Value: "hello world"}})
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "shell input text 'hello%sworld'", calls[1])
}

func TestExecutor_NoDeviceKinds(t *testing.T) {
	for _, a := range []actions.Action{
		{Kind: actions.KindAskUser, Params: actions.Params{Value: "Which account?"}},
		{Kind: actions.KindTakeOver, Params: actions.Params{Message: "Please log in"}},
		{Kind: actions.KindNote, Params: actions.Params{Value: "price is 42"}},
	} {
		runner := newFakeRunner()
		exec, _ := newTestExecutor(t, runner)
		outcome, err := exec.Execute(context.Background(), a)
		require.NoError(t, err, a.Kind)
		assert.True(t, outcome.Success, a.Kind)
		assert.False(t, outcome.ShouldFinish, a.Kind)
		assert.Empty(t, runner.Calls(), a.Kind)
	}
}

func TestExecutor_TerminalKindsFinish(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeRunner())

	done, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindComplete, Params: actions.Params{Return: "sent"}})
	require.NoError(t, err)
	assert.Equal(t, actions.Outcome{Success: true, ShouldFinish: true, Message: "sent"}, done)

	aborted, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindAbort, Params: actions.Params{Reason: "no network"}})
	require.NoError(t, err)
	assert.True(t, aborted.ShouldFinish)
	assert.Equal(t, "no network", aborted.Message)
}

func TestExecutor_Wait(t *testing.T) {
	exec, slept := newTestExecutor(t, newFakeRunner())
	_, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindWait, Params: actions.Params{Value: "1.5"}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, *slept)
}

func TestExecutor_SensitiveClickDeclined(t *testing.T) {
	runner := newFakeRunner()
	var asked string
	exec, _ := newTestExecutor(t, runner, WithConfirm(func(_ context.Context, msg string) bool {
		asked = msg
		return false
	}))

	outcome, err := exec.Execute(context.Background(), actions.Action{
		Kind:   actions.KindClick,
		Params: actions.Params{Point: pt(500, 500), Message: "Pay 100 yuan"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pay 100 yuan", asked)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.ShouldFinish)
	assert.Equal(t, actions.ErrCodeUserAbort, outcome.ErrorCode)
	assert.Empty(t, runner.Calls(), "a declined tap must not reach the device")
}

func TestExecutor_Failures(t *testing.T) {
	t.Run("invalid params", func(t *testing.T) {
		exec, _ := newTestExecutor(t, newFakeRunner())
		outcome, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindClick})
		require.Error(t, err)
		assert.Equal(t, actions.ErrCodeInvalidParameters, outcome.ErrorCode)
	})

	t.Run("unknown kind", func(t *testing.T) {
		exec, _ := newTestExecutor(t, newFakeRunner())
		outcome, err := exec.Execute(context.Background(), actions.Action{Kind: "FLY"})
		require.Error(t, err)
		assert.Equal(t, actions.ErrCodeInvalidParameters, outcome.ErrorCode, "validation rejects unknown kinds first")
	})

	t.Run("unknown app", func(t *testing.T) {
		runner := newFakeRunner()
		exec, _ := newTestExecutor(t, runner)
		outcome, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindLaunch, Params: actions.Params{Value: "Definitely Not Installed"}})
		require.Error(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, actions.ErrCodeInvalidParameters, outcome.ErrorCode)
		assert.Empty(t, runner.Calls())
	})

	t.Run("device command failure", func(t *testing.T) {
		runner := newFakeRunner()
		runner.failures["shell input keyevent"] = errors.New("device offline")
		exec, _ := newTestExecutor(t, runner)
		outcome, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindBack})
		require.Error(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, actions.ErrCodeDeviceCommand, outcome.ErrorCode)
		assert.Contains(t, outcome.Message, "device offline")
	})

	t.Run("timeout", func(t *testing.T) {
		runner := newFakeRunner()
		runner.failures["shell input keyevent"] = context.DeadlineExceeded
		exec, _ := newTestExecutor(t, runner)
		outcome, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindHome})
		require.Error(t, err)
		assert.Equal(t, actions.ErrCodeTimeout, outcome.ErrorCode)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		exec, _ := newTestExecutor(t, newFakeRunner(), WithPackageResolver(func(string) (string, bool) {
			panic("resolver exploded")
		}))
		outcome, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindLaunch, Params: actions.Params{Value: "x"}})
		require.Error(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, actions.ErrCodeExecutorPanic, outcome.ErrorCode)
		assert.Contains(t, err.Error(), "resolver exploded")
	})
}

func TestExecutor_ScreenSizeQueriedOnceWithFallback(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["shell wm size"] = "Physical size: 1080x2400\nOverride size: 720x1600\n"
	exec, err := NewExecutor(NewADB(runner, "", 0, zapLogger(t)), testDeviceConfig(), zapLogger(t))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := exec.Execute(context.Background(), actions.Action{Kind: actions.KindClick, Params: actions.Params{Point: pt(500, 500)}})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"shell wm size", "shell input tap 360 800", "shell input tap 360 800"}, runner.Calls())

	broken := newFakeRunner()
	broken.failures["shell wm size"] = errors.New("no wm")
	exec, err = NewExecutor(NewADB(broken, "", 0, zapLogger(t)), testDeviceConfig(), zapLogger(t))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), actions.Action{Kind: actions.KindClick, Params: actions.Params{Point: pt(500, 500)}})
	require.NoError(t, err)
	assert.Equal(t, "shell input tap 540 960", broken.Calls()[1])
}

type partialExecutor struct{}

func (partialExecutor) Supports(k actions.Kind) bool { return k != actions.KindNote }

func TestValidateExecutor(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeRunner())
	assert.NoError(t, ValidateExecutor(exec))

	err := ValidateExecutor(partialExecutor{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTE")
}
