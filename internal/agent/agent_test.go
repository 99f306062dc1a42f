package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/planner"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// -- Test Setup --

type harness struct {
	obs  *MockObserver
	exec *MockExecutor
	llm  *MockLLMClient
	cfg  config.AgentConfig
	deps Dependencies
}

var testShot = schemas.Screenshot{Data: []byte{0x89, 'P', 'N', 'G'}, Format: "png", Width: 1080, Height: 1920}

// newHarness wires mocks that observe a launcher screen and succeed at every
// action. Tests queue model responses with llm.respond.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		obs:  new(MockObserver),
		exec: new(MockExecutor),
		llm:  new(MockLLMClient),
	}
	h.obs.On("CaptureScreen", mock.Anything).Return(testShot, nil)
	h.obs.On("CurrentApp", mock.Anything).Return(schemas.AppInfo{Package: "com.android.launcher3"}, nil)

	cfg := config.NewDefaultConfig().Agent
	cfg.MaxSteps = 10
	cfg.StepDelay = 0
	cfg.ResetToHome = false
	cfg.AutoWakeScreen = false
	cfg.UsePlanning = false
	cfg.ReplyTimeout = 5 * time.Second
	h.cfg = cfg

	h.deps = Dependencies{Observer: h.obs, Executor: h.exec, Model: h.llm, Device: "emulator-5554"}
	return h
}

// succeedAll makes every dispatch succeed. Register specific expectations first.
func (h *harness) succeedAll() {
	h.exec.On("Execute", mock.Anything, mock.Anything).Return(actions.Outcome{Success: true}, nil)
}

func (h *harness) build(t *testing.T) *Agent {
	t.Helper()
	a, err := New(h.deps, h.cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

func drain(a *Agent) []StepResult {
	var out []StepResult
	for r := range a.Steps() {
		out = append(out, r)
	}
	return out
}

func kinds(as []actions.Action) []actions.Kind {
	out := make([]actions.Kind, len(as))
	for i, a := range as {
		out[i] = a.Kind
	}
	return out
}

func hasError(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func requestAt(t *testing.T, llm *MockLLMClient, i int) schemas.GenerationRequest {
	t.Helper()
	require.Greater(t, len(llm.Calls), i)
	return llm.Calls[i].Arguments.Get(1).(schemas.GenerationRequest)
}

func lastText(req schemas.GenerationRequest) string {
	return req.Messages[len(req.Messages)-1].Text
}

// -- Test Cases --

func TestRun_OpenAppAndSearch(t *testing.T) {
	h := newHarness(t)
	h.cfg.UsePlanning = true
	logger := zaptest.NewLogger(t)
	h.deps.Planner = planner.NewPlanner(logger, nil, nil, planner.HeuristicAdvancer{AutoAdvanceAfter: h.cfg.AutoAdvanceAfter}, "en")
	h.succeedAll()

	h.llm.respond(`do(action="Launch", app="App A")`)
	h.llm.respond(`do(action="Tap", element=[500, 80])`)
	h.llm.respond("do(action=\"Type\", text=\"X\")\nfinish(message=\"Searched for X\")")

	a := h.build(t)
	res := a.Run(context.Background(), "open App A and search for X")

	assert.True(t, res.Success)
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.Equal(t, 3, res.StepCount)
	assert.Equal(t, "Searched for X", res.Message)
	require.NotNil(t, res.FinalAction)
	assert.Equal(t, actions.KindComplete, res.FinalAction.Kind)
	h.llm.AssertNumberOfCalls(t, "Generate", 3)

	require.NotNil(t, res.Plan)
	assert.Equal(t, planner.SourceTemplate, res.Plan.Source)
	assert.True(t, res.Plan.IsComplete(), "each step should advance one sub-goal")

	entries := res.History.Entries
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Step)
		assert.Equal(t, i+1, e.SubGoalID, "step %d should be attributed to sub-goal %d", e.Step, i+1)
	}
	assert.Equal(t, []actions.Kind{actions.KindLaunch, actions.KindClick, actions.KindType}, kinds(h.exec.Dispatched()))

	steps := drain(a)
	require.Len(t, steps, 3)
	assert.Equal(t, a.RunID(), steps[0].RunID)
	assert.Equal(t, StateTerminated, a.State())
}

func TestRun_ParseFailuresEscalateToAbort(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	for i := 0; i < 3; i++ {
		h.llm.respond("explain:nothing useful")
	}
	// Never requested.
	h.llm.respond(`finish(message="done")`)

	a := h.build(t)
	res := a.Run(context.Background(), "open settings")

	assert.False(t, res.Success)
	assert.Equal(t, StopAborted, res.StopReason)
	h.llm.AssertNumberOfCalls(t, "Generate", 3)
	assert.Equal(t, []actions.Kind{actions.KindWait, actions.KindWait, actions.KindAbort}, kinds(h.exec.Dispatched()))
	assert.Equal(t, 3, res.StepCount)
	assert.True(t, hasError(res.Errors, ErrParseBudgetExhausted))

	for _, r := range drain(a) {
		assert.True(t, r.Substituted)
		require.NotNil(t, r.Err)
		assert.Equal(t, KindParse, r.Err.Kind)
	}
}

func TestRun_SuccessfulParseResetsFailureCounter(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	h.llm.respond("explain:nothing useful")
	h.llm.respond("explain:still nothing")
	h.llm.respond("action:HOME")
	h.llm.respond("explain:nothing again")
	h.llm.respond("explain:and again")
	h.llm.respond("action:COMPLETE\treturn:home screen reached")

	res := h.build(t).Run(context.Background(), "go home")

	assert.True(t, res.Success)
	assert.Equal(t, "home screen reached", res.Message)
	assert.Equal(t, 6, res.StepCount)
	h.llm.AssertNumberOfCalls(t, "Generate", 6)
	assert.False(t, hasError(res.Errors, ErrParseBudgetExhausted))
}

func TestRun_ExhaustsStepBudget(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxSteps = 3
	h.succeedAll()
	h.llm.respond(`do(action="Tap", element=[100, 100])`)
	h.llm.respond(`do(action="Tap", element=[500, 500])`)
	h.llm.respond(`do(action="Tap", element=[900, 900])`)

	res := h.build(t).Run(context.Background(), "explore")

	assert.False(t, res.Success)
	assert.Equal(t, StopExhausted, res.StopReason)
	assert.Equal(t, 3, res.StepCount)
	assert.LessOrEqual(t, res.StepCount, h.cfg.MaxSteps)
	h.llm.AssertNumberOfCalls(t, "Generate", 3)
}

func TestRun_SevereLoopForcesAbort(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	for i := 0; i < 5; i++ {
		h.llm.respond(`do(action="Tap", element=[500, 500])`)
	}

	a := h.build(t)
	res := a.Run(context.Background(), "tap the button")

	assert.Equal(t, StopAborted, res.StopReason)
	assert.True(t, hasError(res.Errors, ErrLoopDetected))
	assert.Equal(t, []actions.Kind{
		actions.KindClick, actions.KindClick, actions.KindClick, actions.KindClick, actions.KindAbort,
	}, kinds(h.exec.Dispatched()))
	assert.Contains(t, res.Message, "stuck in a loop")

	steps := drain(a)
	require.Len(t, steps, 5)
	assert.Empty(t, steps[1].LoopWarning)
	assert.Contains(t, steps[2].LoopWarning, "repeated 3 times")
	assert.True(t, steps[4].Substituted)
	require.NotNil(t, steps[4].Err)
	assert.Equal(t, KindLoopDetected, steps[4].Err.Kind)

	// The warning raised on step 3 is shown to the model on step 4.
	assert.Contains(t, lastText(requestAt(t, h.llm, 3)), "repeated 3 times")
}

func TestRun_LoopHintReadsModelRationale(t *testing.T) {
	h := newHarness(t)
	h.cfg.UsePlanning = true
	h.deps.Planner = planner.NewPlanner(zaptest.NewLogger(t), nil, nil, nil, "en")
	h.succeedAll()
	for i := 0; i < 3; i++ {
		h.llm.respond("The screen shows a Sign in form.\n" + `do(action="Tap", element=[500, 500])`)
	}
	h.llm.respond(`finish(message="gave up")`)

	a := h.build(t)
	res := a.Run(context.Background(), "check my inbox")
	assert.True(t, res.Success)

	steps := drain(a)
	require.Len(t, steps, 4)
	assert.Contains(t, steps[2].LoopWarning, "repeated 3 times")
	assert.Contains(t, steps[2].LoopWarning, "login screen detected")
	assert.Contains(t, lastText(requestAt(t, h.llm, 3)), "login screen detected")
}

func TestRun_AskUserWaitsForReply(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.succeedAll()
	h.llm.respond(`do(action="Interact", message="Which contact?")`)
	h.llm.respond(`finish(message="Sent to Alice")`)

	a := h.build(t)
	done := make(chan RunResult, 1)
	go func() { done <- a.Run(context.Background(), "send hi to my friend") }()

	var q UserQuery
	select {
	case q = <-a.Queries():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the question")
	}
	assert.Equal(t, "Which contact?", q.Question)
	assert.Equal(t, actions.KindAskUser, q.Kind)
	assert.Equal(t, a.RunID(), q.RunID)
	assert.Equal(t, StateAwaitingUser, a.State())
	require.NoError(t, a.Reply("Alice"))

	res := <-done
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.StepCount, "ASK_USER does not count toward the step budget")
	require.Len(t, res.History.QALog, 1)
	assert.Equal(t, "Alice", res.History.QALog[0].Answer)
	assert.Contains(t, lastText(requestAt(t, h.llm, 1)), "Alice")
	assert.ErrorIs(t, a.Reply("too late"), ErrNotAwaiting)
}

func TestRun_AskUserReplyModes(t *testing.T) {
	t.Run("abort mode ends the run", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.ReplyMode = config.ReplyModeAbort
		h.succeedAll()
		h.llm.respond(`do(action="Interact", message="Which account?")`)

		res := h.build(t).Run(context.Background(), "log in")
		assert.Equal(t, StopAborted, res.StopReason)
		assert.Contains(t, res.Message, "Which account?")
		assert.Equal(t, 0, res.StepCount)
	})

	t.Run("auto mode asks the replier", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.ReplyMode = config.ReplyModeAuto
		replier := new(MockReplier)
		replier.On("Reply", mock.Anything, "book a table", "How many people?").Return("Two", nil).Once()
		h.deps.Replier = replier
		h.succeedAll()
		h.llm.respond(`do(action="Interact", message="How many people?")`)
		h.llm.respond(`finish(message="Booked")`)

		res := h.build(t).Run(context.Background(), "book a table")
		assert.True(t, res.Success)
		replier.AssertExpectations(t)
		require.Len(t, res.History.QALog, 1)
		assert.Equal(t, "Two", res.History.QALog[0].Answer)
	})

	t.Run("auto mode falls back when the replier fails", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.ReplyMode = config.ReplyModeAuto
		replier := new(MockReplier)
		replier.On("Reply", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("quota")).Once()
		h.deps.Replier = replier
		h.succeedAll()
		h.llm.respond(`do(action="Interact", message="Which size?")`)
		h.llm.respond(`finish(message="ok")`)

		res := h.build(t).Run(context.Background(), "buy shoes")
		assert.True(t, res.Success)
		require.Len(t, res.History.QALog, 1)
		assert.Equal(t, fallbackReply, res.History.QALog[0].Answer)
	})
}

func TestRun_InteractionBudgetAborts(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxSteps = 3
	h.cfg.MaxInteractions = 2
	h.cfg.ReplyMode = config.ReplyModeAuto
	replier := new(MockReplier)
	replier.On("Reply", mock.Anything, mock.Anything, "which one?").Return("the first", nil)
	h.deps.Replier = replier
	h.succeedAll()
	for i := 0; i < 4; i++ {
		h.llm.respond(`do(action="Interact", message="which one?")`)
	}

	a := h.build(t)
	res := a.Run(context.Background(), "pick an item")

	assert.False(t, res.Success)
	assert.Equal(t, StopAborted, res.StopReason)
	assert.Contains(t, res.Message, "more than 2 times")
	assert.True(t, hasError(res.Errors, ErrInteractionBudgetExhausted))
	h.llm.AssertNumberOfCalls(t, "Generate", 3)
	replier.AssertNumberOfCalls(t, "Reply", 2)
	require.Len(t, res.History.QALog, 2)

	steps := drain(a)
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	assert.True(t, last.Substituted)
	require.NotNil(t, last.Err)
	assert.True(t, last.Err.Fatal())
}

func TestRun_CancelWhileAwaitingUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.succeedAll()
	h.llm.respond(`do(action="Take_over", message="Please log in")`)

	a := h.build(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan RunResult, 1)
	go func() { done <- a.Run(ctx, "check my inbox") }()

	select {
	case q := <-a.Queries():
		assert.Equal(t, actions.KindTakeOver, q.Kind)
		assert.True(t, strings.HasPrefix(q.Question, "Please log in"))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the take over prompt")
	}
	cancel()

	res := <-done
	assert.Equal(t, StopAborted, res.StopReason)
	assert.True(t, hasError(res.Errors, context.Canceled))
	h.llm.AssertNumberOfCalls(t, "Generate", 1)
}

func TestRun_CancelledBeforeFirstStep(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.build(t).Run(ctx, "anything")

	assert.Equal(t, StopAborted, res.StopReason)
	assert.True(t, hasError(res.Errors, context.Canceled))
	h.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Empty(t, h.exec.Dispatched())
}

func TestRun_TransportBudget(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	netErr := errors.New("connection reset")
	h.llm.On("Generate", mock.Anything, mock.Anything).Return(nil, netErr)

	a := h.build(t)
	res := a.Run(context.Background(), "open maps")

	assert.Equal(t, StopAborted, res.StopReason)
	assert.True(t, hasError(res.Errors, ErrTransportBudgetExhausted))
	assert.True(t, hasError(res.Errors, netErr))
	h.llm.AssertNumberOfCalls(t, "Generate", h.cfg.MaxModelFailures)
	assert.Equal(t, []actions.Kind{actions.KindAbort}, kinds(h.exec.Dispatched()))
	assert.Equal(t, 1, res.StepCount)

	steps := drain(a)
	require.Len(t, steps, 3)
	assert.Equal(t, 0, steps[0].Step, "a failed model call records nothing")
	assert.Equal(t, KindTransport, steps[0].Err.Kind)
}

func TestRun_CaptureBudget(t *testing.T) {
	h := newHarness(t)
	h.obs = new(MockObserver)
	h.obs.On("CaptureScreen", mock.Anything).Return(schemas.Screenshot{}, errors.New("device offline"))
	h.deps.Observer = h.obs

	res := h.build(t).Run(context.Background(), "open camera")

	assert.Equal(t, StopAborted, res.StopReason)
	assert.True(t, hasError(res.Errors, ErrCaptureBudgetExhausted))
	assert.Equal(t, 0, res.StepCount)
	h.obs.AssertNumberOfCalls(t, "CaptureScreen", h.cfg.MaxCaptureFailures)
	h.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRun_ExecutionErrorIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.exec.On("Execute", mock.Anything, kindIs(actions.KindClick)).
		Return(actions.Outcome{}, errors.New("adb: device not found")).Once()
	h.succeedAll()
	h.llm.respond(`do(action="Tap", element=[300, 300])`)
	h.llm.respond(`finish(message="recovered")`)

	a := h.build(t)
	res := a.Run(context.Background(), "tap something")

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.StepCount)
	first := res.History.Entries[0]
	assert.False(t, first.Outcome.Success)
	assert.Equal(t, actions.ErrCodeDeviceCommand, first.Outcome.ErrorCode)

	steps := drain(a)
	require.NotNil(t, steps[0].Err)
	assert.Equal(t, KindExecution, steps[0].Err.Kind)
	assert.Contains(t, lastText(requestAt(t, h.llm, 1)), "failed")
}

func TestRun_DeclinedSensitiveTapAborts(t *testing.T) {
	h := newHarness(t)
	h.exec.On("Execute", mock.Anything, kindIs(actions.KindClick)).Return(actions.Outcome{
		ShouldFinish: true,
		ErrorCode:    actions.ErrCodeUserAbort,
		Message:      "user declined sensitive operation: Confirm payment",
	}, nil)
	h.llm.respond(`do(action="Tap", element=[800, 900], message="Confirm payment")`)

	res := h.build(t).Run(context.Background(), "pay the bill")

	assert.False(t, res.Success)
	assert.Equal(t, StopAborted, res.StopReason)
	assert.Contains(t, res.Message, "declined")
}

func TestRun_ArchivesSession(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	h.llm.respond("action:HOME")
	h.llm.respond("action:COMPLETE\treturn:done")

	rec := new(MockRecorder)
	h.deps.Recorder = rec
	a := h.build(t)

	rec.On("CreateSession", mock.Anything, mock.MatchedBy(func(s store.Session) bool {
		return s.ID == a.RunID() && s.Task == "go home" && s.Device == "emulator-5554"
	})).Return(store.Session{ID: a.RunID()}, nil).Once()
	rec.On("RecordStep", mock.Anything, mock.MatchedBy(func(r store.StepRecord) bool {
		return r.SessionID == a.RunID()
	})).Return(nil).Twice()
	rec.On("UpdateStatus", mock.Anything, a.RunID(), store.StatusUpdate{
		Status: store.StatusCompleted, StepCount: 2, Message: "done",
	}).Return(nil).Once()

	res := a.Run(context.Background(), "go home")
	require.True(t, res.Success)
	rec.AssertExpectations(t)
}

func TestRun_ArchiveFailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	h.llm.respond("action:COMPLETE\treturn:done")

	rec := new(MockRecorder)
	rec.On("CreateSession", mock.Anything, mock.Anything).Return(store.Session{}, errors.New("disk full"))
	h.deps.Recorder = rec

	res := h.build(t).Run(context.Background(), "noop")
	assert.True(t, res.Success)
	rec.AssertNotCalled(t, "RecordStep", mock.Anything, mock.Anything)
	rec.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

// wakingObserver adds screen control to the observer mock.
type wakingObserver struct {
	*MockObserver
	off   bool
	wakes int
}

func (w *wakingObserver) EnsureAwake(ctx context.Context, wake bool) (bool, error) {
	w.wakes++
	return !w.off, nil
}

func TestRun_PreparesDevice(t *testing.T) {
	h := newHarness(t)
	h.cfg.ResetToHome = true
	h.cfg.AutoWakeScreen = true
	obs := &wakingObserver{MockObserver: h.obs}
	h.deps.Observer = obs
	h.succeedAll()
	h.llm.respond("action:COMPLETE\treturn:done")

	res := h.build(t).Run(context.Background(), "noop")

	assert.True(t, res.Success)
	assert.Equal(t, 1, obs.wakes)
	assert.Equal(t, []actions.Kind{actions.KindHome, actions.KindComplete}, kinds(h.exec.Dispatched()))
	assert.Len(t, res.History.Entries, 1, "the reset is not part of the history")
}

func TestRun_ScreenStaysOff(t *testing.T) {
	h := newHarness(t)
	h.cfg.AutoWakeScreen = true
	h.deps.Observer = &wakingObserver{MockObserver: h.obs, off: true}

	res := h.build(t).Run(context.Background(), "noop")

	assert.Equal(t, StopAborted, res.StopReason)
	assert.Equal(t, "screen off", res.Message)
	h.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Empty(t, h.exec.Dispatched())
}

func TestRun_IsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.succeedAll()
	h.llm.respond("action:COMPLETE\treturn:done")

	a := h.build(t)
	first := a.Run(context.Background(), "noop")
	require.True(t, first.Success)

	second := a.Run(context.Background(), "noop")
	assert.Equal(t, StopAborted, second.StopReason)
	assert.Equal(t, first.RunID, second.RunID)
	h.llm.AssertNumberOfCalls(t, "Generate", 1)
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t)
	logger := zaptest.NewLogger(t)

	_, err := New(Dependencies{Observer: h.obs, Executor: h.exec}, h.cfg, logger)
	assert.Error(t, err, "model client is required")

	bad := h.cfg
	bad.MaxSteps = 0
	_, err = New(h.deps, bad, logger)
	assert.ErrorContains(t, err, "max_steps")
}

func TestStepError(t *testing.T) {
	cause := errors.New("bad output")
	err := error(newStepError(KindParse, 4, errors.Join(ErrParseBudgetExhausted, cause)))

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, se.Step)
	assert.ErrorIs(t, err, cause)
	assert.True(t, se.Fatal())
	assert.Contains(t, err.Error(), "step 4: ParseError")

	assert.False(t, newStepError(KindExecution, 1, cause).Fatal())
}

func TestModelReplier(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
		return r.Tier == schemas.TierFast && strings.Contains(lastText(r), "Which size?")
	})).Return(&schemas.GenerationResponse{Text: "  Size 42.  "}, nil).Once()
	llm.On("Generate", mock.Anything, mock.Anything).Return(&schemas.GenerationResponse{Text: " "}, nil).Once()

	r := NewModelReplier(llm, "en", time.Second)
	answer, err := r.Reply(context.Background(), "buy shoes", "Which size?")
	require.NoError(t, err)
	assert.Equal(t, "Size 42.", answer)

	_, err = r.Reply(context.Background(), "buy shoes", "Color?")
	assert.Error(t, err)
	llm.AssertExpectations(t)
}
