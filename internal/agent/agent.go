package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/history"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/planner"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// subGoalWindow is how many recent entries count toward auto-advance.
const subGoalWindow = 5

// stepBuffer sizes the StepResult channel. Results are dropped, not
// blocked on, when the host falls behind.
const stepBuffer = 64

// Dependencies are the collaborators of a run. Observer, Executor and Model
// are required.
type Dependencies struct {
	Observer Observer
	Executor Executor
	Model    schemas.LLMClient
	Planner  Planner     // Optional. Without it the run has no plan.
	Loop     LoopChecker // Defaults to a history.LoopDetector built from the config.
	Recorder Recorder    // Optional session archive.
	Replier  Replier     // Auto reply mode only. Defaults to a ModelReplier.
	Tracer   trace.Tracer
	Metrics  *observability.Instruments
	// Device labels the archived session.
	Device string
}

// Agent runs one task on one device. It is single use: build a new Agent
// for every task.
type Agent struct {
	deps    Dependencies
	cfg     config.AgentConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *observability.Instruments
	replier Replier

	runID   string
	task    string
	history *history.Store
	plan    *planner.TaskPlan

	steps   chan StepResult
	queries chan UserQuery
	replies chan string

	mu      sync.Mutex
	state   State
	started bool

	stepCount       int
	parseFailures   int
	modelFailures   int
	captureFailures int
	interactions    int
	errs            []error

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the configuration and wires the run's collaborators.
func New(deps Dependencies, cfg config.AgentConfig, logger *zap.Logger) (*Agent, error) {
	if deps.Observer == nil || deps.Executor == nil || deps.Model == nil {
		return nil, errors.New("agent requires an observer, an executor and a model client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}
	if deps.Loop == nil {
		deps.Loop = history.NewLoopDetector(cfg.Loop)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}
	replier := deps.Replier
	if replier == nil && cfg.ReplyMode == config.ReplyModeAuto {
		replier = NewModelReplier(deps.Model, cfg.Lang, cfg.ModelTimeout)
	}

	runID := uuid.NewString()
	logger = logger.Named("agent").With(zap.String("run_id", runID))
	if deps.Device != "" {
		logger = logger.With(zap.String("device", deps.Device))
	}

	return &Agent{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		tracer:  tracer,
		metrics: deps.Metrics,
		replier: replier,
		runID:   runID,
		history: history.NewStore(logger),
		steps:   make(chan StepResult, stepBuffer),
		queries: make(chan UserQuery, 1),
		replies: make(chan string, 1),
		state:   StateIdle,
		sleep:   sleepContext,
	}, nil
}

// RunID identifies the run in logs, queries and the session archive.
func (a *Agent) RunID() string { return a.runID }

// Steps delivers a StepResult per step attempt. It is closed when Run returns.
func (a *Agent) Steps() <-chan StepResult { return a.steps }

// Queries delivers a UserQuery whenever the run waits for the user in
// channel reply mode. It is closed when Run returns.
func (a *Agent) Queries() <-chan UserQuery { return a.queries }

// State returns the current phase of the run.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Reply answers the pending question. It fails with ErrNotAwaiting unless
// the run is in StateAwaitingUser.
func (a *Agent) Reply(answer string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateAwaitingUser {
		return ErrNotAwaiting
	}
	select {
	case a.replies <- answer:
		return nil
	default:
		return errors.New("a reply is already pending")
	}
}

// History returns a copy of the run's recorded state.
func (a *Agent) History() history.ConversationHistory {
	return a.history.Snapshot()
}

// Run executes task until it completes, aborts, exhausts its step budget or
// ctx is cancelled. It never panics and always returns a RunResult.
func (a *Agent) Run(ctx context.Context, task string) (result RunResult) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return RunResult{RunID: a.runID, Task: task, StopReason: StopAborted,
			Message: "agent has already run", Errors: []error{errors.New("agent is single use")}}
	}
	a.started = true
	a.mu.Unlock()

	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "agent.Run", trace.WithAttributes(
		attribute.String("run.id", a.runID),
		attribute.String("run.device", a.deps.Device),
	))

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Run panicked", zap.Any("panic", r), zap.Stack("stack"))
			a.errs = append(a.errs, fmt.Errorf("run panicked: %v", r))
			result = a.finish(StopAborted, fmt.Sprintf("internal error: %v", r), nil)
		}
		result.Duration = time.Since(start)
		a.setState(StateTerminated)
		a.closeSession(ctx, result)

		span.SetAttributes(
			attribute.String("run.stop_reason", string(result.StopReason)),
			attribute.Int("run.step_count", result.StepCount),
		)
		if !result.Success {
			span.SetStatus(codes.Error, result.Message)
		}
		span.End()
		close(a.steps)
		close(a.queries)

		a.logger.Info("Run finished",
			zap.String("stop_reason", string(result.StopReason)),
			zap.Bool("success", result.Success),
			zap.Int("steps", result.StepCount),
			zap.String("message", result.Message),
			zap.Duration("duration", result.Duration),
		)
	}()

	return a.run(ctx, task)
}

func (a *Agent) run(ctx context.Context, task string) RunResult {
	a.task = task
	a.setState(StateRunning)
	a.logger.Info("Run started", zap.String("task", task), zap.Int("max_steps", a.cfg.MaxSteps))
	a.openSession(ctx, task)

	plan, err := a.createPlan(ctx, task)
	if err != nil {
		return a.cancelled(err)
	}
	a.plan = plan
	a.history.StartTask(task, plan)

	if res, done := a.prepareDevice(ctx); done {
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return a.cancelled(err)
		}
		if res, done := a.step(ctx); done {
			return res
		}
	}
}

func (a *Agent) createPlan(ctx context.Context, task string) (*planner.TaskPlan, error) {
	if a.deps.Planner == nil || !a.cfg.UsePlanning {
		return nil, nil
	}
	plan, err := a.deps.Planner.CreatePlan(ctx, task)
	if err == nil {
		return plan, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Planning is never fatal; run unplanned.
	a.errs = append(a.errs, newStepError(KindDecomposition, 0, err))
	a.logger.Warn("Planning failed, running without a plan", zap.Error(err))
	return nil, nil
}

// prepareDevice wakes the screen and returns to the launcher before the
// first step. Neither is recorded in the history. A screen that stays off
// ends the run.
func (a *Agent) prepareDevice(ctx context.Context) (RunResult, bool) {
	if a.cfg.AutoWakeScreen {
		if w, ok := a.deps.Observer.(Waker); ok {
			on, err := w.EnsureAwake(ctx, true)
			switch {
			case ctx.Err() != nil:
				return a.cancelled(ctx.Err()), true
			case err != nil:
				a.logger.Warn("Could not read the screen state", zap.Error(err))
			case !on:
				return a.finish(StopAborted, "screen off", nil), true
			}
		}
	}
	if a.cfg.ResetToHome {
		if _, err := a.dispatch(ctx, actions.Action{Kind: actions.KindHome}); err != nil {
			a.logger.Warn("Failed to return to the home screen", zap.Error(err))
		}
	}
	return RunResult{}, false
}

// step runs one observe, decide, act iteration. It reports true with the
// final result when the run is over.
func (a *Agent) step(ctx context.Context) (RunResult, bool) {
	n := a.history.Len() + 1
	ctx, span := a.tracer.Start(ctx, "agent.Step", trace.WithAttributes(attribute.Int("step.number", n)))
	defer span.End()

	// 1. Observe.
	obs, app, err := a.observe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return a.cancelled(ctx.Err()), true
		}
		return a.captureFailed(ctx, n, err)
	}
	a.captureFailures = 0

	// 2. Build context, 3. ask the model.
	msgs := a.history.BuildContext(obs, a.contextOptions())
	if err := ctx.Err(); err != nil {
		return a.cancelled(err), true
	}

	var (
		action      actions.Action
		then        *actions.Action
		stepErr     *StepError
		substituted bool
	)
	resp, err := a.generate(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return a.cancelled(ctx.Err()), true
		}
		a.modelFailures++
		if a.modelFailures < a.cfg.MaxModelFailures {
			stepErr = newStepError(KindTransport, n, err)
			a.errs = append(a.errs, stepErr)
			a.logger.Warn("Model call failed", zap.Int("step", n), zap.Int("consecutive", a.modelFailures), zap.Error(err))
			a.publish(StepResult{StepCount: a.stepCount, Err: stepErr, State: StateRunning, SubGoalID: a.plan.CurrentID()})
			return a.pause(ctx)
		}
		stepErr = newStepError(KindTransport, n, fmt.Errorf("%w: %w", ErrTransportBudgetExhausted, err))
		action = abortAction(fmt.Sprintf("model unavailable after %d consecutive failures", a.modelFailures))
		substituted = true
	} else {
		a.modelFailures = 0

		// 4. Parse.
		parsed, perr := actions.Parse(resp.Text)
		switch {
		case perr == nil:
			a.parseFailures = 0
			action, then = parsed.Action, parsed.Then
		default:
			a.parseFailures++
			substituted = true
			a.logger.Warn("Model response could not be parsed",
				zap.Int("step", n), zap.Int("consecutive", a.parseFailures), zap.Error(perr))
			if a.parseFailures >= a.cfg.MaxParseFailures {
				stepErr = newStepError(KindParse, n, fmt.Errorf("%w: %w", ErrParseBudgetExhausted, perr))
				action = abortAction(fmt.Sprintf("model output could not be parsed %d times in a row", a.parseFailures))
			} else {
				stepErr = newStepError(KindParse, n, perr)
				action = waitAction()
			}
		}
	}

	// Interactive kinds skip the step budget, so they carry their own.
	if !substituted && action.Kind.Interactive() {
		a.interactions++
		if a.interactions > a.cfg.MaxInteractions {
			a.logger.Error("Interaction budget exhausted, aborting", zap.Int("interactions", a.interactions))
			stepErr = newStepError(KindLoopDetected, n, fmt.Errorf("%w: %d requests", ErrInteractionBudgetExhausted, a.interactions))
			action = abortAction(fmt.Sprintf("asked for user input more than %d times", a.cfg.MaxInteractions))
			then = nil
			substituted = true
		}
	}

	// 5. Loop check on the candidate.
	var warning string
	if !substituted && !action.Kind.Terminal() && !action.Kind.Interactive() {
		det := a.deps.Loop.Check(a.history.Entries(), &action)
		if det.Detected() {
			a.metrics.RecordLoop(ctx, string(det.Pattern), det.Severity.String())
			if det.Severity == history.SeveritySevere {
				a.logger.Error("Severe loop detected, aborting", zap.String("pattern", string(det.Pattern)), zap.Int("count", det.Count))
				stepErr = newStepError(KindLoopDetected, n, fmt.Errorf("%w: %s", ErrLoopDetected, det.Message))
				action = abortAction("stuck in a loop: " + det.Message)
				then = nil
				substituted = true
			} else {
				warning = det.Message
				if hint := a.recoveryHint(det.Count, screenText(obs, action)); hint != "" {
					warning += ". " + hint
				}
				a.logger.Warn("Possible loop", zap.String("pattern", string(det.Pattern)), zap.String("warning", warning))
			}
		}
	}
	if stepErr != nil {
		a.errs = append(a.errs, stepErr)
	}
	span.SetAttributes(attribute.String("action.kind", string(action.Kind)), attribute.Bool("action.substituted", substituted))

	// 6. Dispatch.
	if err := ctx.Err(); err != nil {
		return a.cancelled(err), true
	}
	outcome, execErr := a.dispatch(ctx, action)
	if execErr != nil {
		execStepErr := newStepError(KindExecution, n, execErr)
		a.errs = append(a.errs, execStepErr)
		if stepErr == nil {
			stepErr = execStepErr
		}
		a.logger.Warn("Action failed", zap.Int("step", n), zap.String("action", action.Describe()), zap.Error(execErr))
	}

	// 7. Record.
	entry := a.history.AppendStep(action, obs, outcome)
	if warning != "" {
		a.history.SetLoopWarning(warning)
		if a.plan != nil {
			a.plan.AddNote(warning)
		}
	}
	if !action.Kind.Interactive() {
		a.stepCount++
	}
	a.metrics.RecordStep(ctx, string(action.Kind), outcome.Success)
	a.archiveStep(ctx, entry, warning, stepErr)

	// 8. Advance the plan.
	if outcome.Success && a.plan != nil && a.deps.Planner != nil {
		onGoal := a.history.ActionsOnSubGoal(entry.SubGoalID, subGoalWindow)
		a.deps.Planner.Advance(a.plan, action, app.Package, onGoal)
	}

	a.publish(StepResult{
		Step:        entry.Step,
		StepCount:   a.stepCount,
		Action:      entry.Action,
		Outcome:     outcome,
		Err:         stepErr,
		LoopWarning: warning,
		State:       StateRunning,
		SubGoalID:   entry.SubGoalID,
		Substituted: substituted,
	})
	a.logger.Debug("Step done",
		zap.Int("step", entry.Step),
		zap.Int("step_count", a.stepCount),
		zap.String("action", action.Describe()),
		zap.Bool("success", outcome.Success),
	)

	// 9. Terminal check.
	if action.Kind.Interactive() {
		return a.awaitUser(ctx, action)
	}
	if res, done := a.terminal(action, then, outcome); done {
		return res, true
	}
	if err := ctx.Err(); err != nil {
		return a.cancelled(err), true
	}
	if a.stepCount >= a.cfg.MaxSteps {
		return a.finish(StopExhausted, fmt.Sprintf("reached the maximum of %d steps", a.cfg.MaxSteps), &action), true
	}
	return a.pause(ctx)
}

// captureFailed records a failed observation. The step counter does not move.
func (a *Agent) captureFailed(ctx context.Context, n int, err error) (RunResult, bool) {
	a.captureFailures++
	a.logger.Warn("Screen capture failed", zap.Int("consecutive", a.captureFailures), zap.Error(err))
	if a.captureFailures >= a.cfg.MaxCaptureFailures {
		stepErr := newStepError(KindCapture, n, fmt.Errorf("%w: %w", ErrCaptureBudgetExhausted, err))
		a.errs = append(a.errs, stepErr)
		a.publish(StepResult{StepCount: a.stepCount, Err: stepErr, State: StateRunning, SubGoalID: a.plan.CurrentID()})
		return a.finish(StopAborted, fmt.Sprintf("screen capture failed %d times in a row", a.captureFailures), nil), true
	}
	stepErr := newStepError(KindCapture, n, err)
	a.errs = append(a.errs, stepErr)
	a.publish(StepResult{StepCount: a.stepCount, Err: stepErr, State: StateRunning, SubGoalID: a.plan.CurrentID()})
	return a.pause(ctx)
}

// terminal decides whether the recorded step ended the run.
func (a *Agent) terminal(action actions.Action, then *actions.Action, outcome actions.Outcome) (RunResult, bool) {
	switch {
	case action.Kind == actions.KindAbort:
		return a.finish(StopAborted, firstNonEmpty(action.Params.Reason, outcome.Message, "task aborted"), &action), true
	case action.Kind == actions.KindComplete:
		return a.finish(StopCompleted, firstNonEmpty(action.Params.Return, outcome.Message, "task completed"), &action), true
	case outcome.ShouldFinish && !outcome.Success:
		// A finishing failure, such as a declined sensitive tap.
		return a.finish(StopAborted, firstNonEmpty(outcome.Message, "task aborted"), &action), true
	case outcome.ShouldFinish:
		return a.finish(StopCompleted, firstNonEmpty(outcome.Message, "task completed"), &action), true
	case then != nil && then.Kind == actions.KindComplete && outcome.Success:
		final := then.Clone()
		return a.finish(StopCompleted, firstNonEmpty(then.Params.Return, then.Params.Message, "task completed"), &final), true
	}
	return RunResult{}, false
}

// awaitUser suspends the run until the question is answered.
func (a *Agent) awaitUser(ctx context.Context, action actions.Action) (RunResult, bool) {
	question := questionOf(action)

	var answer string
	switch a.cfg.ReplyMode {
	case config.ReplyModeAbort:
		return a.finish(StopAborted, "user input required: "+question, &action), true

	case config.ReplyModeAuto:
		reply, err := a.replier.Reply(ctx, a.task, question)
		if err != nil {
			if ctx.Err() != nil {
				return a.cancelled(ctx.Err()), true
			}
			a.logger.Warn("Auto reply failed, using fallback", zap.Error(err))
			reply = fallbackReply
		}
		answer = reply

	default:
		reply, err := a.waitForReply(ctx, UserQuery{RunID: a.runID, Kind: action.Kind, Question: question})
		if err != nil {
			if ctx.Err() != nil {
				return a.cancelled(ctx.Err()), true
			}
			a.errs = append(a.errs, newStepError(KindUserUnanswered, a.history.Len(), err))
			return a.finish(StopAborted, "no reply to: "+question, &action), true
		}
		answer = reply
	}

	a.history.RecordReply(question, answer)
	a.setState(StateRunning)
	a.updateSession(ctx, store.StatusRunning, "")
	a.logger.Info("User replied", zap.String("question", question), zap.String("answer", answer))
	return RunResult{}, false
}

func (a *Agent) waitForReply(ctx context.Context, q UserQuery) (string, error) {
	a.setState(StateAwaitingUser)
	a.updateSession(ctx, store.StatusPaused, q.Question)
	a.logger.Info("Waiting for user", zap.String("kind", string(q.Kind)), zap.String("question", q.Question))

	var timeout <-chan time.Time
	if a.cfg.ReplyTimeout > 0 {
		t := time.NewTimer(a.cfg.ReplyTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case a.queries <- q:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timeout:
		return "", ErrReplyTimeout
	}

	select {
	case answer := <-a.replies:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timeout:
		return "", ErrReplyTimeout
	}
}

// -- Collaborator calls --

func (a *Agent) observe(ctx context.Context) (history.Observation, schemas.AppInfo, error) {
	shot, err := a.deps.Observer.CaptureScreen(ctx)
	if err != nil {
		return history.Observation{}, schemas.AppInfo{}, err
	}
	app, err := a.deps.Observer.CurrentApp(ctx)
	if err != nil {
		a.logger.Debug("Foreground app unavailable", zap.Error(err))
		app = schemas.AppInfo{Package: schemas.UnknownApp}
	}
	img := shot.Image()
	return history.Observation{
		ScreenInfo: "Current app: " + app.String(),
		Screenshot: &img,
	}, app, nil
}

func (a *Agent) generate(ctx context.Context, msgs []schemas.Message) (*schemas.GenerationResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.deps.Model.Generate(callCtx, schemas.GenerationRequest{
		Messages: msgs,
		Tier:     schemas.TierPowerful,
	})
	if err == nil && resp == nil {
		err = errors.New("model returned no response")
	}
	model := ""
	if resp != nil {
		model = resp.Model
	}
	a.metrics.RecordModelLatency(ctx, model, time.Since(start), err != nil)

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("model call timed out after %s: %w", a.cfg.ModelTimeout, err)
	}
	return resp, err
}

func (a *Agent) dispatch(ctx context.Context, action actions.Action) (actions.Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ActionTimeout)
	defer cancel()

	outcome, err := a.deps.Executor.Execute(callCtx, action)
	if err != nil {
		outcome.Success = false
		if outcome.Message == "" {
			outcome.Message = err.Error()
		}
		if outcome.ErrorCode == "" {
			outcome.ErrorCode = actions.ErrCodeDeviceCommand
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				outcome.ErrorCode = actions.ErrCodeTimeout
			}
		}
	}
	return outcome, err
}

func (a *Agent) recoveryHint(count int, screenInfo string) string {
	if a.deps.Planner == nil || a.plan == nil {
		return ""
	}
	return a.deps.Planner.RecoveryHint(a.plan, count, screenInfo)
}

// screenText joins the foreground app line with what the model said it saw.
// Observations are screenshots, so the model's rationale is the only source
// of on-screen wording.
func screenText(obs history.Observation, action actions.Action) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{obs.ScreenInfo, action.Thinking, action.Explanation} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (a *Agent) contextOptions() history.ContextOptions {
	return history.ContextOptions{
		MaxHistorySteps: a.cfg.MaxHistorySteps,
		ImageWindow:     a.cfg.ImageWindow,
		Lang:            a.cfg.Lang,
		SystemPrompt:    a.cfg.SystemPrompt,
	}
}

// -- Results --

func (a *Agent) publish(r StepResult) {
	r.RunID = a.runID
	select {
	case a.steps <- r:
	default:
		a.logger.Debug("Step result dropped, host is not draining Steps()", zap.Int("step", r.Step))
	}
}

// pause waits step_delay before the next step.
func (a *Agent) pause(ctx context.Context) (RunResult, bool) {
	if err := a.sleep(ctx, a.cfg.StepDelay); err != nil {
		return a.cancelled(err), true
	}
	return RunResult{}, false
}

func (a *Agent) cancelled(err error) RunResult {
	a.errs = append(a.errs, newStepError(KindCancelled, a.history.Len(), err))
	return a.finish(StopAborted, "cancelled: "+err.Error(), nil)
}

func (a *Agent) finish(reason StopReason, msg string, final *actions.Action) RunResult {
	res := RunResult{
		RunID:      a.runID,
		Task:       a.task,
		Success:    reason == StopCompleted,
		StopReason: reason,
		Message:    msg,
		StepCount:  a.stepCount,
		Plan:       a.history.Plan(),
		History:    a.history.Snapshot(),
		Errors:     append([]error(nil), a.errs...),
	}
	if final != nil {
		c := final.Clone()
		res.FinalAction = &c
	}
	return res
}

func abortAction(reason string) actions.Action {
	return actions.Action{Kind: actions.KindAbort, Params: actions.Params{Reason: reason}}
}

// waitAction stands in for an unparseable response. It is never COMPLETE.
func waitAction() actions.Action {
	return actions.Action{Kind: actions.KindWait, Params: actions.Params{Value: "1"}}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
