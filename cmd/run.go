package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/agent"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/device"
	"github.com/xkilldash9x/droidpilot/internal/llmclient"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/planner"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runEnv holds the factories the run command builds its collaborators from.
type runEnv struct {
	newModel  func(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error)
	newRunner func(cfg config.DeviceConfig) device.Runner
	stores    storeProvider
}

func newDefaultRunEnv() runEnv {
	return runEnv{
		newModel: llmclient.NewClient,
		newRunner: func(cfg config.DeviceConfig) device.Runner {
			return device.ExecRunner{Path: cfg.ADBPath}
		},
		stores: NewStoreProvider(),
	}
}

type runOptions struct {
	devices []string
	yes     bool
	jsonOut bool
}

// runSummary is the printable form of a RunResult.
type runSummary struct {
	RunID      string   `json:"run_id"`
	Device     string   `json:"device"`
	Task       string   `json:"task"`
	Success    bool     `json:"success"`
	StopReason string   `json:"stop_reason"`
	Message    string   `json:"message"`
	StepCount  int      `json:"step_count"`
	Duration   string   `json:"duration"`
	Errors     []string `json:"errors,omitempty"`
}

func summarize(serial string, res agent.RunResult) runSummary {
	s := runSummary{
		RunID:      res.RunID,
		Device:     serial,
		Task:       res.Task,
		Success:    res.Success,
		StopReason: string(res.StopReason),
		Message:    res.Message,
		StepCount:  res.StepCount,
		Duration:   res.Duration.Round(time.Millisecond).String(),
	}
	for _, err := range res.Errors {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}

func newRunCmd(env runEnv) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a natural language task on one or more devices",
		Long: `Runs the observe, decide and act loop until the task completes, aborts or
exhausts its step budget. With several --device flags the task runs on every
device concurrently. Questions from the agent are answered on stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			task := strings.TrimSpace(strings.Join(args, " "))
			if task == "" {
				return errors.New("task must not be empty")
			}
			con := newConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			return runTask(ctx, observability.GetLogger(), cfg, env, task, opts, con)
		},
	}

	runCmd.Flags().StringSliceVarP(&opts.devices, "device", "d", nil, "device serial to run on; repeat for several devices (default: device.serials, then the only attached device)")
	runCmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "approve sensitive actions without asking")
	runCmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the run results as JSON")
	runCmd.Flags().Int("max-steps", 0, "maximum steps per run (overrides config/env)")
	runCmd.Flags().String("lang", "", "prompt language, en or zh (overrides config/env)")
	runCmd.Flags().String("reply-mode", "", "how questions are answered: channel, auto or abort (overrides config/env)")
	runCmd.Flags().Duration("step-delay", 0, "pause between steps (overrides config/env)")
	runCmd.Flags().String("store", "", "session archive: none, sqlite or postgres (overrides config/env)")
	runCmd.Flags().String("adb", "", "path to the adb binary (overrides config/env)")
	runCmd.Flags().Bool("no-home", false, "do not return to the home screen before the task")
	runCmd.Flags().Bool("no-planning", false, "run without a task plan")

	return runCmd
}

// runTask runs task on every selected device and prints the results. It
// fails when setup fails or any run does not complete.
func runTask(ctx context.Context, logger *zap.Logger, cfg *config.Config, env runEnv, task string, opts runOptions, con *console) error {
	runner := env.newRunner(cfg.Device)
	serials, err := resolveDevices(ctx, runner, cfg.Device, opts.devices)
	if err != nil {
		return err
	}

	model, err := env.newModel(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model client: %w", err)
	}
	defer func() {
		if err := model.Close(); err != nil {
			logger.Warn("Failed to close model client", zap.Error(err))
		}
	}()

	var recorder store.Recorder
	if env.stores != nil {
		recorder, err = env.stores.Open(ctx, cfg.Store, logger)
		if err != nil {
			logger.Warn("Session archive unavailable, continuing without it", zap.Error(err))
			recorder = nil
		}
	}
	if recorder != nil {
		defer recorder.Close()
	}

	metrics := observability.NewInstruments()
	results := make([]runSummary, len(serials))

	g, gctx := errgroup.WithContext(ctx)
	for i, serial := range serials {
		g.Go(func() error {
			res, err := runOnDevice(gctx, logger, cfg, runner, serial, task, opts, model, recorder, metrics, con)
			if err != nil {
				return fmt.Errorf("device %s: %w", serial, err)
			}
			results[i] = summarize(serial, res)
			if !opts.jsonOut {
				con.Result(serial, res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if opts.jsonOut {
		payload, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		con.printf("%s\n", payload)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not complete", failed, len(results))
	}
	return nil
}

// resolveDevices picks the target serials: the flag, then the config, then
// the only attached device.
func resolveDevices(ctx context.Context, runner device.Runner, cfg config.DeviceConfig, flagSerials []string) ([]string, error) {
	serials := dedupe(flagSerials)
	if len(serials) == 0 {
		serials = dedupe(cfg.Serials)
	}
	if len(serials) > 0 {
		return serials, nil
	}

	attached, err := device.ListDevices(ctx, runner)
	if err != nil {
		return nil, err
	}
	switch len(attached) {
	case 0:
		return nil, errors.New("no device attached (check adb devices)")
	case 1:
		return attached, nil
	default:
		return nil, fmt.Errorf("%d devices attached, choose with --device: %s", len(attached), strings.Join(attached, ", "))
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// runOnDevice wires one agent to one device and runs it to completion.
func runOnDevice(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	runner device.Runner,
	serial, task string,
	opts runOptions,
	model schemas.LLMClient,
	recorder store.Recorder,
	metrics *observability.Instruments,
	con *console,
) (agent.RunResult, error) {
	adb := device.NewADB(runner, serial, cfg.Device.CommandTimeout, logger)

	confirm := func(ctx context.Context, message string) bool {
		if opts.yes {
			return true
		}
		return con.Confirm(ctx, serial, message)
	}
	executor, err := device.NewExecutor(adb, cfg.Device, logger, device.WithConfirm(confirm))
	if err != nil {
		return agent.RunResult{}, err
	}

	pl := planner.NewPlanner(logger, model, nil, planner.HeuristicAdvancer{
		AutoAdvanceAfter: cfg.Agent.AutoAdvanceAfter,
		Resolve:          device.FindPackage,
	}, cfg.Agent.Lang)

	deps := agent.Dependencies{
		Observer: device.NewObserver(adb, logger),
		Executor: executor,
		Model:    model,
		Planner:  pl,
		Metrics:  metrics,
		Device:   serial,
	}
	if recorder != nil {
		deps.Recorder = recorder
	}

	a, err := agent.New(deps, cfg.Agent, logger)
	if err != nil {
		return agent.RunResult{}, err
	}

	// Questions read stdin under runCtx so a reader still waiting when Run
	// returns does not hold up wg.Wait.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Drain both channels until Run closes them.
	var wg errgroup.Group
	wg.Go(func() error {
		for r := range a.Steps() {
			con.Step(serial, r)
		}
		return nil
	})
	wg.Go(func() error {
		for q := range a.Queries() {
			answer, err := con.Ask(runCtx, serial, q.Question)
			if err != nil {
				logger.Warn("No answer read for question", zap.String("question", q.Question), zap.Error(err))
				continue
			}
			if err := a.Reply(answer); err != nil {
				logger.Warn("Reply rejected", zap.Error(err))
			}
		}
		return nil
	})

	res := a.Run(ctx, task)
	cancel()
	_ = wg.Wait()
	return res, nil
}
