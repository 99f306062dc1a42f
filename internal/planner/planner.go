// internal/planner/planner.go
package planner

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
)

// Planner builds task plans and moves them forward as actions execute.
type Planner struct {
	logger   *zap.Logger
	llm      schemas.LLMClient
	library  Library
	advancer Advancer
	lang     string
}

// NewPlanner creates a planner. client may be nil, in which case tasks that
// match no template get the default plan.
func NewPlanner(logger *zap.Logger, client schemas.LLMClient, library Library, advancer Advancer, lang string) *Planner {
	if library == nil {
		library = DefaultLibrary()
	}
	if advancer == nil {
		advancer = HeuristicAdvancer{}
	}
	p := &Planner{
		logger:   logger.Named("planner"),
		llm:      client,
		library:  library,
		advancer: advancer,
		lang:     lang,
	}
	p.logger.Debug("Planner initialized", zap.Int("templates", len(library)), zap.Bool("model_decomposition", client != nil))
	return p
}

// CreatePlan decomposes task. Templates are tried first, then the fast
// model, then the default two-step plan. It only fails when ctx is done.
func (p *Planner) CreatePlan(ctx context.Context, task string) (*TaskPlan, error) {
	if name, steps, ok := p.library.Match(task); ok {
		plan := newPlan(task, SourceTemplate, steps)
		plan.TemplateName = name
		plan.Start()
		p.logger.Info("Plan created from template", zap.String("template", name), zap.Int("sub_goals", len(steps)))
		return plan, nil
	}

	steps, err := p.decompose(ctx, task)
	if err == nil {
		plan := newPlan(task, SourceModel, steps)
		plan.Start()
		p.logger.Info("Plan created by model", zap.Int("sub_goals", len(steps)))
		return plan, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var decompErr *DecompositionError
	if errors.As(err, &decompErr) {
		p.logger.Warn("Task decomposition failed, using default plan", zap.Error(err))
	}
	plan := newPlan(task, SourceDefault, defaultSteps(p.lang))
	plan.Start()
	return plan, nil
}

// Advance completes the current sub-goal when the advancer judges the
// action satisfied it. actionsOnGoal counts actions recorded against the
// current sub-goal, including this one.
func (p *Planner) Advance(plan *TaskPlan, action actions.Action, currentApp string, actionsOnGoal int) bool {
	goal := plan.Current()
	if goal == nil || !action.Kind.TouchesDevice() {
		return false
	}
	ok, reason := p.advancer.Satisfied(*goal, action, currentApp, actionsOnGoal)
	if !ok {
		return false
	}
	id := goal.ID
	plan.CompleteCurrent()
	p.logger.Debug("Sub-goal completed",
		zap.Int("sub_goal", id),
		zap.String("reason", reason),
		zap.Int("remaining", plan.Remaining()),
	)
	return true
}

// RecoveryHint combines the stuck-count suggestion with whatever the screen
// text reveals.
func (p *Planner) RecoveryHint(plan *TaskPlan, stuckCount int, screenInfo string) string {
	hint := plan.SuggestRecovery(stuckCount, p.lang)
	if obs := InspectObservation(screenInfo, p.lang); obs != "" {
		if hint != "" {
			hint += "; "
		}
		hint += obs
	}
	return hint
}
