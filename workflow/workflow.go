// Package workflow materializes stored step sequences and drives the
// action executor. It is a pure ordering adapter: every failure
// semantic (fail-fast, normalization, resource release) lives in the
// executor, not here.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/drover/action"
)

// Step is one stored workflow instruction plus its explicit position.
type Step struct {
	ID     int64
	Order  int
	Action action.Descriptor
}

// Store loads the step sequence of one workflow. The returned slice
// order is the load order; the engine sorts by Step.Order itself.
type Store interface {
	LoadSteps(ctx context.Context, workflowID int64) ([]Step, error)
}

// Runner executes an ordered descriptor sequence. Satisfied by
// *action.Executor.
type Runner interface {
	ExecuteWorkflow(ctx context.Context, descs []action.Descriptor) []action.Result
}

// Engine loads, orders and runs workflows.
type Engine struct {
	store  Store
	runner Runner
	logger *slog.Logger
}

// New creates an Engine.
func New(store Store, runner Runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, runner: runner, logger: logger}
}

// Run loads the workflow's steps, sorts them by their explicit order
// field (stable: ties keep load order), and hands them to the runner
// unmodified. The returned ledger is the runner's, verbatim; Run itself
// only fails when the steps cannot be loaded.
func (e *Engine) Run(ctx context.Context, workflowID int64) ([]action.Result, error) {
	steps, err := e.store.LoadSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: load steps for %d: %w", workflowID, err)
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	descs := make([]action.Descriptor, len(steps))
	for i, s := range steps {
		descs[i] = s.Action
	}

	e.logger.Info("workflow: run", "workflow_id", workflowID, "steps", len(descs))
	results := e.runner.ExecuteWorkflow(ctx, descs)
	e.logger.Info("workflow: done", "workflow_id", workflowID, "results", len(results))
	return results, nil
}
