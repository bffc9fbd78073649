package core

import (
	"context"
	"errors"
)

// ErrMaxIterationsReached indicates the runner hit its iteration limit.
var ErrMaxIterationsReached = errors.New("max iterations reached")

// NullReporter discards all events (used during warmup).
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}

// RunnerConfig controls iteration-level execution.
type RunnerConfig struct {
	MaxIterations int // 0 = unlimited
	WarmupIters   int // per-actor iterations whose events are discarded
}

// Runner drives one actor's iterations. It is NOT safe for concurrent use;
// each actor goroutine owns its Runner.
type Runner struct {
	actor     Actor
	reporter  Reporter
	config    RunnerConfig
	iteration int
}

func NewRunner(actor Actor, reporter Reporter, config RunnerConfig) *Runner {
	return &Runner{
		actor:    actor,
		reporter: reporter,
		config:   config,
	}
}

// RunIteration executes one pass of the actor's main flow.
// Returns ErrMaxIterationsReached once the limit is hit.
func (r *Runner) RunIteration(ctx context.Context) error {
	if r.config.MaxIterations > 0 && r.iteration >= r.config.MaxIterations {
		return ErrMaxIterationsReached
	}

	rep := r.reporter
	if r.iteration < r.config.WarmupIters {
		rep = NullReporter
	}

	err := r.actor.RunIteration(ctx, rep)
	r.iteration++
	return err
}

// Iteration returns the number of completed iterations.
func (r *Runner) Iteration() int {
	return r.iteration
}

// IsWarmup reports whether the next iteration is still a warmup iteration.
func (r *Runner) IsWarmup() bool {
	return r.iteration < r.config.WarmupIters
}
