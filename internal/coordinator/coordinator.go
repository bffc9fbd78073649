// Package coordinator hosts actors: it creates them from a workflow, drives
// their iterations and closes them when the run ends.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flowload/internal/core"
	"flowload/internal/log"
	"flowload/internal/pacing"
)

// cleanupTimeout bounds how long an actor's cleanup may run after the
// run context is cancelled.
const cleanupTimeout = 30 * time.Second

type Coordinator struct {
	nextID      atomic.Int64
	wg          sync.WaitGroup
	reporter    core.Reporter
	activeCount atomic.Int32
	spawn       *pacing.Limiter

	mu   sync.Mutex
	errs []error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSpawnRate limits how many actors start per second. Zero starts them
// all at once.
func WithSpawnRate(perSecond int) Option {
	return func(c *Coordinator) {
		if perSecond > 0 {
			c.spawn = pacing.NewLimiter(perSecond)
		}
	}
}

func New(reporter core.Reporter, opts ...Option) *Coordinator {
	if reporter == nil {
		reporter = core.NullReporter
	}
	c := &Coordinator{reporter: reporter}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Spawn starts count actors. Each actor is initialized by the workflow,
// iterates until ctx is done, its iteration limit is reached or an
// iteration fails, and is then closed. Spawn returns once every actor has
// been started; use Wait to block until they finish.
func (c *Coordinator) Spawn(ctx context.Context, count int, workflow core.Workflow, config core.RunnerConfig) {
	for i := 0; i < count; i++ {
		if err := c.spawn.Wait(ctx); err != nil {
			return
		}
		actorID := int(c.nextID.Add(1))
		c.activeCount.Add(1)
		c.wg.Add(1)
		go func(id int) {
			defer func() {
				c.wg.Done()
				c.activeCount.Add(-1)
			}()
			defer c.recoverPanic(id)
			c.run(ctx, id, workflow, config)
		}(actorID)
	}
}

func (c *Coordinator) run(ctx context.Context, id int, workflow core.Workflow, config core.RunnerConfig) {
	logger := log.L().With(log.Actor(id))

	actor, err := workflow.NewActor(ctx, id, c.reporter)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("actor initialization failed", zap.Error(err))
			c.fail(fmt.Errorf("actor %d: init: %w", id, err))
		}
		return
	}
	defer c.close(ctx, id, actor)

	runner := core.NewRunner(actor, c.reporter, config)
	for ctx.Err() == nil {
		err := runner.RunIteration(ctx)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrMaxIterationsReached):
			logger.Debug("iteration limit reached", zap.Int("iterations", runner.Iteration()))
			return
		case ctx.Err() != nil:
			return
		default:
			logger.Error("iteration failed, stopping actor", zap.Int("iteration", runner.Iteration()), zap.Error(err))
			c.fail(fmt.Errorf("actor %d: %w", id, err))
			return
		}
	}
}

// close runs the actor's cleanup even when the run context has been
// cancelled.
func (c *Coordinator) close(ctx context.Context, id int, actor core.Actor) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := actor.Close(cctx); err != nil {
		log.L().Warn("actor cleanup failed", log.Actor(id), zap.Error(err))
	}
}

func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) ActiveActors() int {
	return int(c.activeCount.Load())
}

// Err returns the joined errors of actors that stopped abnormally.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}

// recoverPanic recovers from panics in actor goroutines and reports them as failed events.
func (c *Coordinator) recoverPanic(actorID int) {
	if r := recover(); r != nil {
		log.L().Error("actor panicked", log.Actor(actorID), zap.Any("panic", r))
		c.fail(fmt.Errorf("actor %d: panic: %v", actorID, r))
		c.reporter.Report(core.Event{
			ActorID:   actorID,
			Timestamp: time.Now(),
			Step:      "panic",
			Success:   false,
			Error:     fmt.Sprintf("panic: %v", r),
		})
	}
}
