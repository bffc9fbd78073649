package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"flowload/internal/config"
	"flowload/internal/core"
	"flowload/internal/log"
	"flowload/internal/pacing"
	"flowload/internal/store"
	"flowload/internal/template"
	"flowload/internal/transform"
)

// InitIDKey holds the identifier being initialized during shared init.
const InitIDKey = "_init_id"

// ErrNoInitList is returned when run_init_once names a list that is missing
// or empty.
var ErrNoInitList = errors.New("no init list")

// Workflow creates actors for a flow document. All actors share one HTTP
// client, one transform registry and one data store.
type Workflow struct {
	Config  *config.Config
	Client  *http.Client
	Debug   *DebugLogger
	Limiter *pacing.Limiter
	Store   core.DataStore
	Clock   core.Clock
	// NoWait disables the locust wait time between iterations.
	NoWait bool

	setupOnce sync.Once
	registry  *transform.Registry
	barrier   InitBarrier
}

func (w *Workflow) setup() {
	w.setupOnce.Do(func() {
		if w.Store == nil {
			w.Store = store.New()
		}
		if w.Client == nil {
			w.Client = NewClient(w.Config)
		}
		if w.Clock == nil {
			w.Clock = core.RealClock{}
		}
		w.registry = transform.NewRegistry(transform.WithClock(w.Clock))
	})
}

func (w *Workflow) executor(actorID int, rep core.Reporter) *Executor {
	return NewExecutor(w.Config,
		WithClient(w.Client),
		WithRegistry(w.registry),
		WithDataStore(w.Store),
		WithClock(w.Clock),
		WithDebug(w.Debug),
		WithReporter(rep),
		WithActorID(actorID),
	)
}

// NewActor builds an actor and runs its initialization. With run_init_once
// the init steps run once for all actors and each actor starts from a copy
// of the resulting context.
func (w *Workflow) NewActor(ctx context.Context, actorID int, rep core.Reporter) (core.Actor, error) {
	w.setup()

	wait := pacing.None()
	if !w.NoWait {
		var err error
		if wait, err = pacing.New(w.Config.Locust); err != nil {
			return nil, err
		}
	}

	exec := w.executor(actorID, rep)
	if w.Config.RunInitOnce {
		snap, err := w.barrier.Do(func() (core.Context, error) {
			return w.sharedInit(ctx, rep)
		})
		if err != nil {
			return nil, fmt.Errorf("shared init: %w", err)
		}
		for k, v := range snap {
			exec.SetVariable(k, clone(v))
		}
	} else if _, err := exec.RunInit(ctx); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	return &actor{exec: exec, limiter: w.Limiter, wait: wait, clock: w.Clock}, nil
}

// sharedInit runs the init steps once per identifier of init_list_var, in
// list order, each in a fresh executor. Without a list it runs them once.
// The context of the last executor becomes the shared snapshot.
func (w *Workflow) sharedInit(ctx context.Context, rep core.Reporter) (core.Context, error) {
	logger := log.L()
	if w.Config.InitListVar == "" {
		logger.Info("running shared init with default context")
		exec := w.executor(0, rep)
		if _, err := exec.RunInit(ctx); err != nil {
			return nil, err
		}
		return exec.Snapshot(), nil
	}

	ids := listOf(w.Config.Variables[w.Config.InitListVar])
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: variables[%q]", ErrNoInitList, w.Config.InitListVar)
	}
	logger.Info("running shared init", zap.String("list", w.Config.InitListVar), zap.Int("count", len(ids)))

	var last *Executor
	for i, id := range ids {
		logger.Info("initializing identifier",
			zap.Int("index", i+1),
			zap.Int("total", len(ids)),
			zap.String("id", template.Stringify(id)))
		exec := w.executor(0, rep)
		exec.SetVariable(InitIDKey, id)
		if _, err := exec.RunInit(ctx); err != nil {
			return nil, err
		}
		last = exec
	}
	logger.Info("shared init completed",
		zap.Int("stored", w.Store.Count()),
		zap.Strings("identifiers", w.Store.Identifiers()))
	return last.Snapshot(), nil
}

func listOf(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

type actor struct {
	exec    *Executor
	limiter *pacing.Limiter
	wait    pacing.WaitTime
	clock   core.Clock
}

func (a *actor) RunIteration(ctx context.Context, rep core.Reporter) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	a.exec.SetReporter(rep)
	start := a.clock.Now()
	if err := a.exec.RunIteration(ctx); err != nil {
		return err
	}
	return a.wait.Wait(ctx, a.clock.Since(start))
}

// Close runs the cleanup steps.
func (a *actor) Close(ctx context.Context) error {
	_, err := a.exec.RunCleanup(ctx)
	return err
}
