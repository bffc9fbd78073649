package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"

	"go.uber.org/zap"

	"flowload/internal/config"
	"flowload/internal/core"
	"flowload/internal/log"
	"flowload/internal/template"
	"flowload/internal/transform"
)

// Executor runs a flow for one actor. It owns the actor's variable context
// and is not safe for concurrent use.
type Executor struct {
	cfg        *config.Config
	client     *http.Client
	noRedirect *http.Client
	registry   *transform.Registry
	store      core.DataStore
	clock      core.Clock
	debug      *DebugLogger
	reporter   core.Reporter
	actorID    int
	random     func() float64
	logger     *zap.Logger

	vars core.Context
}

type Option func(*Executor)

// WithClient sets the HTTP client. Steps with allow_redirects: false use a
// copy of it that does not follow redirects.
func WithClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithRegistry shares a transform registry, and with it the round-robin and
// increment counters, between executors.
func WithRegistry(r *transform.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

func WithDataStore(s core.DataStore) Option {
	return func(e *Executor) { e.store = s }
}

func WithClock(c core.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

func WithDebug(d *DebugLogger) Option {
	return func(e *Executor) { e.debug = d }
}

func WithReporter(r core.Reporter) Option {
	return func(e *Executor) { e.SetReporter(r) }
}

func WithActorID(id int) Option {
	return func(e *Executor) { e.actorID = id }
}

// WithRandom sets the source used for step weights. It must return values
// in [0, 1).
func WithRandom(f func() float64) Option {
	return func(e *Executor) { e.random = f }
}

// NewExecutor returns an executor whose context holds a copy of the
// document's variables and, when one is set, the shared data store.
func NewExecutor(cfg *config.Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:      cfg,
		clock:    core.RealClock{},
		reporter: core.NullReporter,
		random:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = NewClient(cfg)
	}
	if e.registry == nil {
		e.registry = transform.NewRegistry(transform.WithClock(e.clock))
	}
	nr := *e.client
	nr.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	e.noRedirect = &nr
	e.logger = log.L().With(log.Actor(e.actorID))

	e.vars = make(core.Context, len(cfg.Variables)+1)
	for k, v := range cfg.Variables {
		e.vars[k] = clone(v)
	}
	if e.store != nil {
		e.vars[core.DataStoreKey] = e.store
	}
	return e
}

// NewClient builds the HTTP client for cfg, skipping TLS verification when
// verify is false.
func NewClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 100
	if !cfg.VerifyTLS() {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport}
}

// SetReporter replaces the event sink. A nil reporter discards events.
func (e *Executor) SetReporter(r core.Reporter) {
	if r == nil {
		r = core.NullReporter
	}
	e.reporter = r
}

// Context returns the live variable context.
func (e *Executor) Context() core.Context {
	return e.vars
}

// Snapshot copies the context without reserved entries.
func (e *Executor) Snapshot() core.Context {
	return e.vars.Snapshot()
}

func (e *Executor) SetVariable(name string, value any) {
	e.vars[name] = value
}

func (e *Executor) FindStep(name string) (*config.Step, bool) {
	return e.cfg.FindStep(name)
}

// RunInit executes the init steps in order. Step failures are logged and do
// not stop initialization; only a cancelled ctx returns an error.
func (e *Executor) RunInit(ctx context.Context) ([]StepResult, error) {
	return e.runList(ctx, e.cfg.Init, "init")
}

// RunCleanup executes the cleanup steps in order, logging failures.
func (e *Executor) RunCleanup(ctx context.Context) ([]StepResult, error) {
	return e.runList(ctx, e.cfg.Cleanup, "cleanup")
}

func (e *Executor) runList(ctx context.Context, steps []config.Step, phase string) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := e.ExecuteStep(ctx, &steps[i])
		results = append(results, res)
		if !res.Success {
			e.logger.Error(phase+" step failed", log.Step(res.Name), zap.String("error", res.Error))
		}
	}
	return results, nil
}

// RunIteration runs flow_init and then the main steps once. Each step runs
// with the probability given by its weight. A failed step with fail_fast
// set ends the iteration early; that is not an error.
func (e *Executor) RunIteration(ctx context.Context) error {
	if err := e.applyTransforms(e.cfg.FlowInit, e.logger); err != nil {
		return fmt.Errorf("flow_init: %w", err)
	}
	for i := range e.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := &e.cfg.Steps[i]
		if !e.selected(step) {
			continue
		}
		res := e.ExecuteStep(ctx, step)
		if !res.Success && step.IsFailFast(false) {
			e.logger.Info("iteration stopped by fail_fast", log.Step(step.Name))
			return nil
		}
	}
	return nil
}

// FlowResult is the outcome of ExecuteFlow.
type FlowResult struct {
	ServiceName string
	Steps       []StepResult
	Success     bool
	Error       string
}

// ExecuteFlow runs flow_init and every main step once, ignoring weights.
// Unlike RunIteration, fail_fast defaults to true.
func (e *Executor) ExecuteFlow(ctx context.Context) FlowResult {
	result := FlowResult{ServiceName: e.cfg.ServiceName, Success: true}
	if err := e.applyTransforms(e.cfg.FlowInit, e.logger); err != nil {
		result.Success = false
		result.Error = fmt.Sprintf("flow_init: %v", err)
		return result
	}
	for i := range e.cfg.Steps {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Error = err.Error()
			return result
		}
		step := &e.cfg.Steps[i]
		res := e.ExecuteStep(ctx, step)
		result.Steps = append(result.Steps, res)
		if !res.Success {
			result.Success = false
			if step.IsFailFast(true) {
				break
			}
		}
	}
	return result
}

// selected draws against the step's weight. Weights outside [0, 1] are
// clamped and an unreadable weight counts as 1, both with a warning.
func (e *Executor) selected(step *config.Step) bool {
	w, err := config.ParseWeight(template.Resolve(step.Weight, e.vars))
	if err != nil {
		e.logger.Warn("invalid weight, using 1", log.Step(step.Name), zap.Error(err))
		return true
	}
	if w < 0 || w > 1 {
		e.logger.Warn("weight out of range, clamping", log.Step(step.Name), zap.Float64("weight", w))
		w = min(max(w, 0), 1)
	}
	if w >= 1 {
		return true
	}
	return e.random() < w
}

// clone deep-copies the maps and slices of a configured variable so actors
// never share mutable state through the document.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}
