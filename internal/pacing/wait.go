package pacing

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"flowload/internal/config"
)

// Defaults applied when a locust field is missing.
const (
	DefaultThroughput = 1.0
	DefaultMinWait    = 1.0
	DefaultMaxWait    = 3.0
	DefaultPacing     = 1.0
)

// WaitTime is called by an actor after every iteration with the time the
// iteration took. Implementations are owned by one actor.
type WaitTime interface {
	Wait(ctx context.Context, elapsed time.Duration) error
}

// New builds the wait time described by cfg. A nil cfg, or an empty
// wait_time, means constant throughput of one iteration per second.
func New(cfg *config.Locust) (WaitTime, error) {
	if cfg == nil {
		return ConstantThroughput(DefaultThroughput), nil
	}
	switch cfg.WaitTime {
	case "", config.WaitConstantThroughput:
		return ConstantThroughput(orDefault(cfg.Throughput, DefaultThroughput)), nil
	case config.WaitConstant:
		return Constant(seconds(orDefault(cfg.MinWait, DefaultMinWait))), nil
	case config.WaitBetween:
		return Between(seconds(orDefault(cfg.MinWait, DefaultMinWait)), seconds(orDefault(cfg.MaxWait, DefaultMaxWait))), nil
	case config.WaitConstantPacing:
		return ConstantPacing(seconds(orDefault(cfg.Pacing, DefaultPacing))), nil
	default:
		return nil, fmt.Errorf("unknown wait_time %q", cfg.WaitTime)
	}
}

// None never waits.
func None() WaitTime { return none{} }

type none struct{}

func (none) Wait(context.Context, time.Duration) error { return nil }

// Constant waits the same amount after every iteration.
func Constant(d time.Duration) WaitTime { return sleeper(func(time.Duration) time.Duration { return d }) }

// Between waits a uniformly random duration in [min, max].
func Between(min, max time.Duration) WaitTime {
	return sleeper(func(time.Duration) time.Duration { return between(min, max, rand.Float64) })
}

// ConstantPacing starts iterations every interval. An iteration that
// overruns the interval is followed immediately by the next one.
func ConstantPacing(interval time.Duration) WaitTime {
	return sleeper(func(elapsed time.Duration) time.Duration { return pace(interval, elapsed) })
}

// ConstantThroughput allows at most perSecond iterations per second for the
// actor. A non-positive rate never waits.
func ConstantThroughput(perSecond float64) WaitTime {
	if perSecond <= 0 {
		return none{}
	}
	return &throughput{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

type throughput struct {
	limiter *rate.Limiter
}

func (t *throughput) Wait(ctx context.Context, _ time.Duration) error {
	return t.limiter.Wait(ctx)
}

type sleeper func(elapsed time.Duration) time.Duration

func (s sleeper) Wait(ctx context.Context, elapsed time.Duration) error {
	return Sleep(ctx, s(elapsed))
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func between(min, max time.Duration, random func() float64) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(random()*float64(max-min))
}

func pace(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
