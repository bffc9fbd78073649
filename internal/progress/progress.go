// Package progress prints a live status line while a load run is in
// progress.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"flowload/internal/collector"
	"flowload/internal/core"
)

// Source supplies the metrics shown on the status line.
type Source interface {
	Compute() *collector.Metrics
}

type Progress struct {
	source   Source
	actors   func() int
	clock    core.Clock
	interval time.Duration
	quiet    bool

	startTime time.Time
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	output    io.Writer
	mu        sync.Mutex
}

// Option configures a Progress.
type Option func(*Progress)

// WithActors shows the number of running actors.
func WithActors(fn func() int) Option {
	return func(p *Progress) { p.actors = fn }
}

func WithOutput(w io.Writer) Option {
	return func(p *Progress) { p.output = w }
}

func WithClock(c core.Clock) Option {
	return func(p *Progress) { p.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(p *Progress) {
		if d > 0 {
			p.interval = d
		}
	}
}

func New(source Source, quiet bool, opts ...Option) *Progress {
	p := &Progress{
		source:   source,
		quiet:    quiet,
		clock:    core.RealClock{},
		interval: time.Second,
		output:   os.Stderr,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = p.clock.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run(p.ticker, p.stopCh)
}

func (p *Progress) run(ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	m := p.source.Compute()
	elapsed := p.clock.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	errorRate := 0.0
	if m.TotalRequests > 0 {
		errorRate = float64(m.FailureCount) / float64(m.TotalRequests) * 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.output, "\033[K[%02d:%02d] ", mins, secs)
	if p.actors != nil {
		fmt.Fprintf(p.output, "Actors: %d | ", p.actors())
	}
	fmt.Fprintf(p.output, "Requests: %d | RPS: %.1f | Errors: %d (%.1f%%)\r",
		m.TotalRequests, m.RequestsPerSec, m.FailureCount, errorRate)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
