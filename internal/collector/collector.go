// Package collector aggregates the events reported by actors into a run
// summary and exports them to Prometheus.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"flowload/internal/core"
)

const bufferSize = 10000

// Collector aggregates events from actors and produces a summary.
type Collector struct {
	events    []core.Event
	ch        chan core.Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	dropped   atomic.Int64
	clock     core.Clock
	startTime time.Time
	endTime   time.Time
}

// New creates a Collector and starts its collection goroutine.
func New() *Collector {
	return NewWithClock(core.RealClock{})
}

// NewWithClock creates a Collector that measures the run with clock.
func NewWithClock(clock core.Clock) *Collector {
	c := &Collector{
		ch:        make(chan core.Event, bufferSize),
		done:      make(chan struct{}),
		clock:     clock,
		startTime: clock.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for event := range c.ch {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report queues an event. It never blocks; events that do not fit in the
// buffer are counted as dropped.
func (c *Collector) Report(event core.Event) {
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting events and waits until every queued event has been
// recorded. Report must not be called after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.endTime = c.clock.Now()
		c.mu.Unlock()
		close(c.ch)
		<-c.done
	})
}

// Events returns a copy of collected events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// DroppedEvents returns how many events were lost to a full buffer.
func (c *Collector) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Duration returns the run time so far, or the total once closed.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	end := c.endTime
	c.mu.Unlock()
	if !end.IsZero() {
		return end.Sub(c.startTime)
	}
	return c.clock.Since(c.startTime)
}

// Compute summarizes the events collected so far.
func (c *Collector) Compute() *Metrics {
	m := ComputeMetrics(c.Events(), c.Duration())
	m.Dropped = c.DroppedEvents()
	return m
}
