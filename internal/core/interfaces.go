// Package core defines the vocabulary shared by the flow engine and the
// load-generation runtime that hosts it.
package core

import (
	"context"
	"time"
)

// Event is a single measurement reported for one HTTP call made by an actor.
type Event struct {
	ActorID    int
	Timestamp  time.Time
	Step       string
	Method     string
	Duration   time.Duration
	Success    bool
	Error      string
	StatusCode int
	BytesSent  int64
	BytesRecv  int64
}

// Reporter receives events from actors. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(Event)
}

// Workflow creates actors. NewActor runs the actor's initialization phase and
// returns once the actor is ready to iterate.
type Workflow interface {
	NewActor(ctx context.Context, actorID int, rep Reporter) (Actor, error)
}

// Actor is one virtual user. An Actor is not safe for concurrent use; the
// runtime drives each actor from a single goroutine.
type Actor interface {
	RunIteration(ctx context.Context, rep Reporter) error
	Close(ctx context.Context) error
}

// Reporters fans an event out to several reporters.
type Reporters []Reporter

func (rs Reporters) Report(e Event) {
	for _, r := range rs {
		if r != nil {
			r.Report(e)
		}
	}
}
