package core

import (
	"context"
	"strings"
)

// DataStoreKey is the reserved context entry holding the shared DataStore.
const DataStoreKey = "_data_store"

// Context is an actor's variable context. It is owned by exactly one actor
// and is mutated in place by transforms, extraction and response recording.
type Context map[string]any

// NewContext returns a context seeded with a shallow copy of vars.
func NewContext(vars map[string]any) Context {
	c := make(Context, len(vars))
	for k, v := range vars {
		c[k] = v
	}
	return c
}

func (c Context) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

func (c Context) Set(key string, value any) {
	c[key] = value
}

// Snapshot copies every entry whose key does not start with an underscore.
// Reserved entries such as the data store handle are left out.
func (c Context) Snapshot() Context {
	out := make(Context, len(c))
	for k, v := range c {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// DataStore returns the shared store attached to the context, if any.
func (c Context) DataStore() (DataStore, bool) {
	ds, ok := c[DataStoreKey].(DataStore)
	return ds, ok && ds != nil
}

// DataStore is the cross-actor attribute store. See package store.
type DataStore interface {
	Store(id string, attrs map[string]any)
	Get(id string) (map[string]any, bool)
	GetField(id, key string) (any, bool)
	Identifiers() []string
	Count() int
}

type contextKey string

const actorIDContextKey contextKey = "actorID"

func ContextWithActorID(ctx context.Context, actorID int) context.Context {
	return context.WithValue(ctx, actorIDContextKey, actorID)
}

func ActorIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(actorIDContextKey).(int); ok {
		return id
	}
	return 0
}
