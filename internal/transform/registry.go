// Package transform implements the named data operations a flow can run
// before and after a request: value generators, list selection, hashing and
// encryption, and reads and writes against the shared data store.
package transform

import (
	"errors"
	"fmt"
	"sort"

	"flowload/internal/core"
)

var (
	ErrUnknownTransform = errors.New("unknown transform")
	ErrStoreUnavailable = errors.New("shared data store not found in context")
	ErrMissingConfig    = errors.New("missing required config")
)

// Error reports a failed transform.
type Error struct {
	Transform string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Transform, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Handler executes one transform. input and cfg have already been resolved
// against ctx. Handlers may read and write ctx.
type Handler interface {
	Execute(input any, cfg Config, ctx core.Context) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(input any, cfg Config, ctx core.Context) (any, error)

func (f HandlerFunc) Execute(input any, cfg Config, ctx core.Context) (any, error) {
	return f(input, cfg, ctx)
}

// Registry maps transform names to handlers. The built-in set is installed
// by NewRegistry; Register must not be called once the registry is in use by
// more than one goroutine. Stateful handlers (increment, round-robin
// selection) keep their counters for the lifetime of the Registry.
type Registry struct {
	handlers map[string]Handler
	clock    core.Clock
}

type Option func(*Registry)

// WithClock sets the clock used by the timestamp transform.
func WithClock(c core.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		clock:    core.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}

	selector := newSelector()

	r.Register("uuid", HandlerFunc(uuidTransform))
	r.Register("timestamp", timestampTransform{clock: r.clock})
	r.Register("random_number", HandlerFunc(randomNumber))
	r.Register("random_string", HandlerFunc(randomString))
	r.Register("random_choice", HandlerFunc(randomChoice))
	r.Register("increment", newIncrement())
	r.Register("select_from_list", HandlerFunc(selector.selectFromList))
	r.Register("select_msisdn", HandlerFunc(selector.selectMSISDN))
	r.Register("append_to_list", HandlerFunc(appendToList))
	r.Register("store_data", HandlerFunc(storeData))
	r.Register("lookup", HandlerFunc(lookup))
	r.Register("lookup_all", HandlerFunc(lookupAll))
	r.Register("get_store_keys", HandlerFunc(getStoreKeys))
	r.Register("sha256", HandlerFunc(sha256Transform))
	r.Register("hmac", HandlerFunc(hmacTransform))
	r.Register("base64_encode", HandlerFunc(base64Encode))
	r.Register("base64_decode", HandlerFunc(base64Decode))
	r.Register("rsa_encrypt", HandlerFunc(rsaEncrypt))
	return r
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered transform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named transform. Failures are returned as *Error.
func (r *Registry) Execute(name string, input any, cfg map[string]any, ctx core.Context) (any, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, &Error{Transform: name, Err: ErrUnknownTransform}
	}
	if ctx == nil {
		ctx = core.Context{}
	}
	out, err := h.Execute(input, Config(cfg), ctx)
	if err != nil {
		return nil, &Error{Transform: name, Err: err}
	}
	return out, nil
}
