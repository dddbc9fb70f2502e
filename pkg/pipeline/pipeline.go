// Package pipeline composes a terminal request handler ("endpoint") with an
// ordered sequence of intermediate handlers ("middleware") into a single
// callable that routes a request environment through the chain.
//
// Middleware wraps the endpoint in onion order: the first-appended
// middleware is outermost, and a Prepend inserts a new outermost layer.
// For middleware A then B then endpoint E, the call order is A -> B -> E
// and responses unwind B -> A.
package pipeline

import (
	"github.com/cockroachdb/errors"

	"corehttpd/pkg/env"
)

// Handler is a callable that takes a request environment and returns a
// response triple.
type Handler func(e env.Env) env.Response

// Middleware receives its successor handler and returns a handler that may
// inspect/modify the environment, invoke the successor, and inspect/modify
// the resulting response. The successor is bound exactly once, before the
// pipeline is first built.
type Middleware func(next Handler) Handler

// Sentinel errors for the two synchronous, fatal-to-the-caller failure
// modes spec.md §7 calls "Configuration" errors.
var (
	ErrNoEndpoint      = errors.New("pipeline: no endpoint set")
	ErrInvalidArgument = errors.New("pipeline: invalid argument")
)

// Builder orders middleware around a terminal endpoint and exposes a single
// callable handler via Build.
type Builder struct {
	middleware []Middleware
	endpoint   Handler

	built   Handler
	dirty   bool
}

// New returns an empty builder. Use Append/Prepend/SetEndpoint to configure
// it, or NewFromList to build one in a single step.
func New() *Builder {
	return &Builder{dirty: true}
}

// NewFromList is equivalent to constructing an empty builder, appending each
// middleware in list order, then setting the endpoint.
func NewFromList(mws []Middleware, endpoint Handler) *Builder {
	b := New()
	for _, mw := range mws {
		b.Append(mw)
	}
	b.SetEndpoint(endpoint)
	return b
}

// Append adds mw as the new innermost middleware layer (closest to the
// endpoint).
func (b *Builder) Append(mw Middleware) *Builder {
	if mw == nil {
		panic(errors.Wrap(ErrInvalidArgument, "append: nil middleware"))
	}
	b.middleware = append(b.middleware, mw)
	b.dirty = true
	return b
}

// Prepend adds mw as the new outermost middleware layer.
func (b *Builder) Prepend(mw Middleware) *Builder {
	if mw == nil {
		panic(errors.Wrap(ErrInvalidArgument, "prepend: nil middleware"))
	}
	b.middleware = append([]Middleware{mw}, b.middleware...)
	b.dirty = true
	return b
}

// SetEndpoint sets the terminal handler.
func (b *Builder) SetEndpoint(h Handler) *Builder {
	if h == nil {
		panic(errors.Wrap(ErrInvalidArgument, "setEndpoint: nil endpoint"))
	}
	b.endpoint = h
	b.dirty = true
	return b
}

// Build walks the middleware list from last to first, binding each
// middleware's successor to the middleware that immediately follows it (or
// to the endpoint, for the last one), and returns the resulting callable.
// If no middleware was ever added, Build returns the endpoint directly.
// The build result is cached; Build only re-walks the chain if the
// middleware list or endpoint changed since the last call.
func (b *Builder) Build() (Handler, error) {
	if b.endpoint == nil {
		return nil, errors.Wrap(ErrNoEndpoint, "build")
	}
	if !b.dirty && b.built != nil {
		return b.built, nil
	}
	h := b.endpoint
	for i := len(b.middleware) - 1; i >= 0; i-- {
		h = b.middleware[i](h)
	}
	b.built = h
	b.dirty = false
	return h, nil
}

// Handler adapts the builder itself into a Handler: calling it is
// equivalent to Build followed by one invocation. Panics with ErrNoEndpoint
// wrapped if no endpoint has been set, matching spec.md §4.1's synchronous
// failure semantics for configuration errors.
func (b *Builder) Handler() Handler {
	return func(e env.Env) env.Response {
		h, err := b.Build()
		if err != nil {
			panic(err)
		}
		return h(e)
	}
}
