package storeagent

import (
	"context"
	"sync/atomic"
)

// HandlerFunc wraps a function and implements the Handler interface, it is always enabled
type HandlerFunc[V any] func(ctx context.Context, value V) error

// Enabled always returns true.
func (fn HandlerFunc[V]) Enabled() bool {
	return true
}

// Process calls the wrapped function.
func (fn HandlerFunc[V]) Process(ctx context.Context, value V) error {
	return fn(ctx, value)
}

// Toggle is a handler which can be switched on and off while the agent is in use.
type Toggle[V any] struct {
	fn      HandlerFunc[V]
	enabled atomic.Bool
}

// NewToggle creates a Toggle wrapping fn in the given state, a nil fn processes nothing
func NewToggle[V any](fn HandlerFunc[V], enabled bool) *Toggle[V] {
	if fn == nil {
		fn = func(ctx context.Context, value V) error { return nil }
	}

	t := &Toggle[V]{fn: fn}
	t.enabled.Store(enabled)

	return t
}

// Enabled returns the current state of the toggle.
func (t *Toggle[V]) Enabled() bool {
	return t.enabled.Load()
}

// SetEnabled switches the toggle on or off.
func (t *Toggle[V]) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Process calls the wrapped function.
func (t *Toggle[V]) Process(ctx context.Context, value V) error {
	return t.fn(ctx, value)
}

type chain[V any] []Handler[V]

// Chain combines handlers into one which runs each enabled member in order, stopping at the first error.
//
// The chain is enabled while any of its members are.
func Chain[V any](handlers ...Handler[V]) Handler[V] {
	c := make(chain[V], 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			c = append(c, h)
		}
	}

	return c
}

func (c chain[V]) Enabled() bool {
	for _, h := range c {
		if h.Enabled() {
			return true
		}
	}

	return false
}

func (c chain[V]) Process(ctx context.Context, value V) error {
	for _, h := range c {
		if !h.Enabled() {
			continue
		}

		if err := h.Process(ctx, value); err != nil {
			return err
		}
	}

	return nil
}

// noHandler stands in for a handler which wasn't configured
type noHandler[V any] struct{}

func (noHandler[V]) Enabled() bool {
	return false
}

func (noHandler[V]) Process(ctx context.Context, value V) error {
	return nil
}
