package storeagent

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrStoreRequired the agent was constructed without a store to wrap
var ErrStoreRequired = errors.New("storeagent: store is required")

const (
	stageInbound  = "inbound"
	stageOutbound = "outbound"
	stageStore    = "store"
)

// Agent wraps a store with optional inbound and outbound handlers.
//
// The inbound handler is called on values passed to Put before they are handed to the store, the outbound
// handler is called on values returned by the store from Get before they are returned to the caller. Delete,
// Persist and Clear are never affected by either handler.
//
// Put, Delete, Persist and Clear are serialized through the exclusion domain of the wrapped store, which is
// shared by every agent wrapping the same store. Get is not, ordering reads against writes is left to the store.
type Agent[K any, V any] struct {
	store    Store[K, V]
	inbound  Handler[V]
	outbound Handler[V]
	domain   sync.Locker
	logger   zerolog.Logger
	hooks    *AgentHooks[K, V]
}

// New creates and configures a new agent wrapping the store
//
// A store implementing sync.Locker provides its own exclusion domain. Any other store is keyed by identity in a
// package level registry which keeps it reachable, call Forget once the store is retired so it can be collected.
func New[K any, V any](store Store[K, V], options ...AgentOption[K, V]) (*Agent[K, V], error) {
	if store == nil || isAbsent(store) {
		return nil, ErrStoreRequired
	}

	opts := &AgentOptions[K, V]{
		inbound:    noHandler[V]{},
		outbound:   noHandler[V]{},
		logger:     zerolog.Nop(),
		agentHooks: defaultAgentHooks[K, V](),
	}

	ApplyAgentOptions(opts, options...)

	domain, ok := domainFor(store)
	if !ok {
		// without an identity the domain can't be shared, so it is scoped to this agent
		domain = &sync.Mutex{}
	}

	return &Agent[K, V]{
		store:    store,
		inbound:  opts.inbound,
		outbound: opts.outbound,
		domain:   domain,
		logger:   opts.logger,
		hooks:    opts.agentHooks,
	}, nil
}

// Store returns the wrapped store
func (a *Agent[K, V]) Store() Store[K, V] {
	return a.store
}

// InboundHandler returns the inbound handler, ok is false when none was configured
func (a *Agent[K, V]) InboundHandler() (Handler[V], bool) {
	return configured(a.inbound)
}

// OutboundHandler returns the outbound handler, ok is false when none was configured
func (a *Agent[K, V]) OutboundHandler() (Handler[V], bool) {
	return configured(a.outbound)
}

// Get a value from the store, a present value is passed through the outbound handler before being returned.
func (a *Agent[K, V]) Get(ctx context.Context, key K) (value V, ok bool, err error) {
	ctx = setOperationDetails(ctx, OperationGet, key)
	ctx = a.hooks.OperationStarted(ctx, OperationGet, key)
	defer func() { a.hooks.OperationCompleted(ctx, OperationGet, key, err) }()

	value, ok, err = a.store.Get(ctx, key)
	if err != nil {
		a.logFailure(ctx, stageStore, err)
		return value, false, err
	}

	if !ok || isAbsent(value) || !a.outbound.Enabled() {
		return value, ok, nil
	}

	if err = a.outbound.Process(ctx, value); err != nil {
		a.logFailure(ctx, stageOutbound, err)

		var zero V
		return zero, false, err
	}

	return value, true, nil
}

// Put a value into the store, a present value is passed through the inbound handler first. If the handler
// fails the store is not written.
func (a *Agent[K, V]) Put(ctx context.Context, key K, value V) (ok bool, err error) {
	ctx = setOperationDetails(ctx, OperationPut, key)
	ctx = a.hooks.OperationStarted(ctx, OperationPut, key)
	defer func() { a.hooks.OperationCompleted(ctx, OperationPut, key, err) }()

	if !isAbsent(value) && a.inbound.Enabled() {
		if err = a.inbound.Process(ctx, value); err != nil {
			a.logFailure(ctx, stageInbound, err)
			return false, err
		}
	}

	a.exclusive(func() {
		ok, err = a.store.Put(ctx, key, value)
	})
	if err != nil {
		a.logFailure(ctx, stageStore, err)
	}

	return ok, err
}

// Delete a key from the store, neither handler is called.
func (a *Agent[K, V]) Delete(ctx context.Context, key K) (ok bool, err error) {
	ctx = setOperationDetails(ctx, OperationDelete, key)
	ctx = a.hooks.OperationStarted(ctx, OperationDelete, key)
	defer func() { a.hooks.OperationCompleted(ctx, OperationDelete, key, err) }()

	a.exclusive(func() {
		ok, err = a.store.Delete(ctx, key)
	})
	if err != nil {
		a.logFailure(ctx, stageStore, err)
	}

	return ok, err
}

// Persist the store.
func (a *Agent[K, V]) Persist(ctx context.Context) (err error) {
	return a.maintain(ctx, OperationPersist, a.store.Persist)
}

// Clear the store by removing all the persisted data permanently.
func (a *Agent[K, V]) Clear(ctx context.Context) (err error) {
	return a.maintain(ctx, OperationClear, a.store.Clear)
}

func (a *Agent[K, V]) maintain(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	var key K

	ctx = setMaintenanceDetails(ctx, op)
	ctx = a.hooks.OperationStarted(ctx, op, key)
	defer func() { a.hooks.OperationCompleted(ctx, op, key, err) }()

	a.exclusive(func() {
		err = fn(ctx)
	})
	if err != nil {
		a.logFailure(ctx, stageStore, err)
	}

	return err
}

// exclusive runs fn holding the store's exclusion domain, it is released even if fn panics
func (a *Agent[K, V]) exclusive(fn func()) {
	a.domain.Lock()
	defer a.domain.Unlock()

	fn()
}

func (a *Agent[K, V]) logFailure(ctx context.Context, stage string, err error) {
	evt := a.logger.Debug().Err(err).Str("stage", stage)
	if details := OperationDetailsFromContext(ctx); details != nil {
		evt = evt.Str("op", details.Name).Str("key", details.Key)
	}

	evt.Msg("storeagent: operation failed")
}

func configured[V any](h Handler[V]) (Handler[V], bool) {
	if _, ok := h.(noHandler[V]); ok {
		return nil, false
	}

	return h, true
}
