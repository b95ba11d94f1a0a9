package storeagent

import (
	"context"
	"reflect"
)

// Store is the key value contract shared by the agent and the stores it wraps.
//
// Get reports a missing key with ok set to false, this is not an error.
type Store[K any, V any] interface {
	Get(ctx context.Context, key K) (value V, ok bool, err error)
	Put(ctx context.Context, key K, value V) (bool, error)
	Delete(ctx context.Context, key K) (bool, error)
	// Persist flushes any buffered state in the store to durable storage
	Persist(ctx context.Context) error
	// Clear removes all the persisted data in the store permanently
	Clear(ctx context.Context) error
}

// Handler processes values flowing into or out of a store, mutating them in place.
//
// A handler which isn't enabled is skipped entirely, Process is never called.
type Handler[V any] interface {
	Enabled() bool
	Process(ctx context.Context, value V) error
}

// isAbsent reports whether v holds nothing a handler could process
func isAbsent[V any](v V) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}

	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	}

	return false
}
