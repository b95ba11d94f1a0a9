// Package memstore provides an in-memory store, values are held as-is so handlers mutating a value after
// it is stored are visible to later reads.
package memstore

import (
	"context"
	"sync"
)

// Store in-memory store keyed by any comparable type
//
// Store implements sync.Locker, the lock is the exclusion domain agents wrapping it serialize writes through
// and is separate from the lock guarding the map, so holding it doesn't block the store's own methods.
type Store[K comparable, V any] struct {
	domain sync.Mutex
	mu     sync.RWMutex
	items  map[K]V
}

// New creates an empty in-memory store
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		items: make(map[K]V),
	}
}

// Lock acquires the store's exclusion domain.
func (s *Store[K, V]) Lock() {
	s.domain.Lock()
}

// Unlock releases the store's exclusion domain.
func (s *Store[K, V]) Unlock() {
	s.domain.Unlock()
}

// Get a value, ok is false if the key doesn't exist.
func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var val V

	if err := ctx.Err(); err != nil {
		return val, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.items[key]

	return val, ok, nil
}

// Put a value, this always succeeds unless the context is done.
func (s *Store[K, V]) Put(ctx context.Context, key K, value V) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value

	return true, nil
}

// Delete a key, returns false if it didn't exist.
func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[key]
	delete(s.items, key)

	return ok, nil
}

// Persist is a no-op, nothing held in memory is durable.
func (s *Store[K, V]) Persist(ctx context.Context) error {
	return ctx.Err()
}

// Clear removes every entry.
func (s *Store[K, V]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[K]V)

	return nil
}

// Len returns the number of entries held.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}
