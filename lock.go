package storeagent

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnkeyedStore the store has no identity which an exclusion domain can be keyed on
var ErrUnkeyedStore = errors.New("storeagent: store identity can't key an exclusion domain")

var (
	// domains maps store identity to the mutex guarding it, entries live until Forget
	domainsMu sync.Mutex
	domains   = make(map[any]*sync.Mutex)
)

// Lock acquires the exclusion domain of the given store, the same domain agents wrapping that store use
// for Put, Delete, Persist and Clear. The returned func releases it.
//
// Stores implementing sync.Locker own their domain, otherwise only pointer identities can be keyed.
func Lock(store any) (unlock func(), err error) {
	l, ok := domainFor(store)
	if !ok {
		return nil, ErrUnkeyedStore
	}

	l.Lock()

	return l.Unlock, nil
}

// Forget drops the exclusion domain registered for the store, agents already holding it keep using it.
func Forget(store any) {
	if !keyable(store) {
		return
	}

	domainsMu.Lock()
	defer domainsMu.Unlock()

	delete(domains, store)
}

func domainFor(store any) (sync.Locker, bool) {
	if l, ok := store.(sync.Locker); ok {
		return l, true
	}

	if !keyable(store) {
		return nil, false
	}

	domainsMu.Lock()
	defer domainsMu.Unlock()

	mu, ok := domains[store]
	if !ok {
		mu = &sync.Mutex{}
		domains[store] = mu
	}

	return mu, true
}

func keyable(store any) bool {
	rv := reflect.ValueOf(store)
	if !rv.IsValid() {
		return false
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan:
		return !rv.IsNil()
	}

	return false
}
