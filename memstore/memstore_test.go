package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/storeagent"
	"github.com/wolfeidau/storeagent/memstore"
)

var _ storeagent.Store[string, []byte] = &memstore.Store[string, []byte]{}

func TestPutGet(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	store := memstore.New[string, []byte]()

	ok, err := store.Put(ctx, "a", []byte("data"))
	assert.NoError(err)
	assert.True(ok)

	val, ok, err := store.Get(ctx, "a")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal([]byte("data"), val)

	val, ok, err = store.Get(ctx, "missing")
	assert.NoError(err)
	assert.False(ok)
	assert.Nil(val)
}

func TestDelete(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	store := memstore.New[int, string]()

	_, err := store.Put(ctx, 1, "one")
	assert.NoError(err)

	ok, err := store.Delete(ctx, 1)
	assert.NoError(err)
	assert.True(ok)

	ok, err = store.Delete(ctx, 1)
	assert.NoError(err)
	assert.False(ok)
}

func TestClear(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	store := memstore.New[int, string]()

	for i := 0; i < 10; i++ {
		_, err := store.Put(ctx, i, "value")
		assert.NoError(err)
	}
	assert.Equal(10, store.Len())

	assert.NoError(store.Persist(ctx))
	assert.NoError(store.Clear(ctx))
	assert.Equal(0, store.Len())
}

func TestCancelledContext(t *testing.T) {
	assert := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := memstore.New[string, string]()

	_, err := store.Put(ctx, "a", "b")
	assert.ErrorIs(err, context.Canceled)

	_, _, err = store.Get(ctx, "a")
	assert.ErrorIs(err, context.Canceled)

	assert.ErrorIs(store.Clear(ctx), context.Canceled)
	assert.Equal(0, store.Len())
}
