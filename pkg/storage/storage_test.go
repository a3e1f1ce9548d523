package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", []byte("value1")))

	v, ok, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value1"), v)
}

func TestMemoryGetMissingKey(t *testing.T) {
	m := NewMemory()
	v, ok, err := m.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestMemorySetCopiesValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	original := []byte("mutable")

	require.NoError(t, m.Set(ctx, "k", original))
	original[0] = 'X'

	v, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), v, "Set must copy the value so later caller mutation doesn't leak into the store")
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("value")))

	v, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'X'

	v2, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v2, "Get must return a copy so caller mutation doesn't leak into the store")
}

func TestMemoryHas(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	has, err := m.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	has, err = m.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("v")))

	require.NoError(t, m.Delete(ctx, "k"))
	has, err := m.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)

	// deleting an absent key is not an error
	require.NoError(t, m.Delete(ctx, "k"))
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "b", []byte("2")))

	require.NoError(t, m.Clear(ctx))

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "b", []byte("2")))

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}
