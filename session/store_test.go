package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("s1", "k", "v"))

	value, ok, err := store.Get("s1", "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestMemoryStoreGetUnsetKey(t *testing.T) {
	store := NewMemoryStore()

	value, ok, err := store.Get("s1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestMemoryStoreSessionsAreIsolated(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("s1", "k", "one"))
	require.NoError(t, store.Set("s2", "k", "two"))

	value, ok, err := store.Get("s1", "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", value)

	value, ok, err = store.Get("s2", "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", value)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("s1", "k", "v"))
	require.NoError(t, store.Delete("s1", "k"))

	_, ok, err := store.Get("s1", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting an unset key is not an error
	require.NoError(t, store.Delete("s1", "never-set"))
}

func TestMemoryStoreKeys(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("s1", "b", "2"))
	require.NoError(t, store.Set("s1", "a", "1"))
	require.NoError(t, store.Set("s2", "c", "3"))

	keys, err := store.Keys("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestMemoryStoreClose(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("s1", "k", "v"))
	require.NoError(t, store.Close("s1"))

	_, ok, err := store.Get("s1", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("stale", "k", "v"))
	store.mu.Lock()
	store.sessions["stale"].lastUsed = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	require.NoError(t, store.Set("fresh", "k", "v"))

	removed, err := store.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := store.Get("stale", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get("fresh", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreConcurrentKeys(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			for j := range 50 {
				require.NoError(t, store.Set("s1", key, fmt.Sprintf("v%d", j)))
				_, _, err := store.Get("s1", key)
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	keys, err := store.Keys("s1")
	require.NoError(t, err)
	assert.Len(t, keys, 16)
}

func TestSessionHandle(t *testing.T) {
	store := NewMemoryStore()
	sess := NewSession("s1", store)

	assert.Equal(t, "s1", sess.ID())
	require.NoError(t, sess.Set("k", "v"))

	value, ok, err := sess.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)

	keys, err := sess.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	require.NoError(t, sess.Delete("k"))
	_, ok, err = sess.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}
