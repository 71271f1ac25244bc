package engine

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

func newCache(t *testing.T) (*RecordCache, *Persistence, *Diagnostics, *test.Hook) {
	t.Helper()
	store, err := NewPersistence(t.TempDir(), "", false)
	require.NoError(t, err)
	log, hook := test.NewNullLogger()
	diag := NewDiagnostics(0)
	return NewRecordCache(store, diag, log), store, diag, hook
}

func TestRecordCache_GetWithoutCreate(t *testing.T) {
	cache, store, _, _ := newCache(t)

	rec, err := cache.Get("Steve", false)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.False(t, store.Exists("Steve"))
	assert.Equal(t, 0, cache.Len())
}

func TestRecordCache_ConcurrentFirstTouch(t *testing.T) {
	cache, store, _, _ := newCache(t)

	const callers = 32
	got := make([]*Record, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := cache.Get("Steve", true)
			assert.NoError(t, err)
			got[i] = rec
		}()
	}
	wg.Wait()

	require.NotNil(t, got[0])
	for _, rec := range got {
		assert.Same(t, got[0], rec)
	}
	assert.True(t, store.Exists("Steve"))
	assert.Equal(t, 1, cache.Len())
}

func TestRecordCache_SaveWritesThrough(t *testing.T) {
	cache, store, _, _ := newCache(t)

	rec, err := cache.Get("Steve", true)
	require.NoError(t, err)
	rec.SetVault(1, "contents")
	require.NoError(t, cache.Save("Steve", rec))

	cache.Invalidate("Steve")
	_, cached := cache.Cached("Steve")
	assert.False(t, cached)

	reloaded, err := cache.Get("Steve", false)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.NotSame(t, rec, reloaded)
	v, _ := reloaded.Vault(1)
	assert.Equal(t, "contents", v)

	data, found, err := store.Load("Steve")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, string(data), "vault1: contents")
}

func TestRecordCache_Delete(t *testing.T) {
	cache, store, _, _ := newCache(t)

	rec, err := cache.Get("Steve", true)
	require.NoError(t, err)
	require.NoError(t, cache.Save("Steve", rec))

	require.NoError(t, cache.Delete("Steve"))
	assert.False(t, store.Exists("Steve"))
	_, cached := cache.Cached("Steve")
	assert.False(t, cached)
}

func TestRecordCache_MalformedDocument(t *testing.T) {
	cache, store, diag, _ := newCache(t)
	require.NoError(t, os.WriteFile(store.Path("Steve"), []byte("vault1: [unclosed"), 0644))

	rec, err := cache.Get("Steve", true)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, sdk.ErrPersistence)
	require.Len(t, diag.Recent(), 1)
	assert.Equal(t, "Steve", diag.Recent()[0].Owner)
}

func TestRecordCache_SaveFailureKeepsMemory(t *testing.T) {
	cache, store, diag, hook := newCache(t)

	rec, err := cache.Get("Steve", true)
	require.NoError(t, err)
	rec.SetVault(1, "kept")
	require.NoError(t, os.RemoveAll(store.DataDir))

	err = cache.Save("Steve", rec)
	assert.ErrorIs(t, err, sdk.ErrPersistence)
	assert.Len(t, diag.Recent(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "Steve", hook.LastEntry().Data["owner"])

	cached, ok := cache.Cached("Steve")
	require.True(t, ok)
	v, _ := cached.Vault(1)
	assert.Equal(t, "kept", v)
}

func TestDiagnostics_Ring(t *testing.T) {
	d := NewDiagnostics(2)
	d.Record("a", errors.New("one"))
	d.Record("b", errors.New("two"))
	d.Record("c", errors.New("three"))

	recent := d.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Owner)
	assert.Equal(t, "three", recent[1].Message)

	d.Clear()
	assert.Empty(t, d.Recent())
}
