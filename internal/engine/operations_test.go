package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-vaults/internal/codec"
	"github.com/celerix-dev/celerix-vaults/internal/host"
	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

const steveID = "6f1c2a9e-8d4b-4e0a-9c1f-2b3d4e5f6a7b"

type openResult struct {
	c   *inventory.Container
	err error
}

func (h *harness) openOwn(actorID string, number int) openResult {
	results := make(chan openResult, 1)
	h.ops.OpenOwn(actorID, number, func(c *inventory.Container, err error) {
		results <- openResult{c, err}
	})
	h.pool.Wait()
	return <-results
}

func (h *harness) openOther(viewerID, owner string, number int) openResult {
	results := make(chan openResult, 1)
	h.ops.OpenOther(viewerID, owner, number, func(c *inventory.Container, err error) {
		results <- openResult{c, err}
	})
	h.pool.Wait()
	return <-results
}

func withSteve(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, t.TempDir(), Options{})
	h.host.Add(host.Actor{Name: "Steve", ID: steveID, Capacity: 54, Vaults: 2, Present: true})
	return h
}

func TestGlobalLock(t *testing.T) {
	h := newHarness(t, t.TempDir(), Options{})
	c, err := h.ops.View("viewer", "Steve", 1, 27)
	require.NoError(t, err)
	c.AddItem(&schema.SlotEntry{Type: "GOLD", Amount: 9})

	h.ops.SetLocked(true)
	h.pool.Wait()
	assert.True(t, h.ops.IsLocked())

	assert.Empty(t, h.ops.Tracker().OpenKeys())
	assert.Empty(t, h.ops.Tracker().Sessions())
	assert.Equal(t, []string{"viewer"}, h.host.Closed())

	// Evicted containers are written back.
	ok, err := h.ops.Exists("Steve", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.ops.Open("Bob", 1, 27)
	assert.ErrorIs(t, err, sdk.ErrLocked)
	assert.False(t, h.store.Exists("Bob"))
	assert.ErrorIs(t, h.ops.Delete("Steve", 1), sdk.ErrLocked)
	assert.ErrorIs(t, h.ops.DeleteAll("Steve"), sdk.ErrLocked)

	h.ops.SetLocked(false)
	assert.False(t, h.ops.IsLocked())
	assert.Empty(t, h.ops.Tracker().OpenKeys())

	_, err = h.ops.Open("Bob", 1, 27)
	assert.NoError(t, err)
}

// heldScheduler queues worker tasks until run is called. Main-context work
// runs inline.
type heldScheduler struct {
	mu   sync.Mutex
	held []func()
}

func (s *heldScheduler) Async(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = append(s.held, task)
}

func (s *heldScheduler) Main(task func()) { task() }

func (s *heldScheduler) Later(time.Duration, func()) func() { return func() {} }

func (s *heldScheduler) run() {
	for {
		s.mu.Lock()
		if len(s.held) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.held[0]
		s.held = s.held[1:]
		s.mu.Unlock()
		task()
	}
}

func TestGlobalLock_ReopenBeforeWriteBack(t *testing.T) {
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	store, err := NewPersistence(dir, "", false)
	require.NoError(t, err)
	cdc, err := codec.New(log)
	require.NoError(t, err)
	t.Cleanup(cdc.Close)
	sched := &heldScheduler{}
	hst := host.New(27, 3)
	ops := NewOperations(NewManager(store, cdc, hst, sched, Options{Logger: log}))

	first, err := ops.View("viewer", "Steve", 1, 27)
	require.NoError(t, err)
	first.AddItem(&schema.SlotEntry{Type: "DIAMOND", Amount: 1})

	ops.SetLocked(true)
	ops.SetLocked(false)

	// The write-back has not run yet; the reopen must see the same container.
	again, err := ops.View("admin", "Steve", 1, 27)
	require.NoError(t, err)
	assert.Same(t, first, again)

	sched.run()
	assert.Empty(t, hst.Closed())
	assert.Len(t, ops.Tracker().Sessions(), 2)

	ops.Close("viewer")
	ops.Close("admin")
	sched.run()
	_, open := ops.Tracker().Instance(first.Key())
	assert.False(t, open)

	reloaded := newHarness(t, dir, Options{})
	snap, err := reloaded.ops.Snapshot("Steve", 1)
	require.NoError(t, err)
	slot, err := snap.Slot(0)
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "DIAMOND", slot.Type)
}

func TestGlobalLock_HeldWriteBackEvicts(t *testing.T) {
	log, _ := test.NewNullLogger()
	store, err := NewPersistence(t.TempDir(), "", false)
	require.NoError(t, err)
	cdc, err := codec.New(log)
	require.NoError(t, err)
	t.Cleanup(cdc.Close)
	sched := &heldScheduler{}
	hst := host.New(27, 3)
	ops := NewOperations(NewManager(store, cdc, hst, sched, Options{Logger: log}))

	c, err := ops.View("viewer", "Steve", 1, 27)
	require.NoError(t, err)
	c.AddItem(&schema.SlotEntry{Type: "GOLD", Amount: 2})

	ops.SetLocked(true)
	_, err = ops.Open("Steve", 1, 27)
	assert.ErrorIs(t, err, sdk.ErrLocked)
	assert.Len(t, ops.Tracker().OpenKeys(), 1)

	sched.run()
	assert.Empty(t, ops.Tracker().OpenKeys())
	assert.Empty(t, ops.Tracker().Sessions())
	assert.Equal(t, []string{"viewer"}, hst.Closed())
	assert.True(t, store.Exists("Steve"))
}

func TestOpenOwn(t *testing.T) {
	h := withSteve(t)

	res := h.openOwn(steveID, 2)
	require.NoError(t, res.err)
	require.NotNil(t, res.c)
	assert.Equal(t, 54, res.c.Size())

	shown, ok := h.host.ViewOf(steveID)
	require.True(t, ok)
	assert.Same(t, res.c, shown)

	session, ok := h.ops.Tracker().Session(steveID)
	require.True(t, ok)
	assert.Equal(t, schema.VaultKey{Owner: steveID, Number: 2}, session)
}

func TestOpenOwn_Rejections(t *testing.T) {
	h := withSteve(t)

	assert.ErrorIs(t, h.openOwn(steveID, 3).err, sdk.ErrNoPermission)
	assert.ErrorIs(t, h.openOwn(steveID, 0).err, sdk.ErrInvalidNumber)

	h.host.SetPresent(steveID, false)
	assert.ErrorIs(t, h.openOwn(steveID, 1).err, sdk.ErrActorUnavailable)

	h.host.SetPresent(steveID, true)
	h.ops.SetLocked(true)
	assert.ErrorIs(t, h.openOwn(steveID, 1).err, sdk.ErrLocked)
	assert.False(t, h.store.Exists(steveID))
}

func TestOpenOwn_ViewCancelled(t *testing.T) {
	h := withSteve(t)
	h.host.RefuseViews(steveID, true)

	res := h.openOwn(steveID, 1)
	assert.ErrorIs(t, res.err, sdk.ErrViewCancelled)
	assert.Nil(t, res.c)

	_, ok := h.ops.Tracker().Session(steveID)
	assert.False(t, ok)
	assert.Empty(t, h.ops.Tracker().OpenKeys())
}

func TestOpenOther(t *testing.T) {
	h := withSteve(t)
	h.host.Add(host.Actor{Name: "Admin", ID: "admin", Present: true})
	seedVault(t, h, steveID, 5, 54, items(4))

	// Foreign opens ignore the owner's vault count but use their capacity.
	res := h.openOther("admin", "steve", 5)
	require.NoError(t, res.err)
	assert.Equal(t, 54, res.c.Size())
	assert.Equal(t, 4, res.c.Used())

	shown, ok := h.host.ViewOf("admin")
	require.True(t, ok)
	assert.Same(t, res.c, shown)

	assert.ErrorIs(t, h.openOther("nobody", "steve", 5).err, sdk.ErrActorUnavailable)
	assert.ErrorIs(t, h.openOther("admin", "bad/name", 1).err, sdk.ErrInvalidOwner)
}

func TestDeleteAsync(t *testing.T) {
	h := newHarness(t, t.TempDir(), Options{})
	seedVault(t, h, "Steve", 1, 27, items(2))

	results := make(chan error, 1)
	h.ops.DeleteAsync("Steve", 1, func(err error) { results <- err })
	h.pool.Wait()
	require.NoError(t, <-results)

	ok, err := h.ops.Exists("Steve", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	h.ops.SetLocked(true)
	h.ops.DeleteAsync("Steve", 1, func(err error) { results <- err })
	h.pool.Wait()
	assert.ErrorIs(t, <-results, sdk.ErrLocked)
}

func TestPermissionLimits(t *testing.T) {
	h := withSteve(t)
	h.host.Add(host.Actor{Name: "Odd", ID: "odd", Capacity: 10})

	assert.Equal(t, 2, h.ops.CountVaults(steveID))
	assert.True(t, h.ops.CheckPerms(steveID, 2))
	assert.False(t, h.ops.CheckPerms(steveID, 3))
	assert.False(t, h.ops.CheckPerms(steveID, 0))

	assert.Equal(t, 54, h.ops.MaxVaultSize(steveID))
	assert.Equal(t, DefaultVaultSize, h.ops.MaxVaultSize("odd"))
	assert.Equal(t, 27, h.ops.MaxVaultSize("unknown"))
	assert.Equal(t, 3, h.ops.CountVaults("unknown"))
}
