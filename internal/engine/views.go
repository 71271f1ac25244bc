package engine

import (
	"cmp"
	"slices"
	"sync"

	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
)

// ViewTracker holds the open container per vault key and the vault each
// viewer is looking at. Mutations for a key happen under that key's gate
// lock; the read methods may be used without it as advisory fast paths.
type ViewTracker struct {
	mu       sync.RWMutex
	open     map[schema.VaultKey]*inventory.Container
	sessions map[string]schema.VaultKey
}

// NewViewTracker returns an empty tracker.
func NewViewTracker() *ViewTracker {
	return &ViewTracker{
		open:     make(map[schema.VaultKey]*inventory.Container),
		sessions: make(map[string]schema.VaultKey),
	}
}

// Instance returns the open container for key.
func (t *ViewTracker) Instance(key schema.VaultKey) (*inventory.Container, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.open[key]
	return c, ok
}

// Register records c as the open container for key unless one is already
// registered, in which case the existing container is returned.
func (t *ViewTracker) Register(key schema.VaultKey, c *inventory.Container) (*inventory.Container, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.open[key]; ok {
		return existing, false
	}
	t.open[key] = c
	return c, true
}

// RemoveInstance forgets the open container for key.
func (t *ViewTracker) RemoveInstance(key schema.VaultKey) (*inventory.Container, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.open[key]
	delete(t.open, key)
	return c, ok
}

// Watch records that viewer is looking at key and returns the vault the
// viewer was previously looking at, if any.
func (t *ViewTracker) Watch(viewer string, key schema.VaultKey) (schema.VaultKey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.sessions[viewer]
	t.sessions[viewer] = key
	return prev, ok && prev != key
}

// Unwatch ends the viewer's session.
func (t *ViewTracker) Unwatch(viewer string) (schema.VaultKey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.sessions[viewer]
	delete(t.sessions, viewer)
	return key, ok
}

// UnwatchIf ends the viewer's session only if it still points at key.
func (t *ViewTracker) UnwatchIf(viewer string, key schema.VaultKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.sessions[viewer]; ok && current == key {
		delete(t.sessions, viewer)
		return true
	}
	return false
}

// Session returns the vault the viewer is looking at.
func (t *ViewTracker) Session(viewer string) (schema.VaultKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key, ok := t.sessions[viewer]
	return key, ok
}

// Viewers returns every viewer of key, sorted.
func (t *ViewTracker) Viewers(key schema.VaultKey) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewersLocked(func(k schema.VaultKey) bool { return k == key })
}

// ReleaseIfIdle removes the open container for key when nobody views it.
func (t *ViewTracker) ReleaseIfIdle(key schema.VaultKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.viewersLocked(func(k schema.VaultKey) bool { return k == key })) > 0 {
		return false
	}
	_, ok := t.open[key]
	delete(t.open, key)
	return ok
}

// EvictKey removes the open container for key and every session on it.
func (t *ViewTracker) EvictKey(key schema.VaultKey) []string {
	return t.evict(func(k schema.VaultKey) bool { return k == key })
}

// EvictOwner removes every open container and session of an owner.
func (t *ViewTracker) EvictOwner(owner string) []string {
	return t.evict(func(k schema.VaultKey) bool { return k.Owner == owner })
}

func (t *ViewTracker) evict(match func(schema.VaultKey) bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	viewers := t.viewersLocked(match)
	for _, v := range viewers {
		delete(t.sessions, v)
	}
	for k := range t.open {
		if match(k) {
			delete(t.open, k)
		}
	}
	return viewers
}

func (t *ViewTracker) viewersLocked(match func(schema.VaultKey) bool) []string {
	var viewers []string
	for v, k := range t.sessions {
		if match(k) {
			viewers = append(viewers, v)
		}
	}
	slices.Sort(viewers)
	return viewers
}

// OpenKeys returns the keys of every open container.
func (t *ViewTracker) OpenKeys() []schema.VaultKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]schema.VaultKey, 0, len(t.open))
	for k := range t.open {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Sessions returns every viewer session ordered by viewer.
func (t *ViewTracker) Sessions() []schema.ViewInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]schema.ViewInfo, 0, len(t.sessions))
	for v, k := range t.sessions {
		out = append(out, schema.ViewInfo{Viewer: v, Owner: k.Owner, Number: k.Number})
	}
	slices.SortFunc(out, func(a, b schema.ViewInfo) int { return cmp.Compare(a.Viewer, b.Viewer) })
	return out
}

func compareKeys(a, b schema.VaultKey) int {
	if c := cmp.Compare(a.Owner, b.Owner); c != 0 {
		return c
	}
	return cmp.Compare(a.Number, b.Number)
}
