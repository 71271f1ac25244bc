package engine

import (
	"sync"

	"github.com/celerix-dev/celerix-vaults/pkg/schema"
)

// Gate hands out one mutex per vault key. An entry lives only while some
// caller holds or waits for it, so the map never accumulates stale keys.
type Gate struct {
	mu    sync.Mutex
	locks map[schema.VaultKey]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int // holders plus waiters, guarded by Gate.mu
}

// NewGate returns an empty gate.
func NewGate() *Gate {
	return &Gate{locks: make(map[schema.VaultKey]*gateEntry)}
}

// WithLock runs body while holding the key's mutex. Acquisition blocks
// without timeout and is not reentrant; never call it from the main context.
func WithLock[T any](g *Gate, key schema.VaultKey, body func() (T, error)) (T, error) {
	e := g.acquire(key)
	defer g.release(key, e)
	return body()
}

// Do is WithLock for bodies without a result.
func (g *Gate) Do(key schema.VaultKey, body func() error) error {
	_, err := WithLock(g, key, func() (struct{}, error) {
		return struct{}{}, body()
	})
	return err
}

func (g *Gate) acquire(key schema.VaultKey) *gateEntry {
	g.mu.Lock()
	e, ok := g.locks[key]
	if !ok {
		e = &gateEntry{}
		g.locks[key] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()
	return e
}

func (g *Gate) release(key schema.VaultKey, e *gateEntry) {
	e.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(g.locks, key)
	}
}

// Len returns the number of live entries.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
