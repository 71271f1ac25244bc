package engine

import (
	"sync"
	"time"

	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// DefaultCountTTL is how long a looked-up vault count stays valid.
const DefaultCountTTL = 2 * time.Second

// evictionSlack delays the cleanup task slightly past the TTL.
const evictionSlack = 50 * time.Millisecond

// VaultCounter memoizes each actor's permitted vault count for a short TTL.
type VaultCounter struct {
	policy sdk.PermissionPolicy
	sched  sdk.Scheduler
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*countEntry
}

type countEntry struct {
	count int
	at    time.Time
}

// NewVaultCounter creates a counter. A non-positive ttl uses DefaultCountTTL.
func NewVaultCounter(policy sdk.PermissionPolicy, sched sdk.Scheduler, ttl time.Duration) *VaultCounter {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	return &VaultCounter{
		policy:  policy,
		sched:   sched,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*countEntry),
	}
}

// Count returns how many vaults the actor may own.
func (c *VaultCounter) Count(actorID string) int {
	c.mu.Lock()
	cached := c.entries[actorID]
	c.mu.Unlock()
	if cached != nil && c.now().Before(cached.at.Add(c.ttl)) {
		return cached.count
	}

	fresh := &countEntry{count: c.policy.PermittedVaultCount(actorID), at: c.now()}
	c.mu.Lock()
	c.entries[actorID] = fresh
	c.mu.Unlock()

	// Only evict the entry this call stored; a newer lookup owns its own task.
	c.sched.Later(c.ttl+evictionSlack, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.entries[actorID] == fresh {
			delete(c.entries, actorID)
		}
	})
	return fresh.count
}

// Len returns the number of memoized counts.
func (c *VaultCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
