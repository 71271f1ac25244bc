package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualScheduler runs work inline and holds delayed tasks until fired.
type manualScheduler struct {
	mu    sync.Mutex
	later []func()
}

func (s *manualScheduler) Async(task func()) { task() }
func (s *manualScheduler) Main(task func())  { task() }

func (s *manualScheduler) Later(_ time.Duration, task func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.later = append(s.later, task)
	return func() {}
}

func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	task := s.later[i]
	s.mu.Unlock()
	task()
}

type countingPolicy struct {
	calls int
	count int
}

func (p *countingPolicy) PermittedCapacity(string) int { return 27 }

func (p *countingPolicy) PermittedVaultCount(string) int {
	p.calls++
	return p.count
}

func TestVaultCounter_Memoizes(t *testing.T) {
	policy := &countingPolicy{count: 4}
	sched := &manualScheduler{}
	c := NewVaultCounter(policy, sched, time.Minute)

	assert.Equal(t, 4, c.Count("steve"))
	policy.count = 9
	assert.Equal(t, 4, c.Count("steve"))
	assert.Equal(t, 1, policy.calls)
	assert.Equal(t, 1, c.Len())
}

func TestVaultCounter_ExpiresAndEvicts(t *testing.T) {
	policy := &countingPolicy{count: 4}
	sched := &manualScheduler{}
	c := NewVaultCounter(policy, sched, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Count("steve")
	now = now.Add(2 * time.Minute)
	policy.count = 6
	assert.Equal(t, 6, c.Count("steve"))
	require.Len(t, sched.later, 2)

	// The stale task must not drop the newer entry.
	sched.fire(0)
	assert.Equal(t, 1, c.Len())
	sched.fire(1)
	assert.Equal(t, 0, c.Len())
}

func TestVaultCounter_DefaultTTL(t *testing.T) {
	c := NewVaultCounter(&countingPolicy{}, &manualScheduler{}, 0)
	assert.Equal(t, DefaultCountTTL, c.ttl)
}
