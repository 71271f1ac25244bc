package engine

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// Operations applies vault policy on top of a Manager: the global lock,
// permission-derived limits and the hand-off between workers and the main
// context. It implements sdk.VaultService.
type Operations struct {
	*Manager

	locked atomic.Bool
	counts *VaultCounter
}

var _ sdk.VaultService = (*Operations)(nil)

// OpenCallback receives the outcome of an asynchronous open on the main context.
type OpenCallback func(c *inventory.Container, err error)

// NewOperations wraps m. The manager must not be shared with another Operations.
func NewOperations(m *Manager) *Operations {
	o := &Operations{
		Manager: m,
		counts:  NewVaultCounter(m.host, m.sched, m.opts.CountTTL),
	}
	m.guard = o.checkUnlocked
	return o
}

func (o *Operations) checkUnlocked() error {
	if o.locked.Load() {
		return sdk.ErrLocked
	}
	return nil
}

// IsLocked reports whether the global lock is active.
func (o *Operations) IsLocked() bool {
	return o.locked.Load()
}

// SetLocked toggles the global lock. Locking force-closes every open vault:
// each is written back and evicted on a worker under its own lock.
// Unlocking reopens nothing. SetLocked does not block and is safe to call
// from the main context.
func (o *Operations) SetLocked(locked bool) {
	o.locked.Store(locked)
	if !locked {
		o.log.Info("Vaults unlocked")
		return
	}

	keys := o.views.OpenKeys()
	for _, key := range keys {
		o.sched.Async(func() {
			o.evict(key)
		})
	}
	o.log.WithField("vaults", len(keys)).Info("Vaults locked")
}

// evict writes back the open container for key and, if the lock is still
// active, drops it along with its sessions. A vault reopened after an
// unlock keeps its container and viewers.
func (o *Operations) evict(key schema.VaultKey) {
	var viewers []string
	_ = o.gate.Do(key, func() error {
		c, ok := o.views.Instance(key)
		if !ok {
			return nil
		}
		err := o.saveLocked(c)
		if o.locked.Load() {
			viewers = o.views.EvictKey(key)
		}
		return err
	})
	o.closeViews(viewers)
}

// Open is Manager.Open, rejected while locked.
func (o *Operations) Open(ownerToken string, number, capacity int) (*inventory.Container, error) {
	if err := o.checkUnlocked(); err != nil {
		return nil, err
	}
	return o.Manager.Open(ownerToken, number, capacity)
}

// Delete is Manager.Delete, rejected while locked.
func (o *Operations) Delete(ownerToken string, number int) error {
	if err := o.checkUnlocked(); err != nil {
		return err
	}
	return o.Manager.Delete(ownerToken, number)
}

// DeleteAll is Manager.DeleteAll, rejected while locked.
func (o *Operations) DeleteAll(ownerToken string) error {
	if err := o.checkUnlocked(); err != nil {
		return err
	}
	return o.Manager.DeleteAll(ownerToken)
}

// DeleteAsync deletes on a worker and reports the result on the main context.
func (o *Operations) DeleteAsync(ownerToken string, number int, done func(error)) {
	if err := o.checkUnlocked(); err != nil {
		o.reply(func() { callDone(done, err) })
		return
	}
	o.sched.Async(func() {
		err := o.Manager.Delete(ownerToken, number)
		o.reply(func() { callDone(done, err) })
	})
}

// CountVaults returns how many vaults the actor may own, memoized briefly.
func (o *Operations) CountVaults(actorID string) int {
	return o.counts.Count(actorID)
}

// CheckPerms reports whether the actor may open the vault number.
func (o *Operations) CheckPerms(actorID string, number int) bool {
	return number >= 1 && number <= o.CountVaults(actorID)
}

// MaxVaultSize returns the normalized capacity the owner's vaults may hold.
func (o *Operations) MaxVaultSize(ownerKey string) int {
	return o.NormalizeSize(o.host.PermittedCapacity(ownerKey))
}

// OpenOwn opens one of the actor's own vaults and shows it to them.
// done runs on the main context.
func (o *Operations) OpenOwn(actorID string, number int, done OpenCallback) {
	switch {
	case o.IsLocked():
		o.reply(func() { callOpen(done, nil, sdk.ErrLocked) })
		return
	case number < 1:
		o.reply(func() { callOpen(done, nil, sdk.ErrInvalidNumber) })
		return
	case !o.host.IsActorPresent(actorID):
		o.reply(func() { callOpen(done, nil, sdk.ErrActorUnavailable) })
		return
	case !o.CheckPerms(actorID, number):
		o.reply(func() { callOpen(done, nil, sdk.ErrNoPermission) })
		return
	}
	o.sched.Async(func() {
		o.present(actorID, actorID, number, done)
	})
}

// OpenOther opens another owner's vault and shows it to the viewer. Access
// control for this path belongs to the caller. done runs on the main context.
func (o *Operations) OpenOther(viewerID, ownerToken string, number int, done OpenCallback) {
	switch {
	case o.IsLocked():
		o.reply(func() { callOpen(done, nil, sdk.ErrLocked) })
		return
	case number < 1:
		o.reply(func() { callOpen(done, nil, sdk.ErrInvalidNumber) })
		return
	case !o.host.IsActorPresent(viewerID):
		o.reply(func() { callOpen(done, nil, sdk.ErrActorUnavailable) })
		return
	}
	o.sched.Async(func() {
		o.present(viewerID, ownerToken, number, done)
	})
}

// present runs on a worker: it opens the vault under the gate, then asks
// the host to display it on the main context.
func (o *Operations) present(viewerID, ownerToken string, number int, done OpenCallback) {
	owner, err := o.Resolve(ownerToken)
	if err != nil {
		o.reply(func() { callOpen(done, nil, err) })
		return
	}
	c, err := o.View(viewerID, owner, number, o.MaxVaultSize(owner))
	if err != nil {
		o.reply(func() { callOpen(done, nil, err) })
		return
	}

	o.sched.Main(func() {
		if o.IsLocked() {
			o.Close(viewerID)
			callOpen(done, nil, sdk.ErrLocked)
			return
		}
		if !o.host.OpenView(viewerID, c) {
			o.log.WithFields(logrus.Fields{"viewer": viewerID, "owner": owner, "vault": number}).
				Debug("Cancelled opening vault from an outside source")
			o.Close(viewerID)
			callOpen(done, nil, sdk.ErrViewCancelled)
			return
		}
		callOpen(done, c, nil)
	})
}

func (o *Operations) reply(task func()) {
	o.sched.Main(task)
}

func callOpen(done OpenCallback, c *inventory.Container, err error) {
	if done != nil {
		done(c, err)
	}
}

func callDone(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
