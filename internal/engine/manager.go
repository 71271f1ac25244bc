package engine

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/celerix-dev/celerix-vaults/internal/codec"
	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// RescuePolicy decides what happens to entries that no longer fit when a
// stored vault is larger than the owner's permitted capacity.
type RescuePolicy string

const (
	// RescuePreserve keeps overflow entries in a side field of the record.
	RescuePreserve RescuePolicy = "preserve"
	// RescueDiscard drops overflow entries.
	RescueDiscard RescuePolicy = "discard"
)

// DefaultVaultSize is used when neither the caller nor the config give a valid size.
const DefaultVaultSize = 3 * inventory.RowSize

// Options tune a Manager. Zero values select the defaults.
type Options struct {
	DefaultSize int
	Rescue      RescuePolicy
	CountTTL    time.Duration
	Title       func(number int) string
	Logger      *logrus.Logger
	Diagnostics *Diagnostics
}

func (o Options) withDefaults() Options {
	if !inventory.ValidSize(o.DefaultSize) {
		o.DefaultSize = DefaultVaultSize
	}
	if o.Rescue == "" {
		o.Rescue = RescuePreserve
	}
	if o.Title == nil {
		o.Title = func(number int) string { return fmt.Sprintf("Vault #%d", number) }
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Diagnostics == nil {
		o.Diagnostics = NewDiagnostics(0)
	}
	return o
}

// Manager owns stored records and live containers. Methods that take the
// gate block and must run on a worker, never on the main context.
type Manager struct {
	log      *logrus.Logger
	opts     Options
	store    *Persistence
	cache    *RecordCache
	gate     *Gate
	views    *ViewTracker
	codec    *codec.Codec
	resolver *Resolver
	diag     *Diagnostics
	host     sdk.Host
	sched    sdk.Scheduler

	// guard is re-checked under the gate before a vault is opened.
	guard func() error
}

// NewManager wires the storage engine together.
func NewManager(store *Persistence, c *codec.Codec, host sdk.Host, sched sdk.Scheduler, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		log:      opts.Logger,
		opts:     opts,
		store:    store,
		cache:    NewRecordCache(store, opts.Diagnostics, opts.Logger),
		gate:     NewGate(),
		views:    NewViewTracker(),
		codec:    c,
		resolver: NewResolver(store, host),
		diag:     opts.Diagnostics,
		host:     host,
		sched:    sched,
		guard:    func() error { return nil },
	}
}

// Gate exposes the per-vault lock gate.
func (m *Manager) Gate() *Gate { return m.gate }

// Cache exposes the record cache.
func (m *Manager) Cache() *RecordCache { return m.cache }

// Tracker exposes the view tracker.
func (m *Manager) Tracker() *ViewTracker { return m.views }

// Resolve validates an owner token and returns its owner key.
func (m *Manager) Resolve(token string) (string, error) {
	if !ValidOwnerToken(token) {
		return "", sdk.ErrInvalidOwner
	}
	owner := m.resolver.Resolve(token)
	if !ValidOwnerToken(owner) {
		return "", sdk.ErrInvalidOwner
	}
	return owner, nil
}

// NormalizeSize coerces sizes that are not a positive multiple of the row
// size to the configured default.
func (m *Manager) NormalizeSize(size int) int {
	if !inventory.ValidSize(size) {
		return m.opts.DefaultSize
	}
	return size
}

func (m *Manager) key(token string, number int) (schema.VaultKey, error) {
	if number < 1 {
		return schema.VaultKey{}, sdk.ErrInvalidNumber
	}
	owner, err := m.Resolve(token)
	if err != nil {
		return schema.VaultKey{}, err
	}
	return schema.VaultKey{Owner: owner, Number: number}, nil
}

// Open returns the live container for a vault, loading it if no container
// is open yet. Concurrent opens of one vault share a single container.
// Open does not track a viewer, so the container stays registered until the
// vault is deleted or the global lock evicts it; use View for sessions.
func (m *Manager) Open(ownerToken string, number, capacity int) (*inventory.Container, error) {
	key, err := m.key(ownerToken, number)
	if err != nil {
		return nil, err
	}
	size := m.NormalizeSize(capacity)
	return WithLock(m.gate, key, func() (*inventory.Container, error) {
		if err := m.guard(); err != nil {
			return nil, err
		}
		return m.openLocked(key, size)
	})
}

// View opens a vault and records viewerID as looking at it. A session the
// viewer had on another vault is closed.
func (m *Manager) View(viewerID, ownerToken string, number, capacity int) (*inventory.Container, error) {
	key, err := m.key(ownerToken, number)
	if err != nil {
		return nil, err
	}
	size := m.NormalizeSize(capacity)

	var prev schema.VaultKey
	var switched bool
	c, err := WithLock(m.gate, key, func() (*inventory.Container, error) {
		if err := m.guard(); err != nil {
			return nil, err
		}
		c, err := m.openLocked(key, size)
		if err != nil {
			return nil, err
		}
		prev, switched = m.views.Watch(viewerID, key)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	if switched {
		m.flush(prev)
	}
	m.log.WithFields(logrus.Fields{"viewer": viewerID, "owner": key.Owner, "vault": number}).Debug("Viewing vault")
	return c, nil
}

func (m *Manager) openLocked(key schema.VaultKey, size int) (*inventory.Container, error) {
	fields := logrus.Fields{"owner": key.Owner, "vault": key.Number}
	if c, ok := m.views.Instance(key); ok {
		m.log.WithFields(fields).Debug("Already open")
		return c, nil
	}

	rec, err := m.cache.Get(key.Owner, true)
	if err != nil {
		return nil, err
	}

	c := inventory.New(key, size, m.opts.Title(key.Number))
	if data, ok := rec.Vault(key.Number); ok {
		m.fill(c, rec, data)
	} else {
		m.log.WithFields(fields).Debug("No vault matching number")
	}

	actual, _ := m.views.Register(key, c)
	return actual, nil
}

// fill decodes stored contents into c, applying the rescue policy when the
// stored vault is larger than c.
func (m *Manager) fill(c *inventory.Container, rec *Record, data string) {
	key := c.Key()
	fields := logrus.Fields{"owner": key.Owner, "vault": key.Number}

	slots := m.codec.Decode(data, key.Owner)
	if slots == nil {
		m.log.WithFields(fields).Debug("Loaded vault as empty")
		return
	}
	if len(slots) <= c.Size() {
		c.SetContents(slots)
		m.log.WithFields(fields).Debug("Loaded vault")
		return
	}

	var overflow []*schema.SlotEntry
	for _, s := range slots {
		if s != nil && !c.AddItem(s) {
			overflow = append(overflow, s)
		}
	}
	m.log.WithFields(fields).WithFields(logrus.Fields{
		"stored":   len(slots),
		"allowed":  c.Size(),
		"overflow": len(overflow),
		"policy":   m.opts.Rescue,
	}).Warn("Vault larger than permitted size, rescued contents")

	if len(overflow) == 0 || m.opts.Rescue != RescuePreserve {
		return
	}
	if prev, ok := rec.Overflow(key.Number); ok {
		overflow = append(m.codec.Decode(prev, key.Owner), overflow...)
	}
	kept, err := m.codec.Encode(c.Contents())
	if err != nil {
		m.log.WithFields(fields).WithError(err).Error("Could not encode rescued vault")
		return
	}
	extra, err := m.codec.Encode(overflow)
	if err != nil {
		m.log.WithFields(fields).WithError(err).Error("Could not encode vault overflow")
		return
	}
	rec.SetVault(key.Number, kept)
	rec.SetOverflow(key.Number, extra)
	// On failure the cached record keeps both fields until the next save.
	if err := m.cache.Save(key.Owner, rec); err != nil {
		m.log.WithFields(fields).WithError(err).Error("Could not persist rescued vault")
	}
}

// Save writes a container's contents into its owner's record.
func (m *Manager) Save(c *inventory.Container) error {
	return m.gate.Do(c.Key(), func() error {
		return m.saveLocked(c)
	})
}

func (m *Manager) saveLocked(c *inventory.Container) error {
	key := c.Key()
	rec, err := m.cache.Get(key.Owner, true)
	if err != nil {
		return err
	}
	data, err := m.codec.Encode(c.Contents())
	if err != nil {
		return m.cache.fail(key.Owner, "encode", err)
	}
	rec.SetVault(key.Number, data)
	return m.cache.Save(key.Owner, rec)
}

// Close ends the viewer's session. The vault is written back on a worker
// and its container released once nobody else views it.
func (m *Manager) Close(viewerID string) {
	key, ok := m.views.Unwatch(viewerID)
	if !ok {
		return
	}
	m.flush(key)
}

func (m *Manager) flush(key schema.VaultKey) {
	m.sched.Async(func() {
		_ = m.gate.Do(key, func() error {
			c, ok := m.views.Instance(key)
			if !ok {
				return nil
			}
			err := m.saveLocked(c)
			m.views.ReleaseIfIdle(key)
			return err
		})
	})
}

// Delete removes one vault. Viewers of it are force-closed.
func (m *Manager) Delete(ownerToken string, number int) error {
	key, err := m.key(ownerToken, number)
	if err != nil {
		return err
	}
	return m.gate.Do(key, func() error {
		if _, cached := m.cache.Cached(key.Owner); !cached && !m.store.Exists(key.Owner) {
			return nil
		}
		rec, err := m.cache.Get(key.Owner, false)
		if err != nil || rec == nil {
			return err
		}
		rec.RemoveVault(key.Number)
		err = m.cache.Save(key.Owner, rec)
		m.closeViews(m.views.EvictKey(key))
		m.log.WithFields(logrus.Fields{"owner": key.Owner, "vault": number}).Info("Deleted vault")
		return err
	})
}

// DeleteAll removes an owner's record entirely and force-closes every
// viewer of the owner's vaults.
func (m *Manager) DeleteAll(ownerToken string) error {
	owner, err := m.Resolve(ownerToken)
	if err != nil {
		return err
	}
	err = m.cache.Delete(owner)
	m.closeViews(m.views.EvictOwner(owner))
	m.log.WithField("owner", owner).Info("Deleted all vaults")
	return err
}

func (m *Manager) closeViews(viewers []string) {
	for _, viewer := range viewers {
		m.sched.Main(func() { m.host.CloseView(viewer) })
	}
}

// ListOwners returns every owner key with a stored record.
func (m *Manager) ListOwners() ([]string, error) {
	owners, err := m.store.Owners()
	if err != nil {
		return nil, fmt.Errorf("%w: list owners: %w", sdk.ErrPersistence, err)
	}
	return owners, nil
}

// ListVaultNumbers returns the owner's stored vault numbers in ascending order.
func (m *Manager) ListVaultNumbers(ownerToken string) ([]int, error) {
	owner, err := m.Resolve(ownerToken)
	if err != nil {
		return nil, err
	}
	rec, err := m.cache.Get(owner, false)
	if err != nil || rec == nil {
		return []int{}, err
	}
	numbers := rec.Numbers()
	if numbers == nil {
		numbers = []int{}
	}
	return numbers, nil
}

// Exists reports whether the owner has stored contents for the vault number.
func (m *Manager) Exists(ownerToken string, number int) (bool, error) {
	key, err := m.key(ownerToken, number)
	if err != nil {
		return false, err
	}
	if _, cached := m.cache.Cached(key.Owner); !cached && !m.store.Exists(key.Owner) {
		return false, nil
	}
	rec, err := m.cache.Get(key.Owner, false)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.HasVault(key.Number), nil
}

// Snapshot returns a detached copy of a vault sized to fit its contents.
// An open vault is copied from its live container.
func (m *Manager) Snapshot(ownerToken string, number int) (*inventory.Container, error) {
	key, err := m.key(ownerToken, number)
	if err != nil {
		return nil, err
	}

	var slots []*schema.SlotEntry
	if live, ok := m.views.Instance(key); ok {
		slots = live.Contents()
	} else {
		rec, err := m.cache.Get(key.Owner, false)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			if data, ok := rec.Vault(number); ok {
				slots = m.codec.Decode(data, key.Owner)
			}
		}
	}

	rows := (len(slots) + inventory.RowSize - 1) / inventory.RowSize
	size := max(inventory.RowSize, rows*inventory.RowSize)
	c := inventory.New(key, size, fmt.Sprintf("%s vault %d", key.Owner, number))
	c.SetContents(slots)
	return c, nil
}

// Overflow returns entries preserved when the vault was truncated.
func (m *Manager) Overflow(ownerToken string, number int) ([]*schema.SlotEntry, error) {
	key, err := m.key(ownerToken, number)
	if err != nil {
		return nil, err
	}
	rec, err := m.cache.Get(key.Owner, false)
	if err != nil || rec == nil {
		return nil, err
	}
	data, ok := rec.Overflow(number)
	if !ok {
		return nil, nil
	}
	return m.codec.Decode(data, key.Owner), nil
}

// Views reports open containers and viewer sessions.
func (m *Manager) Views() sdk.ViewState {
	return sdk.ViewState{Open: m.views.OpenKeys(), Sessions: m.views.Sessions()}
}

// Diagnostics returns recent persistence failures.
func (m *Manager) Diagnostics() []sdk.Diagnostic {
	return m.diag.Recent()
}
