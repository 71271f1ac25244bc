package engine

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// RecordCache memoizes owner records and is their sole mutator. Keys are the
// resolver's owner keys, which are also the document file names.
type RecordCache struct {
	log   *logrus.Logger
	store *Persistence
	diag  *Diagnostics

	records sync.Map // owner key -> *Record
	flight  singleflight.Group
	// docs serializes document writes per owner; vault numbers of one
	// owner share a document but not a gate key.
	docs *Gate
}

// NewRecordCache wraps a persistence handler.
func NewRecordCache(store *Persistence, diag *Diagnostics, log *logrus.Logger) *RecordCache {
	if log == nil {
		log = logrus.New()
	}
	if diag == nil {
		diag = NewDiagnostics(0)
	}
	return &RecordCache{log: log, store: store, diag: diag, docs: NewGate()}
}

func documentKey(owner string) schema.VaultKey {
	return schema.VaultKey{Owner: owner}
}

// Get returns the owner's record, loading it on first use. When no document
// exists it returns nil, or creates an empty document first if create is set.
// Concurrent first touches of one owner load the document once.
func (c *RecordCache) Get(owner string, create bool) (*Record, error) {
	if v, ok := c.records.Load(owner); ok {
		return v.(*Record), nil
	}

	flightKey := owner
	if create {
		flightKey += "\x00create"
	}
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		if v, ok := c.records.Load(owner); ok {
			return v, nil
		}
		rec, err := c.load(owner, create)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		actual, _ := c.records.LoadOrStore(owner, rec)
		return actual, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*Record), nil
}

// Cached returns the resident record without touching the disk.
func (c *RecordCache) Cached(owner string) (*Record, bool) {
	v, ok := c.records.Load(owner)
	if !ok {
		return nil, false
	}
	return v.(*Record), true
}

func (c *RecordCache) load(owner string, create bool) (*Record, error) {
	data, found, err := c.store.Load(owner)
	if err != nil {
		return nil, c.fail(owner, "load", err)
	}
	if !found {
		if !create {
			return nil, nil
		}
		if err := c.store.Create(owner); err != nil {
			return nil, c.fail(owner, "create", err)
		}
		c.log.WithField("owner", owner).Debug("Created vault file")
		return NewRecord(), nil
	}
	rec, err := ParseRecord(data)
	if err != nil {
		return nil, c.fail(owner, "load", err)
	}
	return rec, nil
}

// Save makes rec the resident record and writes it through to disk. On
// failure the in-memory record is kept as the authoritative state.
func (c *RecordCache) Save(owner string, rec *Record) error {
	c.records.Store(owner, rec)
	err := c.docs.Do(documentKey(owner), func() error {
		data, err := rec.Marshal()
		if err != nil {
			return c.fail(owner, "encode", err)
		}
		if err := c.store.Save(owner, data); err != nil {
			return c.fail(owner, "save", err)
		}
		return nil
	})
	if err == nil {
		c.log.WithField("owner", owner).Debug("Saved vault file")
	}
	return err
}

// Invalidate drops the resident record, leaving the document untouched.
func (c *RecordCache) Invalidate(owner string) {
	c.records.Delete(owner)
}

// Delete drops the resident record and removes the document.
func (c *RecordCache) Delete(owner string) error {
	c.records.Delete(owner)
	return c.docs.Do(documentKey(owner), func() error {
		if err := c.store.Delete(owner); err != nil {
			return c.fail(owner, "delete", err)
		}
		return nil
	})
}

// Len returns the number of resident records.
func (c *RecordCache) Len() int {
	n := 0
	c.records.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *RecordCache) fail(owner, op string, err error) error {
	wrapped := fmt.Errorf("%s vault file for %s: %w: %w", op, owner, sdk.ErrPersistence, err)
	c.diag.Record(owner, wrapped)
	c.log.WithField("owner", owner).WithError(err).Errorf("Failed to %s vault file", op)
	return wrapped
}
