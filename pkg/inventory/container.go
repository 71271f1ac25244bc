// Package inventory provides the live, in-memory representation of one vault.
package inventory

import (
	"errors"
	"sync"

	"github.com/celerix-dev/celerix-vaults/pkg/schema"
)

const (
	// RowSize is the fixed unit container capacities are measured in.
	RowSize = 9

	// MaxSize is the largest capacity a container may have.
	MaxSize = 512 * RowSize
)

// ErrSlotOutOfRange is returned when a slot index is outside the container.
var ErrSlotOutOfRange = errors.New("slot index out of range")

// Container is a fixed-capacity ordered sequence of optional slot entries.
// It is safe for concurrent use; every viewer of the same vault shares one
// Container, so they observe and mutate the same state.
type Container struct {
	key   schema.VaultKey
	title string

	mu    sync.RWMutex
	slots []*schema.SlotEntry
}

// New allocates an empty container with the given capacity.
func New(key schema.VaultKey, size int, title string) *Container {
	if size < 0 {
		size = 0
	}
	return &Container{
		key:   key,
		title: title,
		slots: make([]*schema.SlotEntry, size),
	}
}

// ValidSize reports whether size is a positive multiple of RowSize no
// larger than MaxSize.
func ValidSize(size int) bool {
	return size > 0 && size <= MaxSize && size%RowSize == 0
}

// Key returns the vault this container represents.
func (c *Container) Key() schema.VaultKey { return c.key }

// Title returns the display title.
func (c *Container) Title() string { return c.title }

// Size returns the fixed capacity.
func (c *Container) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Slot returns a copy of the entry at index i, or nil when the slot is empty.
func (c *Container) Slot(i int) (*schema.SlotEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.slots) {
		return nil, ErrSlotOutOfRange
	}
	return c.slots[i].Clone(), nil
}

// SetSlot replaces the entry at index i. A nil entry empties the slot.
func (c *Container) SetSlot(i int, entry *schema.SlotEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.slots) {
		return ErrSlotOutOfRange
	}
	c.slots[i] = entry.Clone()
	return nil
}

// Contents returns a deep copy of every slot, empty slots included.
func (c *Container) Contents() []*schema.SlotEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*schema.SlotEntry, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.Clone()
	}
	return out
}

// SetContents overwrites the container slot-for-slot. Entries beyond the
// capacity are ignored and missing trailing entries leave slots empty.
func (c *Container) SetContents(entries []*schema.SlotEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.slots {
		if i < len(entries) {
			c.slots[i] = entries[i].Clone()
		} else {
			c.slots[i] = nil
		}
	}
}

// AddItem places the entry in the first empty slot and reports whether it fit.
func (c *Container) AddItem(entry *schema.SlotEntry) bool {
	if entry == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.slots {
		if s == nil {
			c.slots[i] = entry.Clone()
			return true
		}
	}
	return false
}

// Used returns the number of occupied slots.
func (c *Container) Used() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Clear empties every slot.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.slots)
}
