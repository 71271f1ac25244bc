// Package schema defines universal data structures shared by the vault engine and its callers.
package schema

import (
	"fmt"
	"maps"
	"slices"
)

// SlotEntry is one occupied slot of a vault container.
// Empty slots are represented by a nil *SlotEntry.
type SlotEntry struct {
	Type         string            `json:"type"`
	Amount       int               `json:"amount"`
	Damage       int               `json:"damage,omitempty"`
	Name         string            `json:"name,omitempty"`
	Lore         []string          `json:"lore,omitempty"`
	Enchantments map[string]int    `json:"enchantments,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Clone returns a deep copy of the entry. Cloning nil returns nil. Empty
// lore, enchantments and meta come back nil, matching how they are stored.
func (s *SlotEntry) Clone() *SlotEntry {
	if s == nil {
		return nil
	}
	out := *s
	out.Lore, out.Enchantments, out.Meta = nil, nil, nil
	if len(s.Lore) > 0 {
		out.Lore = slices.Clone(s.Lore)
	}
	if len(s.Enchantments) > 0 {
		out.Enchantments = maps.Clone(s.Enchantments)
	}
	if len(s.Meta) > 0 {
		out.Meta = maps.Clone(s.Meta)
	}
	return &out
}

// VaultKey addresses one numbered vault of one owner. It is the unit of
// locking and of storage addressing.
type VaultKey struct {
	Owner  string `json:"owner"`
	Number int    `json:"number"`
}

func (k VaultKey) String() string {
	return fmt.Sprintf("%s %d", k.Owner, k.Number)
}

// ViewInfo records which vault a viewer currently has open.
type ViewInfo struct {
	Viewer string `json:"viewer"`
	Owner  string `json:"owner"`
	Number int    `json:"number"`
}

// Key returns the vault the viewer is looking at.
func (v ViewInfo) Key() VaultKey {
	return VaultKey{Owner: v.Owner, Number: v.Number}
}
