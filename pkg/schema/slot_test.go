package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotEntry_CloneIsDeep(t *testing.T) {
	s := &SlotEntry{
		Type:         "BOOK",
		Amount:       1,
		Lore:         []string{"a"},
		Enchantments: map[string]int{"mending": 1},
		Meta:         map[string]string{"author": "x"},
	}
	c := s.Clone()
	require.Equal(t, s, c)

	c.Lore[0] = "b"
	c.Enchantments["mending"] = 2
	c.Meta["author"] = "y"
	assert.Equal(t, "a", s.Lore[0])
	assert.Equal(t, 1, s.Enchantments["mending"])
	assert.Equal(t, "x", s.Meta["author"])

	assert.Nil(t, (*SlotEntry)(nil).Clone())
}

func TestSlotEntry_CloneDropsEmptyCollections(t *testing.T) {
	s := &SlotEntry{
		Type:         "STONE",
		Amount:       3,
		Lore:         []string{},
		Enchantments: map[string]int{},
		Meta:         map[string]string{},
	}
	c := s.Clone()
	assert.Nil(t, c.Lore)
	assert.Nil(t, c.Enchantments)
	assert.Nil(t, c.Meta)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	var back SlotEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, c, &back)
}
