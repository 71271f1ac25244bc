package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-vaults/internal/config"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

func TestConnect_Embedded(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTS_ADDR", "")
	cfg := config.Config{
		DataDir:          filepath.Join(dir, "data"),
		DefaultVaultSize: 27,
		DefaultVaults:    1,
		RescuePolicy:     "preserve",
		Workers:          2,
		LogLevel:         "error",
	}

	a, s, err := connect(cfg)
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(s.Close)

	c, err := s.Ops.Open("Steve", 1, 27)
	require.NoError(t, err)
	c.AddItem(&schema.SlotEntry{Type: "STONE", Amount: 3})
	require.NoError(t, s.Ops.Save(c))

	contents, err := a.Show("Steve", 1)
	require.NoError(t, err)
	assert.Equal(t, 27, contents.Size)
	assert.Equal(t, "STONE", contents.Slots[0].Type)

	_, err = a.Show("Steve", 2)
	assert.ErrorIs(t, err, sdk.ErrNotFound)

	require.NoError(t, a.SetLocked(true))
	locked, err := a.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)
	assert.ErrorIs(t, a.Delete("Steve", 1), sdk.ErrLocked)
}

func TestParseNumber(t *testing.T) {
	n, err := parseNumber("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"0", "-1", "x"} {
		_, err := parseNumber(bad)
		assert.ErrorIs(t, err, sdk.ErrInvalidNumber, bad)
	}
}
