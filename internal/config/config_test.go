package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-vaults/internal/engine"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "./backups", cfg.BackupDir)
	assert.True(t, cfg.BackupsEnabled)
	assert.Equal(t, 27, cfg.DefaultVaultSize)
	assert.Equal(t, 1, cfg.DefaultVaults)
	assert.Equal(t, "preserve", cfg.RescuePolicy)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.CountTTL)
	assert.Equal(t, "7002", cfg.HTTPPort)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("VAULTS_DATA_DIR", "/srv/vaults")
	t.Setenv("VAULTS_BACKUPS", "false")
	t.Setenv("VAULTS_DEFAULT_SIZE", "54")
	t.Setenv("VAULTS_RESCUE", "discard")
	t.Setenv("VAULTS_COUNT_TTL", "500ms")
	t.Setenv("VAULTS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/vaults", cfg.DataDir)
	assert.False(t, cfg.BackupsEnabled)

	opts := cfg.EngineOptions(cfg.NewLogger())
	assert.Equal(t, 54, opts.DefaultSize)
	assert.Equal(t, engine.RescueDiscard, opts.Rescue)
	assert.Equal(t, 500*time.Millisecond, opts.CountTTL)
	assert.Equal(t, logrus.DebugLevel, opts.Logger.GetLevel())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unaligned size", "VAULTS_DEFAULT_SIZE", "10"},
		{"unknown rescue policy", "VAULTS_RESCUE", "shred"},
		{"unknown log level", "VAULTS_LOG_LEVEL", "loud"},
		{"malformed duration", "VAULTS_COUNT_TTL", "soon"},
		{"malformed flag", "VAULTS_BACKUPS", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_BackupDirRequired(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.BackupDir = ""
	assert.Error(t, cfg.Validate())
	cfg.BackupsEnabled = false
	assert.NoError(t, cfg.Validate())
}
