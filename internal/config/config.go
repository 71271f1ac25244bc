// Package config loads the vault service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/celerix-dev/celerix-vaults/internal/engine"
	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
)

// Config holds every tunable of the vault service.
type Config struct {
	DataDir          string        `env:"VAULTS_DATA_DIR" envDefault:"./data"`
	BackupDir        string        `env:"VAULTS_BACKUP_DIR" envDefault:"./backups"`
	BackupsEnabled   bool          `env:"VAULTS_BACKUPS" envDefault:"true"`
	DefaultVaultSize int           `env:"VAULTS_DEFAULT_SIZE" envDefault:"27"`
	DefaultVaults    int           `env:"VAULTS_DEFAULT_COUNT" envDefault:"1"`
	RescuePolicy     string        `env:"VAULTS_RESCUE" envDefault:"preserve"`
	Workers          int           `env:"VAULTS_WORKERS" envDefault:"8"`
	CountTTL         time.Duration `env:"VAULTS_COUNT_TTL" envDefault:"2s"`
	HTTPPort         string        `env:"VAULTS_HTTP_PORT" envDefault:"7002"`
	LogLevel         string        `env:"VAULTS_LOG_LEVEL" envDefault:"info"`
	ActorsFile       string        `env:"VAULTS_ACTORS_FILE"`
}

// Load parses the environment into a validated Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot honor.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("VAULTS_DATA_DIR must not be empty")
	}
	if c.BackupsEnabled && c.BackupDir == "" {
		return fmt.Errorf("VAULTS_BACKUP_DIR must be set when backups are enabled")
	}
	if !inventory.ValidSize(c.DefaultVaultSize) {
		return fmt.Errorf("VAULTS_DEFAULT_SIZE must be a positive multiple of %d up to %d, got %d", inventory.RowSize, inventory.MaxSize, c.DefaultVaultSize)
	}
	switch engine.RescuePolicy(c.RescuePolicy) {
	case engine.RescuePreserve, engine.RescueDiscard:
	default:
		return fmt.Errorf("VAULTS_RESCUE must be %q or %q, got %q", engine.RescuePreserve, engine.RescueDiscard, c.RescuePolicy)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("VAULTS_LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}

// EngineOptions maps the config onto engine options.
func (c Config) EngineOptions(log *logrus.Logger) engine.Options {
	return engine.Options{
		DefaultSize: c.DefaultVaultSize,
		Rescue:      engine.RescuePolicy(c.RescuePolicy),
		CountTTL:    c.CountTTL,
		Logger:      log,
	}
}
