// Package service assembles the vault engine from configuration.
package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/celerix-dev/celerix-vaults/internal/codec"
	"github.com/celerix-dev/celerix-vaults/internal/config"
	"github.com/celerix-dev/celerix-vaults/internal/engine"
	"github.com/celerix-dev/celerix-vaults/internal/host"
	"github.com/celerix-dev/celerix-vaults/internal/worker"
)

// Service bundles the running engine with the resources it owns.
type Service struct {
	Ops   *engine.Operations
	Store *engine.Persistence
	Host  *host.MemHost
	Pool  *worker.Pool
	codec *codec.Codec
}

// New builds a service backed by an in-memory host loaded from the
// configured actor directory.
func New(cfg config.Config, log *logrus.Logger) (*Service, error) {
	store, err := engine.NewPersistence(cfg.DataDir, cfg.BackupDir, cfg.BackupsEnabled)
	if err != nil {
		return nil, fmt.Errorf("initialize persistence: %w", err)
	}

	h := host.New(cfg.DefaultVaultSize, cfg.DefaultVaults)
	if cfg.ActorsFile != "" {
		actors, err := host.LoadActors(cfg.ActorsFile)
		if err != nil {
			return nil, err
		}
		h.Add(actors...)
		log.WithField("actors", len(actors)).Info("Loaded actor directory")
	}

	c, err := codec.New(log)
	if err != nil {
		return nil, err
	}

	pool := worker.New(cfg.Workers, log)
	m := engine.NewManager(store, c, h, pool, cfg.EngineOptions(log))
	return &Service{
		Ops:   engine.NewOperations(m),
		Store: store,
		Host:  h,
		Pool:  pool,
		codec: c,
	}, nil
}

// Close drains outstanding writes and releases resources.
func (s *Service) Close() {
	s.Pool.Close()
	s.codec.Close()
}
