package main

import (
	"os"

	"github.com/celerix-dev/celerix-vaults/internal/config"
	"github.com/celerix-dev/celerix-vaults/internal/engine"
	"github.com/celerix-dev/celerix-vaults/internal/service"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// admin is what the commands need, whether the daemon is remote or the
// engine runs embedded in this process.
type admin interface {
	ListOwners() ([]string, error)
	ListVaultNumbers(owner string) ([]int, error)
	Exists(owner string, number int) (bool, error)
	Show(owner string, number int) (sdk.VaultContents, error)
	Overflow(owner string, number int) ([]*schema.SlotEntry, error)
	Delete(owner string, number int) error
	DeleteAll(owner string) error
	IsLocked() (bool, error)
	SetLocked(locked bool) error
	Views() (sdk.ViewState, error)
	Diagnostics() ([]sdk.Diagnostic, error)
}

var _ admin = (*sdk.Client)(nil)

// connect picks the backend based on the environment.
func connect(cfg config.Config) (admin, *service.Service, error) {
	// 1. Check if a running daemon is addressed
	addr := remoteAddr
	if addr == "" {
		addr = os.Getenv("VAULTS_ADDR")
	}
	if addr != "" {
		client, err := sdk.Connect(addr)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}

	// 2. Fallback to embedded mode on the data directory
	svc, err := service.New(cfg, cfg.NewLogger())
	if err != nil {
		return nil, nil, err
	}
	return &embedded{ops: svc.Ops}, svc, nil
}

// embedded adapts the in-process engine to the admin surface.
type embedded struct {
	ops *engine.Operations
}

func (e *embedded) ListOwners() ([]string, error)                { return e.ops.ListOwners() }
func (e *embedded) ListVaultNumbers(owner string) ([]int, error) { return e.ops.ListVaultNumbers(owner) }
func (e *embedded) Delete(owner string, number int) error        { return e.ops.Delete(owner, number) }
func (e *embedded) DeleteAll(owner string) error                 { return e.ops.DeleteAll(owner) }
func (e *embedded) IsLocked() (bool, error)                      { return e.ops.IsLocked(), nil }
func (e *embedded) Views() (sdk.ViewState, error)                { return e.ops.Views(), nil }
func (e *embedded) Diagnostics() ([]sdk.Diagnostic, error)       { return e.ops.Diagnostics(), nil }

func (e *embedded) Exists(owner string, number int) (bool, error) {
	return e.ops.Exists(owner, number)
}

func (e *embedded) Overflow(owner string, number int) ([]*schema.SlotEntry, error) {
	return e.ops.Overflow(owner, number)
}

func (e *embedded) SetLocked(locked bool) error {
	e.ops.SetLocked(locked)
	return nil
}

func (e *embedded) Show(owner string, number int) (sdk.VaultContents, error) {
	ok, err := e.ops.Exists(owner, number)
	if err != nil {
		return sdk.VaultContents{}, err
	}
	if !ok {
		return sdk.VaultContents{}, sdk.ErrNotFound
	}
	snap, err := e.ops.Snapshot(owner, number)
	if err != nil {
		return sdk.VaultContents{}, err
	}
	return sdk.VaultContents{
		Owner:  snap.Key().Owner,
		Number: number,
		Size:   snap.Size(),
		Slots:  snap.Contents(),
	}, nil
}
