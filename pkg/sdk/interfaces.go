// Package sdk defines the contracts between the vault engine, the host it is
// embedded in, and the callers that drive it.
package sdk

import (
	"errors"
	"time"

	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
)

var (
	// ErrLocked is returned while the global vault lock is active.
	ErrLocked = errors.New("vaults are locked")
	// ErrInvalidNumber is returned for vault numbers below 1.
	ErrInvalidNumber = errors.New("vault number must be a positive integer")
	// ErrInvalidOwner is returned for owner tokens that cannot name a record.
	ErrInvalidOwner = errors.New("invalid vault owner")
	// ErrNoPermission is returned when an actor may not open the requested vault.
	ErrNoPermission = errors.New("no permission for vault")
	// ErrActorUnavailable is returned when the acting actor is not present.
	ErrActorUnavailable = errors.New("actor is not available")
	// ErrViewCancelled is returned when the host refused to display a vault.
	ErrViewCancelled = errors.New("vault view was cancelled")
	// ErrPersistence wraps every I/O failure while loading or saving records.
	ErrPersistence = errors.New("vault persistence failure")
)

// --- Host collaborator (Interface Segregation) ---

// IdentityDirectory resolves free-form tokens to stable actor identifiers.
type IdentityDirectory interface {
	ResolveActorIdentity(token string) (string, bool)
}

// PresenceChecker reports whether an actor is currently present in the host.
type PresenceChecker interface {
	IsActorPresent(actorID string) bool
}

// ViewController shows and force-closes vault views for actors.
// Both methods are only ever called from the main context.
type ViewController interface {
	// OpenView displays the container to the actor. It returns false when
	// the view was cancelled by the host.
	OpenView(actorID string, c *inventory.Container) bool
	CloseView(actorID string)
}

// PermissionPolicy derives per-actor limits from host permissions.
type PermissionPolicy interface {
	// PermittedCapacity returns the slot count the owner's vaults may hold.
	PermittedCapacity(ownerKey string) int
	// PermittedVaultCount returns how many vaults the actor may own.
	PermittedVaultCount(actorID string) int
}

// Host combines every lookup the engine consumes. All methods are
// synchronous and non-blocking.
type Host interface {
	IdentityDirectory
	PresenceChecker
	ViewController
	PermissionPolicy
}

// Scheduler separates the cooperative main context from slow work.
type Scheduler interface {
	// Async runs task on a worker. Workers may block.
	Async(task func())
	// Main runs task on the single main context. Main tasks must not block.
	Main(task func())
	// Later runs task on the main context after the delay. The returned
	// function cancels it.
	Later(delay time.Duration, task func()) (cancel func())
}

// --- Exposed vault service ---

// Diagnostic is one recorded persistence failure.
type Diagnostic struct {
	Time    time.Time `json:"time"`
	Owner   string    `json:"owner"`
	Message string    `json:"message"`
}

// ViewState is a point-in-time picture of the open vaults.
type ViewState struct {
	Open     []schema.VaultKey `json:"open"`
	Sessions []schema.ViewInfo `json:"sessions"`
}

// VaultOpener opens, saves and closes live vault containers.
type VaultOpener interface {
	Open(ownerToken string, number, capacity int) (*inventory.Container, error)
	Save(c *inventory.Container) error
	Close(viewerID string)
}

// VaultDeleter removes stored vaults.
type VaultDeleter interface {
	Delete(ownerToken string, number int) error
	DeleteAll(ownerToken string) error
}

// VaultEnumeration discovers stored owners and vaults.
type VaultEnumeration interface {
	ListOwners() ([]string, error)
	ListVaultNumbers(ownerToken string) ([]int, error)
	Exists(ownerToken string, number int) (bool, error)
	// Snapshot returns a detached copy of a stored vault without tracking it.
	Snapshot(ownerToken string, number int) (*inventory.Container, error)
	// Overflow returns entries preserved when a vault was truncated.
	Overflow(ownerToken string, number int) ([]*schema.SlotEntry, error)
}

// LockController toggles the global vault lock.
type LockController interface {
	SetLocked(locked bool)
	IsLocked() bool
}

// VaultService is the complete surface exposed to the command layer.
type VaultService interface {
	VaultOpener
	VaultDeleter
	VaultEnumeration
	LockController

	Views() ViewState
	Diagnostics() []Diagnostic
}
