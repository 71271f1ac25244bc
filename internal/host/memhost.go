// Package host provides an in-memory sdk.Host backed by a static actor
// directory. The daemon and the CLI use it when no game host is attached.
package host

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// Actor is one directory entry.
type Actor struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id"`
	Capacity int    `yaml:"capacity,omitempty"`
	Vaults   int    `yaml:"vaults,omitempty"`
	Present  bool   `yaml:"present,omitempty"`
}

type directoryFile struct {
	Actors []Actor `yaml:"actors"`
}

// MemHost implements sdk.Host from an in-memory actor directory.
type MemHost struct {
	defaultCapacity int
	defaultVaults   int

	mu      sync.RWMutex
	byName  map[string]Actor
	byID    map[string]Actor
	views   map[string]*inventory.Container
	refused map[string]bool
	closed  []string
}

var _ sdk.Host = (*MemHost)(nil)

// New creates an empty host. Actors without explicit limits get the defaults.
func New(defaultCapacity, defaultVaults int) *MemHost {
	return &MemHost{
		defaultCapacity: defaultCapacity,
		defaultVaults:   defaultVaults,
		byName:          make(map[string]Actor),
		byID:            make(map[string]Actor),
		views:           make(map[string]*inventory.Container),
		refused:         make(map[string]bool),
	}
}

// LoadActors reads a YAML directory file of the form `actors: [...]`.
func LoadActors(path string) ([]Actor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actor directory: %w", err)
	}
	var file directoryFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse actor directory: %w", err)
	}
	for i, a := range file.Actors {
		if a.ID == "" {
			return nil, fmt.Errorf("actor directory entry %d has no id", i)
		}
	}
	return file.Actors, nil
}

// Add registers or replaces an actor.
func (h *MemHost) Add(actors ...Actor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range actors {
		if a.Name != "" {
			h.byName[strings.ToLower(a.Name)] = a
		}
		h.byID[a.ID] = a
	}
}

// SetPresent marks an actor as present or absent.
func (h *MemHost) SetPresent(id string, present bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.byID[id]
	if !ok {
		return
	}
	a.Present = present
	h.byID[id] = a
	if a.Name != "" {
		h.byName[strings.ToLower(a.Name)] = a
	}
}

// RefuseViews makes OpenView fail for the actor.
func (h *MemHost) RefuseViews(id string, refuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refused[id] = refuse
}

func (h *MemHost) ResolveActorIdentity(token string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.byName[strings.ToLower(token)]
	if !ok || a.ID == "" {
		return "", false
	}
	return a.ID, true
}

func (h *MemHost) IsActorPresent(actorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[actorID].Present
}

func (h *MemHost) OpenView(actorID string, c *inventory.Container) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refused[actorID] {
		return false
	}
	h.views[actorID] = c
	return true
}

func (h *MemHost) CloseView(actorID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.views, actorID)
	h.closed = append(h.closed, actorID)
}

func (h *MemHost) PermittedCapacity(ownerKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if a, ok := h.byID[ownerKey]; ok && a.Capacity > 0 {
		return a.Capacity
	}
	return h.defaultCapacity
}

func (h *MemHost) PermittedVaultCount(actorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if a, ok := h.byID[actorID]; ok && a.Vaults > 0 {
		return a.Vaults
	}
	return h.defaultVaults
}

// ViewOf returns the container currently shown to the actor.
func (h *MemHost) ViewOf(actorID string) (*inventory.Container, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.views[actorID]
	return c, ok
}

// Closed returns every actor whose view was force-closed, in call order.
func (h *MemHost) Closed() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.closed)
}
