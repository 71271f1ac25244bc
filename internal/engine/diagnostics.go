package engine

import (
	"sync"
	"time"

	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// DefaultDiagnosticsSize is how many failures are retained when no size is given.
const DefaultDiagnosticsSize = 64

// Diagnostics keeps the most recent persistence failures for later retrieval.
type Diagnostics struct {
	mu      sync.Mutex
	max     int
	entries []sdk.Diagnostic
}

// NewDiagnostics creates a buffer holding at most max entries.
func NewDiagnostics(max int) *Diagnostics {
	if max <= 0 {
		max = DefaultDiagnosticsSize
	}
	return &Diagnostics{max: max}
}

// Record appends a failure, dropping the oldest entry when full.
func (d *Diagnostics) Record(owner string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, sdk.Diagnostic{
		Time:    time.Now(),
		Owner:   owner,
		Message: err.Error(),
	})
	if over := len(d.entries) - d.max; over > 0 {
		d.entries = append(d.entries[:0:0], d.entries[over:]...)
	}
}

// Recent returns the retained failures, oldest first.
func (d *Diagnostics) Recent() []sdk.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sdk.Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

// Clear drops every retained failure.
func (d *Diagnostics) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}
