package engine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// DocumentChecker reports whether a record document exists for a literal key.
type DocumentChecker interface {
	Exists(ownerKey string) bool
}

// Resolver maps any owner token onto the key its record is filed under.
// It never consults the record cache.
type Resolver struct {
	docs      DocumentChecker
	directory sdk.IdentityDirectory
}

// NewResolver creates a resolver. directory may be nil.
func NewResolver(docs DocumentChecker, directory sdk.IdentityDirectory) *Resolver {
	return &Resolver{docs: docs, directory: directory}
}

// Resolve returns, in order of precedence: the token itself when a legacy
// document is filed under it, the canonical form of a UUID token, the stable
// identifier the host knows the token by, or the token verbatim.
func (r *Resolver) Resolve(token string) string {
	if token == "" {
		return token
	}
	if r.docs != nil && r.docs.Exists(token) {
		return token
	}
	if id, err := uuid.Parse(token); err == nil {
		return id.String()
	}
	if r.directory != nil {
		if id, ok := r.directory.ResolveActorIdentity(token); ok && id != "" {
			return id
		}
	}
	return token
}

// ValidOwnerToken reports whether token can safely name a record document.
func ValidOwnerToken(token string) bool {
	if strings.TrimSpace(token) == "" || token == "." || token == ".." {
		return false
	}
	return !strings.ContainsAny(token, `/\`+"\x00")
}
