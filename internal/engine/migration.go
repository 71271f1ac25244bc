package engine

import "fmt"

// Migrate copies every owner document from src into dst and returns how
// many were copied. Owner keys are carried over verbatim; documents are
// parsed first so a corrupt source never lands in the destination.
// This works for:
// - moving a data directory to new storage
// - seeding a staging directory from a live one (daemon stopped)
func Migrate(src, dst *Persistence) (int, error) {
	// 1. Get all owners from the source
	owners, err := src.Owners()
	if err != nil {
		return 0, fmt.Errorf("failed to list owners: %w", err)
	}

	copied := 0
	for _, owner := range owners {
		// 2. Load and validate the document
		data, found, err := src.Load(owner)
		if err != nil {
			return copied, fmt.Errorf("failed to read vault file for %s: %w", owner, err)
		}
		if !found {
			continue
		}
		rec, err := ParseRecord(data)
		if err != nil {
			return copied, fmt.Errorf("failed to parse vault file for %s: %w", owner, err)
		}

		// 3. Push it into the destination
		out, err := rec.Marshal()
		if err != nil {
			return copied, fmt.Errorf("failed to encode vault file for %s: %w", owner, err)
		}
		if err := dst.Save(owner, out); err != nil {
			return copied, fmt.Errorf("failed to write vault file for %s: %w", owner, err)
		}
		copied++
	}

	return copied, nil
}
