package catalog

import (
	"context"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

// Source provides read-only access to the externally maintained catalog.
// One logical partition exists per (category, partition) pair.
// Implementations live in infrastructure/persistence.
type Source interface {
	// Entries returns every entry in one partition.
	// Returns ErrMissingCatalogPartition when the partition is absent or
	// unavailable; the scanner treats that as non-fatal and continues.
	Entries(ctx context.Context, category candidate.Category, partition string) ([]Entry, error)
}
