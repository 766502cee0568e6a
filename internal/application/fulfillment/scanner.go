// Package fulfillment contains the qualification computation pipeline: the
// catalog scanner and the coordinator that drives one computation per
// (email, index_number, category) key from payment confirmation to a durable,
// servable result.
package fulfillment

import (
	"context"
	"errors"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG SCANNER
// Walks every registered partition of the profile's category in the fixed
// partition order and collects the entries the candidate qualifies for.
// ══════════════════════════════════════════════════════════════════════════════

// Scanner evaluates one candidate profile against the full catalog of its
// category.
type Scanner struct {
	source catalog.Source
	log    *logger.Logger
}

// NewScanner creates a new Scanner.
func NewScanner(source catalog.Source, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.Default()
	}
	return &Scanner{
		source: source,
		log:    log.With(logger.Component("scanner")),
	}
}

// Scan returns the qualifying entries across all partitions of the profile's
// category, ordered by partition then by catalog order within a partition.
//
// A missing partition is skipped, not fatal: the scan of the remaining
// partitions continues and the absence is logged. Any other source error
// aborts the scan, because a partial result must never be persisted as if it
// were complete.
func (s *Scanner) Scan(ctx context.Context, profile *candidate.Profile) ([]catalog.Match, error) {
	var matches []catalog.Match

	for _, partition := range catalog.PartitionsFor(profile.Category) {
		if err := ctx.Err(); err != nil {
			return nil, shared.WrapError("fulfillment", "Scan", shared.ErrComputation,
				"scan cancelled", err)
		}

		entries, err := s.source.Entries(ctx, profile.Category, partition)
		if err != nil {
			if errors.Is(err, shared.ErrMissingCatalogPartition) {
				s.log.Warn("catalog partition missing, skipping",
					logger.Category(profile.Category.String()),
					logger.Partition(partition))
				continue
			}
			return nil, shared.WrapError("fulfillment", "Scan", shared.ErrComputation,
				"catalog read failed for partition "+partition, err)
		}

		for _, entry := range entries {
			if catalog.Qualifies(entry, profile) {
				matches = append(matches, catalog.Match{Partition: partition, Entry: entry})
			}
		}
	}

	s.log.Debug("scan complete",
		logger.IndexNumber(profile.IndexNumber.String()),
		logger.Category(profile.Category.String()),
		logger.MatchCount(len(matches)))

	return matches, nil
}
