// Package result contains the qualification result model, the processing
// lease, and the per-key status state machine.
package result

import (
	"fmt"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUALIFICATION RESULT
// ══════════════════════════════════════════════════════════════════════════════

// PartitionGroup holds the qualifying entries of one partition, in catalog
// order.
type PartitionGroup struct {
	Partition string          `json:"partition"`
	Entries   []catalog.Entry `json:"entries"`
}

// QualificationResult is the durable outcome of one fulfillment computation.
// Keyed by (email, index_number, category); write-once-then-read-only: once
// persisted it is never replaced by a later computation.
type QualificationResult struct {
	// Key is the (email, index_number, category) identity.
	Key candidate.Key `json:"key"`

	// Groups holds the matching entries grouped by partition, in the fixed
	// partition order of the category. Partitions with no matches are
	// omitted. An empty slice is a valid terminal outcome.
	Groups []PartitionGroup `json:"groups"`

	// MatchCount is the total number of matching entries across groups.
	MatchCount int `json:"match_count"`

	// Ready is true once the result is servable. Always true for persisted
	// results, including empty ones.
	Ready bool `json:"ready"`

	// ComputedAt is when the scan finished.
	ComputedAt time.Time `json:"computed_at"`
}

// NewQualificationResult groups scanner matches by partition, preserving the
// category's fixed partition order, and marks the result ready.
// Zero matches is a valid terminal outcome, not a pending state.
func NewQualificationResult(key candidate.Key, matches []catalog.Match) *QualificationResult {
	byPartition := make(map[string][]catalog.Entry)
	for _, m := range matches {
		byPartition[m.Partition] = append(byPartition[m.Partition], m.Entry)
	}

	groups := make([]PartitionGroup, 0, len(byPartition))
	for _, partition := range catalog.PartitionsFor(key.Category) {
		entries, ok := byPartition[partition]
		if !ok {
			continue
		}
		groups = append(groups, PartitionGroup{Partition: partition, Entries: entries})
	}

	return &QualificationResult{
		Key:        key,
		Groups:     groups,
		MatchCount: len(matches),
		Ready:      true,
		ComputedAt: time.Now().UTC(),
	}
}

// String returns a short representation for logging.
func (r *QualificationResult) String() string {
	return fmt.Sprintf("Result{Key: %s, Matches: %d, Ready: %t}", r.Key, r.MatchCount, r.Ready)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESSING LEASE
// ══════════════════════════════════════════════════════════════════════════════

// Lease marks an in-flight computation for one key. Ephemeral: it self-expires
// after a bounded delay so a crashed worker never blocks the key permanently.
type Lease struct {
	// Key is the unit of work being computed.
	Key candidate.Key

	// Owner is the token identifying the holder; only the matching owner
	// may release the lease.
	Owner string

	// AcquiredAt is when the lease was taken.
	AcquiredAt time.Time

	// TTL bounds the lease lifetime.
	TTL time.Duration
}
