package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG SOURCE
// The catalog is maintained out-of-band and replaced wholesale, one partition
// at a time. Reads are ordered by the position column so the scanner sees
// entries in catalog order.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogSource implements catalog.Source on PostgreSQL.
type CatalogSource struct {
	conn *Connection
}

// NewCatalogSource creates a new CatalogSource.
func NewCatalogSource(conn *Connection) *CatalogSource {
	return &CatalogSource{conn: conn}
}

// Entries returns every entry in one partition, in position order.
// An empty partition reports ErrMissingCatalogPartition; the scanner skips it.
func (s *CatalogSource) Entries(ctx context.Context, category candidate.Category, partition string) ([]catalog.Entry, error) {
	query := `
		SELECT programme_code, programme_name, institution, partition,
		       min_requirements, min_mean_grade, cutoff_points
		FROM catalog_entries
		WHERE category = $1 AND partition = $2
		ORDER BY position, id`

	rows, err := s.conn.Query(ctx, query, category.String(), partition)
	if err != nil {
		return nil, shared.WrapError("catalog", "Entries", shared.ErrPersistence,
			"query failed", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var (
			entry           catalog.Entry
			requirementsRaw []byte
			meanGrade       string
		)
		err := rows.Scan(
			&entry.ProgrammeCode,
			&entry.ProgrammeName,
			&entry.Institution,
			&entry.Partition,
			&requirementsRaw,
			&meanGrade,
			&entry.CutoffPoints,
		)
		if err != nil {
			return nil, shared.WrapError("catalog", "Entries", shared.ErrPersistence,
				"row scan failed", err)
		}

		if err := json.Unmarshal(requirementsRaw, &entry.MinimumSubjectRequirements); err != nil {
			return nil, shared.WrapError("catalog", "Entries", shared.ErrPersistence,
				"requirements unmarshal failed", err)
		}
		entry.MinimumMeanGrade = candidate.Grade(meanGrade)

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("catalog", "Entries", shared.ErrPersistence,
			"row iteration failed", err)
	}

	if len(entries) == 0 {
		return nil, shared.ErrMissingCatalogPartition
	}
	return entries, nil
}

// ReplacePartition swaps out the full contents of one partition atomically.
// Used by the catalog import endpoint.
func (s *CatalogSource) ReplacePartition(ctx context.Context, category candidate.Category, partition string, entries []catalog.Entry) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM catalog_entries WHERE category = $1 AND partition = $2`,
			category.String(), partition)
		if err != nil {
			return shared.WrapError("catalog", "ReplacePartition", shared.ErrPersistence,
				"partition delete failed", err)
		}

		insert := `
			INSERT INTO catalog_entries (
				category, partition, programme_code, programme_name,
				institution, min_requirements, min_mean_grade, cutoff_points,
				position
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		for i, entry := range entries {
			requirements, err := json.Marshal(entry.MinimumSubjectRequirements)
			if err != nil {
				return shared.WrapError("catalog", "ReplacePartition", shared.ErrPersistence,
					"requirements marshal failed", err)
			}

			_, err = tx.Exec(ctx, insert,
				category.String(),
				partition,
				entry.ProgrammeCode,
				entry.ProgrammeName,
				entry.Institution,
				requirements,
				string(entry.MinimumMeanGrade),
				entry.CutoffPoints,
				i,
			)
			if err != nil {
				return shared.WrapError("catalog", "ReplacePartition", shared.ErrPersistence,
					"entry insert failed", err)
			}
		}
		return nil
	})
}
