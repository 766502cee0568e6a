package postgres

import (
	"context"
	"encoding/json"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULT REPOSITORY
// Results are write-once. The primary key on (email, index_number, category)
// plus ON CONFLICT DO NOTHING gives first-writer-wins without locking: the
// losing writer simply reads back the surviving row.
// ══════════════════════════════════════════════════════════════════════════════

// ResultRepository implements result.Repository on PostgreSQL.
type ResultRepository struct {
	conn *Connection
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(conn *Connection) *ResultRepository {
	return &ResultRepository{conn: conn}
}

// Upsert persists the result unless a row already exists for the key, and
// returns the surviving row either way.
func (r *ResultRepository) Upsert(ctx context.Context, res *result.QualificationResult) (*result.QualificationResult, error) {
	groups, err := json.Marshal(res.Groups)
	if err != nil {
		return nil, shared.WrapError("result", "Upsert", shared.ErrPersistence,
			"groups marshal failed", err)
	}

	query := `
		INSERT INTO qualification_results (
			email, index_number, category, groups, match_count, ready, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email, index_number, category) DO NOTHING`

	_, err = r.conn.Exec(ctx, query,
		res.Key.Email,
		res.Key.IndexNumber.String(),
		res.Key.Category.String(),
		groups,
		res.MatchCount,
		res.Ready,
		res.ComputedAt,
	)
	if err != nil {
		return nil, shared.WrapError("result", "Upsert", shared.ErrPersistence,
			"insert failed", err)
	}

	return r.Get(ctx, res.Key)
}

// Get returns the persisted result for a key.
func (r *ResultRepository) Get(ctx context.Context, key candidate.Key) (*result.QualificationResult, error) {
	query := `
		SELECT groups, match_count, ready, computed_at
		FROM qualification_results
		WHERE email = $1 AND index_number = $2 AND category = $3`

	var (
		groupsRaw []byte
		res       = result.QualificationResult{Key: key}
	)

	err := r.conn.QueryRow(ctx, query,
		key.Email, key.IndexNumber.String(), key.Category.String(),
	).Scan(&groupsRaw, &res.MatchCount, &res.Ready, &res.ComputedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrResultNotFound
		}
		return nil, shared.WrapError("result", "Get", shared.ErrPersistence,
			"row scan failed", err)
	}

	if err := json.Unmarshal(groupsRaw, &res.Groups); err != nil {
		return nil, shared.WrapError("result", "Get", shared.ErrPersistence,
			"groups unmarshal failed", err)
	}

	return &res, nil
}

// Exists reports whether a result is persisted for a key.
func (r *ResultRepository) Exists(ctx context.Context, key candidate.Key) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM qualification_results
			WHERE email = $1 AND index_number = $2 AND category = $3
		)`

	var exists bool
	err := r.conn.QueryRow(ctx, query,
		key.Email, key.IndexNumber.String(), key.Category.String(),
	).Scan(&exists)
	if err != nil {
		return false, shared.WrapError("result", "Exists", shared.ErrPersistence,
			"exists check failed", err)
	}
	return exists, nil
}
