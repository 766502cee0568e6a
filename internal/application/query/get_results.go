package query

import (
	"context"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RESULTS QUERY
// Serves the persisted qualification report. Results exist only behind a
// confirmed payment, so the handler re-checks the gate rather than trusting
// the caller.
// ══════════════════════════════════════════════════════════════════════════════

// GetResultsQuery contains the report request parameters.
type GetResultsQuery struct {
	// Key identifies the report to fetch.
	Key candidate.Key
}

// Validate validates the query.
func (q GetResultsQuery) Validate() error {
	if !q.Key.IsValid() {
		return shared.WrapError("query", "GetResults", shared.ErrInvalidInput,
			"malformed candidate key", nil)
	}
	return nil
}

// GetResultsResult contains the full qualification report.
type GetResultsResult struct {
	// Key is the report identity.
	Key candidate.Key `json:"key"`

	// Groups holds the matching entries grouped by partition, in the fixed
	// partition order of the category.
	Groups []result.PartitionGroup `json:"groups"`

	// MatchCount is the total number of matching entries.
	MatchCount int `json:"match_count"`

	// ComputedAt is when the scan finished.
	ComputedAt time.Time `json:"computed_at"`
}

// GetResultsHandler handles the GetResultsQuery.
type GetResultsHandler struct {
	results  result.Repository
	payments payment.Repository
}

// NewGetResultsHandler creates a new GetResultsHandler.
func NewGetResultsHandler(results result.Repository, payments payment.Repository) *GetResultsHandler {
	return &GetResultsHandler{results: results, payments: payments}
}

// Handle executes the results query. Returns ErrPaymentNotConfirmed when the
// key's latest payment is not confirmed, and ErrResultNotFound when the
// computation has not finished yet.
func (h *GetResultsHandler) Handle(ctx context.Context, query GetResultsQuery) (*GetResultsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	record, err := h.payments.GetLatestByKey(ctx, query.Key)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrPaymentNotConfirmed
		}
		return nil, shared.WrapError("query", "GetResults", shared.ErrPersistence,
			"payment lookup failed", err)
	}
	if record.State != payment.StateConfirmed {
		return nil, shared.ErrPaymentNotConfirmed
	}

	res, err := h.results.Get(ctx, query.Key)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrResultNotFound
		}
		return nil, shared.WrapError("query", "GetResults", shared.ErrPersistence,
			"result lookup failed", err)
	}

	return &GetResultsResult{
		Key:        res.Key,
		Groups:     res.Groups,
		MatchCount: res.MatchCount,
		ComputedAt: res.ComputedAt,
	}, nil
}
