package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

type statusFixture struct {
	handler  *GetResultStatusHandler
	results  *memory.ResultRepository
	leases   *memory.LeaseStore
	cache    *memory.StatusCache
	payments *memory.PaymentRepository
	profiles *memory.ProfileStore
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()
	f := &statusFixture{
		results:  memory.NewResultRepository(),
		leases:   memory.NewLeaseStore(),
		cache:    memory.NewStatusCache(),
		payments: memory.NewPaymentRepository(),
		profiles: memory.NewProfileStore(),
	}
	log := logger.New(logger.Options{Level: logger.LevelError})
	coordinator := fulfillment.NewCoordinator(
		f.results, f.leases, f.cache, f.profiles,
		fulfillment.NewScanner(memory.NewCatalogSource(), log), nil, log,
		fulfillment.DefaultCoordinatorConfig(),
	)
	dispatcher := fulfillment.NewDispatcher(coordinator, log, fulfillment.DefaultDispatcherConfig())
	t.Cleanup(dispatcher.Close)

	f.handler = NewGetResultStatusHandler(
		f.cache, f.results, f.leases, f.payments, dispatcher, log, time.Minute)
	return f
}

func statusKey() candidate.Key {
	return candidate.Key{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    candidate.CategoryDiploma,
	}
}

func storeProfile(t *testing.T, f *statusFixture, key candidate.Key) {
	t.Helper()
	profile, err := candidate.NewProfile(candidate.NewProfileParams{
		Email:       key.Email,
		IndexNumber: key.IndexNumber,
		Category:    key.Category,
		SubjectGrades: map[candidate.SubjectCode]candidate.Grade{
			"MAT": candidate.GradeB,
		},
		MeanGrade: candidate.GradeC,
	})
	require.NoError(t, err)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))
}

func storePayment(t *testing.T, f *statusFixture, key candidate.Key, terminal func(*payment.Record) error) *payment.Record {
	t.Helper()
	record, err := payment.NewRecord(uuid.NewString(), key, "0712345678", 200)
	require.NoError(t, err)
	record.AttachGatewayReferences("mr-1", "ws_CO_"+uuid.NewString())
	if terminal != nil {
		require.NoError(t, terminal(record))
	}
	require.NoError(t, f.payments.Create(context.Background(), record))
	return record
}

func TestGetResultStatus_NoPayment(t *testing.T) {
	f := newStatusFixture(t)

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: statusKey()})

	require.NoError(t, err)
	assert.Equal(t, result.StatusNoPayment, res.View.State)
	assert.False(t, res.View.Ready)
}

func TestGetResultStatus_PaymentInitiated(t *testing.T) {
	f := newStatusFixture(t)
	storePayment(t, f, statusKey(), nil)

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: statusKey()})

	require.NoError(t, err)
	assert.Equal(t, result.StatusPaymentInitiated, res.View.State)
}

func TestGetResultStatus_PaymentFailed(t *testing.T) {
	f := newStatusFixture(t)
	storePayment(t, f, statusKey(), func(r *payment.Record) error {
		return r.Fail("cancelled by user")
	})

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: statusKey()})

	require.NoError(t, err)
	assert.Equal(t, result.StatusPaymentFailed, res.View.State)
}

func TestGetResultStatus_LeaseHeldReportsInProgress(t *testing.T) {
	f := newStatusFixture(t)
	storePayment(t, f, statusKey(), (*payment.Record).Confirm)

	acquired, err := f.leases.Acquire(context.Background(), statusKey(), "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: statusKey()})

	require.NoError(t, err)
	assert.Equal(t, result.StatusInProgress, res.View.State)
}

func TestGetResultStatus_DurableResultWinsAndWarmsCache(t *testing.T) {
	f := newStatusFixture(t)
	key := statusKey()
	_, err := f.results.Upsert(context.Background(),
		result.NewQualificationResult(key, []catalog.Match{
			{Partition: "engineering", Entry: catalog.Entry{ProgrammeCode: "x", Partition: "engineering"}},
		}))
	require.NoError(t, err)

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: key})

	require.NoError(t, err)
	assert.Equal(t, result.StatusReady, res.View.State)
	assert.True(t, res.View.Ready)
	assert.Equal(t, 1, res.View.Count)

	count, ok, err := f.cache.GetReady(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok, "durable hit should re-warm the cache")
	assert.Equal(t, 1, count)
}

func TestGetResultStatus_CacheHitShortCircuits(t *testing.T) {
	f := newStatusFixture(t)
	key := statusKey()
	require.NoError(t, f.cache.SetReady(context.Background(), key, 7, time.Minute))

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: key})

	require.NoError(t, err)
	assert.Equal(t, result.StatusReady, res.View.State)
	assert.Equal(t, 7, res.View.Count)
}

func TestGetResultStatus_ConfirmedPaymentRedrivesComputation(t *testing.T) {
	// Payment confirmed, but no result, no lease: the poll must re-dispatch
	// the computation and report in_progress rather than leaving the key
	// stuck forever.
	f := newStatusFixture(t)
	key := statusKey()
	storeProfile(t, f, key)
	storePayment(t, f, key, (*payment.Record).Confirm)

	res, err := f.handler.Handle(context.Background(), GetResultStatusQuery{Key: key})

	require.NoError(t, err)
	assert.Equal(t, result.StatusInProgress, res.View.State)

	assert.Eventually(t, func() bool {
		exists, err := f.results.Exists(context.Background(), key)
		return err == nil && exists
	}, 5*time.Second, 10*time.Millisecond, "re-dispatched computation must persist a result")
}

func TestGetResultStatus_RejectsMalformedKey(t *testing.T) {
	f := newStatusFixture(t)

	_, err := f.handler.Handle(context.Background(), GetResultStatusQuery{
		Key: candidate.Key{Email: "not-an-email", IndexNumber: "x", Category: "degree"},
	})

	require.Error(t, err)
}
