package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/application/command"
	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

type jobFixture struct {
	payments   *memory.PaymentRepository
	results    *memory.ResultRepository
	leases     *memory.LeaseStore
	profiles   *memory.ProfileStore
	dispatcher *fulfillment.Dispatcher
	confirm    *command.ConfirmPaymentHandler
	log        *logger.Logger
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{
		payments: memory.NewPaymentRepository(),
		results:  memory.NewResultRepository(),
		leases:   memory.NewLeaseStore(),
		profiles: memory.NewProfileStore(),
		log:      logger.New(logger.Options{Level: logger.LevelError}),
	}

	coordinator := fulfillment.NewCoordinator(
		f.results, f.leases, memory.NewStatusCache(), f.profiles,
		fulfillment.NewScanner(memory.NewCatalogSource(), f.log), nil, f.log,
		fulfillment.DefaultCoordinatorConfig(),
	)
	f.dispatcher = fulfillment.NewDispatcher(coordinator, f.log, fulfillment.DefaultDispatcherConfig())
	t.Cleanup(f.dispatcher.Close)

	f.confirm = command.NewConfirmPaymentHandler(f.payments, f.dispatcher, nil, f.log)
	return f
}

func jobKey() candidate.Key {
	return candidate.Key{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    candidate.CategoryDiploma,
	}
}

func seedJobProfile(t *testing.T, f *jobFixture) {
	t.Helper()
	key := jobKey()
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

func seedJobPayment(t *testing.T, f *jobFixture, finalize func(*payment.Record) error) *payment.Record {
	t.Helper()
	record, err := payment.NewRecord(uuid.NewString(), jobKey(), "0712345678", 200)
	require.NoError(t, err)
	record.AttachGatewayReferences("mr-1", "ws_CO_"+uuid.NewString())
	if finalize != nil {
		require.NoError(t, finalize(record))
	}
	require.NoError(t, f.payments.Create(context.Background(), record))
	return record
}

func TestReconcileFulfillments_RedispatchesStrandedKey(t *testing.T) {
	f := newJobFixture(t)
	seedJobProfile(t, f)
	seedJobPayment(t, f, (*payment.Record).Confirm)

	job := NewReconcileFulfillmentsJob(
		f.payments, f.results, f.leases, f.dispatcher, f.log,
		DefaultReconcileFulfillmentsConfig(),
	)
	require.NoError(t, job.Run(context.Background()))

	assert.Eventually(t, func() bool {
		exists, err := f.results.Exists(context.Background(), jobKey())
		return err == nil && exists
	}, 5*time.Second, 10*time.Millisecond, "a stranded confirmed payment must be recomputed")
}

func TestReconcileFulfillments_SkipsFulfilledAndLeasedKeys(t *testing.T) {
	f := newJobFixture(t)
	seedJobProfile(t, f)
	seedJobPayment(t, f, (*payment.Record).Confirm)

	// A held lease means a worker is already computing.
	acquired, err := f.leases.Acquire(context.Background(), jobKey(), "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	job := NewReconcileFulfillmentsJob(
		f.payments, f.results, f.leases, f.dispatcher, f.log,
		DefaultReconcileFulfillmentsConfig(),
	)
	require.NoError(t, job.Run(context.Background()))

	time.Sleep(50 * time.Millisecond)
	exists, err := f.results.Exists(context.Background(), jobKey())
	require.NoError(t, err)
	assert.False(t, exists, "a leased key must not be re-dispatched")
}

// stubGateway answers status queries with a canned outcome.
type stubGateway struct {
	outcome payment.ChargeOutcome
	queries int
}

func (g *stubGateway) RequestCharge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResponse, error) {
	return &payment.ChargeResponse{MerchantRequestID: "mr", CheckoutRequestID: "ws_CO_stub"}, nil
}

func (g *stubGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*payment.ChargeOutcome, error) {
	g.queries++
	outcome := g.outcome
	outcome.Reference = checkoutRequestID
	return &outcome, nil
}

func TestResolveStalePayments_AppliesQueriedVerdict(t *testing.T) {
	f := newJobFixture(t)
	seedJobProfile(t, f)
	record := seedJobPayment(t, f, nil)

	gw := &stubGateway{outcome: payment.ChargeOutcome{Succeeded: true}}
	job := NewResolveStalePaymentsJob(f.payments, gw, f.confirm, f.log, ResolveStalePaymentsConfig{
		StaleAfter: time.Nanosecond,
		BatchSize:  10,
		Timeout:    time.Minute,
	})

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, gw.queries)
	stored, err := f.payments.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsConfirmed(), "the queried verdict must be applied")
}

func TestResolveStalePayments_LeavesPendingCharges(t *testing.T) {
	f := newJobFixture(t)
	record := seedJobPayment(t, f, nil)

	gw := &stubGateway{outcome: payment.ChargeOutcome{Pending: true}}
	job := NewResolveStalePaymentsJob(f.payments, gw, f.confirm, f.log, ResolveStalePaymentsConfig{
		StaleAfter: time.Nanosecond,
		BatchSize:  10,
		Timeout:    time.Minute,
	})

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, job.Run(context.Background()))

	stored, err := f.payments.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StateInitiated, stored.State, "a pending charge stays initiated")
}

func TestResolveStalePayments_IgnoresFreshCharges(t *testing.T) {
	f := newJobFixture(t)
	seedJobPayment(t, f, nil)

	gw := &stubGateway{outcome: payment.ChargeOutcome{Succeeded: true}}
	job := NewResolveStalePaymentsJob(f.payments, gw, f.confirm, f.log, ResolveStalePaymentsConfig{
		StaleAfter: time.Hour,
		BatchSize:  10,
		Timeout:    time.Minute,
	})

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, gw.queries, "fresh charges must not be queried")
}
