package command

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

type confirmFixture struct {
	handler  *ConfirmPaymentHandler
	payments *memory.PaymentRepository
	profiles *memory.ProfileStore
	results  *memory.ResultRepository
}

func newConfirmFixture(t *testing.T) *confirmFixture {
	t.Helper()
	f := &confirmFixture{
		payments: memory.NewPaymentRepository(),
		profiles: memory.NewProfileStore(),
		results:  memory.NewResultRepository(),
	}
	log := logger.New(logger.Options{Level: logger.LevelError})
	coordinator := fulfillment.NewCoordinator(
		f.results, memory.NewLeaseStore(), memory.NewStatusCache(), f.profiles,
		fulfillment.NewScanner(memory.NewCatalogSource(), log), nil, log,
		fulfillment.DefaultCoordinatorConfig(),
	)
	dispatcher := fulfillment.NewDispatcher(coordinator, log, fulfillment.DefaultDispatcherConfig())
	t.Cleanup(dispatcher.Close)

	f.handler = NewConfirmPaymentHandler(f.payments, dispatcher, nil, log)
	return f
}

func confirmKey() candidate.Key {
	return candidate.Key{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    candidate.CategoryDiploma,
	}
}

func seedInitiatedPayment(t *testing.T, f *confirmFixture) *payment.Record {
	t.Helper()
	record, err := payment.NewRecord(uuid.NewString(), confirmKey(), "0712345678", 200)
	require.NoError(t, err)
	record.AttachGatewayReferences("mr-1", "ws_CO_"+uuid.NewString())
	require.NoError(t, f.payments.Create(context.Background(), record))
	return record
}

func seedProfile(t *testing.T, f *confirmFixture) {
	t.Helper()
	key := confirmKey()
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

func TestConfirmPayment_ConfirmsAndDispatches(t *testing.T) {
	f := newConfirmFixture(t)
	seedProfile(t, f)
	record := seedInitiatedPayment(t, f)

	res, err := f.handler.Handle(context.Background(), ConfirmPaymentCommand{
		CheckoutRequestID: record.CheckoutRequestID,
		Succeeded:         true,
	})

	require.NoError(t, err)
	assert.Equal(t, payment.StateConfirmed, res.State)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Dispatched)

	stored, err := f.payments.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsConfirmed())

	assert.Eventually(t, func() bool {
		exists, err := f.results.Exists(context.Background(), confirmKey())
		return err == nil && exists
	}, 5*time.Second, 10*time.Millisecond, "confirmation must drive a persisted result")
}

func TestConfirmPayment_DuplicateDeliveryIsHarmless(t *testing.T) {
	f := newConfirmFixture(t)
	seedProfile(t, f)
	record := seedInitiatedPayment(t, f)

	cmd := ConfirmPaymentCommand{CheckoutRequestID: record.CheckoutRequestID, Succeeded: true}

	first, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, payment.StateConfirmed, second.State)
	assert.False(t, second.Dispatched, "duplicate deliveries must not re-dispatch")
}

func TestConfirmPayment_FailureOutcome(t *testing.T) {
	f := newConfirmFixture(t)
	record := seedInitiatedPayment(t, f)

	res, err := f.handler.Handle(context.Background(), ConfirmPaymentCommand{
		CheckoutRequestID: record.CheckoutRequestID,
		Succeeded:         false,
		FailureReason:     "request cancelled by user",
	})

	require.NoError(t, err)
	assert.Equal(t, payment.StateFailed, res.State)
	assert.False(t, res.Dispatched)

	stored, err := f.payments.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "request cancelled by user", stored.FailureReason)
}

func TestConfirmPayment_ConflictingVerdictKeepsStoredState(t *testing.T) {
	f := newConfirmFixture(t)
	record := seedInitiatedPayment(t, f)

	_, err := f.handler.Handle(context.Background(), ConfirmPaymentCommand{
		CheckoutRequestID: record.CheckoutRequestID,
		Succeeded:         false,
		FailureReason:     "timeout",
	})
	require.NoError(t, err)

	res, err := f.handler.Handle(context.Background(), ConfirmPaymentCommand{
		CheckoutRequestID: record.CheckoutRequestID,
		Succeeded:         true,
	})

	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, payment.StateFailed, res.State, "the first terminal verdict stands")
}

func TestConfirmPayment_UnknownReference(t *testing.T) {
	f := newConfirmFixture(t)

	_, err := f.handler.Handle(context.Background(), ConfirmPaymentCommand{
		CheckoutRequestID: "ws_CO_unknown",
		Succeeded:         true,
	})

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}
