package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

func TestBus_DeliversToSubscribedHandlers(t *testing.T) {
	bus := NewBus(DefaultConfig())
	defer bus.Close()

	var delivered atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventPaymentConfirmed, func(ctx context.Context, e shared.Event) error {
		delivered.Add(1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventPaymentConfirmed, func(ctx context.Context, e shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	event := shared.PaymentConfirmedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPaymentConfirmed, "payment-1"),
		Reference: "ws_CO_1",
	}
	require.NoError(t, bus.Publish(event))

	assert.Eventually(t, func() bool {
		return delivered.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBus_UnsubscribedTypeIsDropped(t *testing.T) {
	bus := NewBus(DefaultConfig())
	defer bus.Close()

	var delivered atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventResultReady, func(ctx context.Context, e shared.Event) error {
		delivered.Add(1)
		return nil
	}))

	event := shared.PaymentFailedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPaymentFailed, "payment-1"),
	}
	require.NoError(t, bus.Publish(event))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, delivered.Load())
}

func TestBus_HandlerErrorDoesNotReachPublisher(t *testing.T) {
	bus := NewBus(DefaultConfig())
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventResultReady, func(ctx context.Context, e shared.Event) error {
		return errors.New("handler exploded")
	}))

	event := shared.ResultReadyEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventResultReady, "key-1"),
	}
	assert.NoError(t, bus.Publish(event))
}

func TestBus_CloseWaitsForInFlightHandlers(t *testing.T) {
	bus := NewBus(DefaultConfig())

	var finished atomic.Bool
	require.NoError(t, bus.Subscribe(shared.EventResultReady, func(ctx context.Context, e shared.Event) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	event := shared.ResultReadyEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventResultReady, "key-1"),
	}
	require.NoError(t, bus.Publish(event))

	require.NoError(t, bus.Close())
	assert.True(t, finished.Load(), "close must wait for running handlers")

	assert.ErrorIs(t, bus.Publish(event), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventResultReady, func(ctx context.Context, e shared.Event) error {
		return nil
	}), ErrEventBusClosed)
}

func TestBus_RejectsNilHandler(t *testing.T) {
	bus := NewBus(DefaultConfig())
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventResultReady, nil), ErrNilHandler)
}
