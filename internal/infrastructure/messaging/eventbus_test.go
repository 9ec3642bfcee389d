package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventCertificateIssued, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewEnrollmentCompletedEvent("e1", "l1", "c1")))
	require.NoError(t, bus.Publish(shared.NewCertificateIssuedEvent("e1", "cert1", "CERT-0000-0000-0000-0", "l1", "c1", time.Now().UTC(), false)))

	assert.Equal(t, []shared.EventType{shared.EventCertificateIssued}, typed)
	assert.Equal(t, []shared.EventType{shared.EventEnrollmentCompleted, shared.EventCertificateIssued}, all)
	assert.Equal(t, int64(1), bus.Metrics().Published(shared.EventCertificateIssued))
}

func TestInMemoryEventBus_HandlerFailureDoesNotReachPublisher(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("kaboom") }))

	err := bus.Publish(shared.NewEnrollmentCreatedEvent("e1", "l1", "c1"))
	assert.NoError(t, err)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, int64(2), snap.HandlerFailures)
	assert.InDelta(t, 0.0, snap.HandlerSuccessRate, 0.0001)
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 4})

	var calls atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventItemCompletionChanged, func(shared.Event) error {
		calls.Add(1)
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(shared.NewItemCompletionChangedEvent("e1", "l1", "c1", "i1", true, 50))
		}()
	}
	wg.Wait()

	require.NoError(t, bus.Close())
	assert.Equal(t, int64(50), calls.Load())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewEnrollmentCreatedEvent("e1", "l1", "c1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)

	select {
	case <-bus.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestInMemoryEventBus_NilArguments(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventCertificateIssued, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}
