// Package messaging carries committed domain events from the command handlers
// to their subscribers (cache warm-up, audit log).
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	ErrNilHandler = errors.New("handler cannot be nil")
	ErrNilEvent   = errors.New("event cannot be nil")
)

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of the
	// publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize caps concurrent handlers in async mode.
	WorkerPoolSize int

	Logger        *logger.Logger
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns an async bus with ten workers and metrics.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// InMemoryEventBus is an in-process shared.EventBus.
// Publish never fails because of a handler: handler errors and panics are
// logged and counted, never returned to the publisher.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool
	done     chan struct{}

	async    bool
	slots    chan struct{}
	inflight sync.WaitGroup

	log     *logger.Logger
	metrics *EventBusMetrics
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// NewInMemoryEventBus creates a bus.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}

	b := &InMemoryEventBus{
		byType: make(map[shared.EventType][]shared.EventHandler),
		done:   make(chan struct{}),
		async:  cfg.AsyncMode,
		slots:  make(chan struct{}, cfg.WorkerPoolSize),
		log:    cfg.Logger.With(logger.Component("eventbus")),
	}
	if cfg.EnableMetrics {
		b.metrics = NewEventBusMetrics()
	}
	return b
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *InMemoryEventBus) subscribe(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers event to the handlers of its type, then to wildcard
// handlers.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	targets := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	targets = append(targets, typed...)
	targets = append(targets, b.wildcard...)
	// Registered under the read lock so Close cannot return before these run.
	if b.async {
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.recordPublish(event.EventType())
	}

	for _, h := range targets {
		if b.async {
			go func() {
				defer b.inflight.Done()
				b.slots <- struct{}{}
				defer func() { <-b.slots }()
				b.deliver(event, h)
			}()
			continue
		}
		b.deliver(event, h)
	}
	return nil
}

func (b *InMemoryEventBus) deliver(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := invoke(event, h)
	if b.metrics != nil {
		b.metrics.recordExecution(time.Since(start), err == nil)
	}
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Bool("async", b.async),
			logger.Err(err),
		)
	}
}

func invoke(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close stops accepting events and waits for in-flight handlers. It is
// idempotent.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.inflight.Wait()
	b.log.Info("event bus closed")
	return nil
}

// Done is closed once Close has been called.
func (b *InMemoryEventBus) Done() <-chan struct{} {
	return b.done
}

// Metrics returns the bus counters, or nil when disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// EventBusMetrics counts publishes per event type and handler outcomes.
type EventBusMetrics struct {
	mu        sync.Mutex
	published map[shared.EventType]int64

	executions atomic.Int64
	failures   atomic.Int64
	busyNanos  atomic.Int64
}

// NewEventBusMetrics creates empty counters.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{published: make(map[shared.EventType]int64)}
}

func (m *EventBusMetrics) recordPublish(t shared.EventType) {
	m.mu.Lock()
	m.published[t]++
	m.mu.Unlock()
}

func (m *EventBusMetrics) recordExecution(d time.Duration, ok bool) {
	m.executions.Add(1)
	m.busyNanos.Add(int64(d))
	if !ok {
		m.failures.Add(1)
	}
}

// Published returns how many events of the given type were published.
func (m *EventBusMetrics) Published(t shared.EventType) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[t]
}

// EventBusMetricsSnapshot is a point-in-time copy of EventBusMetrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerFailures        int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
}

// Snapshot copies the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	s := EventBusMetricsSnapshot{
		TotalHandlerExecs:  m.executions.Load(),
		HandlerFailures:    m.failures.Load(),
		HandlerSuccessRate: 1,
	}
	m.mu.Lock()
	for _, n := range m.published {
		s.TotalPublished += n
	}
	m.mu.Unlock()

	if s.TotalHandlerExecs > 0 {
		s.HandlerSuccessRate = float64(s.TotalHandlerExecs-s.HandlerFailures) / float64(s.TotalHandlerExecs)
		s.AverageHandlerDuration = time.Duration(m.busyNanos.Load() / s.TotalHandlerExecs)
	}
	return s
}
