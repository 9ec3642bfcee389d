// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
	"github.com/alem-hub/alem-academy/pkg/retry"
)

var tracer = otel.Tracer("github.com/alem-hub/alem-academy/internal/application/command")

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE COMPLETION COMMAND
// Marks or unmarks a content item for a learner. The record write, the
// enrollment recompute and a certificate issued on the completion edge commit
// in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleCompletionCommand contains the data to set an item's completion flag.
type ToggleCompletionCommand struct {
	// LearnerID is the authenticated learner.
	LearnerID string

	// ItemID is the content item being toggled.
	ItemID string

	// Completed is the desired flag value.
	Completed bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command and returns the normalized identifiers.
func (c ToggleCompletionCommand) Validate() (shared.LearnerID, string, error) {
	learnerID, err := shared.NewLearnerID(c.LearnerID)
	if err != nil {
		return "", "", err
	}
	itemID, err := shared.ParseEntityID("progress", "ToggleCompletion", c.ItemID)
	if err != nil {
		return "", "", err
	}
	return learnerID, itemID, nil
}

// ToggleCompletionResult is the authoritative state after a toggle. Clients
// that update optimistically reconcile against it.
type ToggleCompletionResult struct {
	Enrollment *progress.Enrollment
	Record     *progress.CompletionRecord

	// Changed is false when the request matched the stored flag.
	Changed bool

	// CertificateIssued is true only for the toggle that created the certificate.
	CertificateIssued bool

	// Certificate is set whenever this toggle completed the enrollment.
	Certificate *certificate.Certificate
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ToggleCompletionHandler handles the ToggleCompletionCommand.
type ToggleCompletionHandler struct {
	store          progress.Store
	tracker        *progress.Tracker
	cache          progress.SnapshotCache
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	logger         *logger.Logger
}

// NewToggleCompletionHandler creates a new ToggleCompletionHandler. cache,
// eventPublisher and log may be nil.
func NewToggleCompletionHandler(
	store progress.Store,
	tracker *progress.Tracker,
	cache progress.SnapshotCache,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *ToggleCompletionHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("toggle_completion"))

	h := &ToggleCompletionHandler{
		store:          store,
		tracker:        tracker,
		cache:          cache,
		eventPublisher: eventPublisher,
		logger:         log,
	}
	h.retrier = retry.ConflictRetrier(shared.IsConflict, func(attempt int, err error, delay time.Duration) {
		log.Warn("toggle lost a storage race, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
	return h
}

// Handle executes the toggle. A Conflict from the store is retried once and
// then surfaced to the caller.
func (h *ToggleCompletionHandler) Handle(ctx context.Context, cmd ToggleCompletionCommand) (*ToggleCompletionResult, error) {
	learnerID, itemID, err := cmd.Validate()
	if err != nil {
		return nil, fmt.Errorf("toggle_completion: validation failed: %w", err)
	}

	ctx, span := tracer.Start(ctx, "command.ToggleCompletion", trace.WithAttributes(
		attribute.String("learner.id", learnerID.String()),
		attribute.String("item.id", itemID),
		attribute.Bool("completed", cmd.Completed),
	))
	defer span.End()

	start := time.Now()
	var outcome *progress.ToggleOutcome
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.store.WithinTx(ctx, func(tx progress.Tx) error {
			var txErr error
			outcome, txErr = h.tracker.SetCompletion(ctx, tx, learnerID, itemID, cmd.Completed)
			return txErr
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logFailure(err, learnerID, itemID)
		return nil, err
	}

	result := &ToggleCompletionResult{
		Enrollment:        outcome.Enrollment,
		Record:            outcome.Record,
		Changed:           outcome.Changed,
		CertificateIssued: outcome.CertificateIssued(),
	}
	if outcome.Recomputation != nil {
		result.Certificate = outcome.Recomputation.Certificate
	}

	span.SetAttributes(
		attribute.Bool("changed", result.Changed),
		attribute.Int("progress.percent", result.Enrollment.ProgressPercent.Int()),
		attribute.Bool("certificate.issued", result.CertificateIssued),
	)

	if result.Changed {
		h.refreshCache(ctx, result.Enrollment)
		h.publish(outcome, cmd.CorrelationID)
	}

	h.logger.Debug("completion toggled",
		logger.LearnerID(learnerID.String()),
		logger.ItemID(itemID),
		logger.Bool("completed", cmd.Completed),
		logger.Bool("changed", result.Changed),
		logger.Percent(result.Enrollment.ProgressPercent.Int()),
		logger.Latency(time.Since(start)),
	)

	return result, nil
}

func (h *ToggleCompletionHandler) logFailure(err error, learnerID shared.LearnerID, itemID string) {
	fields := []logger.Field{logger.LearnerID(learnerID.String()), logger.ItemID(itemID), logger.Err(err)}
	switch {
	case shared.IsNotFound(err), shared.IsNotEnrolled(err):
		h.logger.Debug("toggle rejected", fields...)
	case shared.IsConflict(err):
		h.logger.Warn("toggle conflict after retry", fields...)
	case shared.IsInvalidState(err):
		h.logger.Error("invariant breach during toggle", fields...)
	default:
		h.logger.Error("toggle failed", fields...)
	}
}

// refreshCache writes the committed snapshot through to the cache. The cache
// keeps the higher version, so a reader that loaded the enrollment before this
// commit cannot put its older snapshot back.
func (h *ToggleCompletionHandler) refreshCache(ctx context.Context, e *progress.Enrollment) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, progress.SnapshotOf(e)); err != nil {
		h.logger.Warn("failed to refresh progress cache",
			logger.EnrollmentID(e.ID),
			logger.Int64("version", e.Version),
			logger.Err(err),
		)
	}
}

// publish emits the committed outcome. Publishing failures are logged only:
// the state change is already durable.
func (h *ToggleCompletionHandler) publish(outcome *progress.ToggleOutcome, correlationID string) {
	e := outcome.Enrollment
	events := []shared.Event{}

	changed := shared.NewItemCompletionChangedEvent(e.ID, e.LearnerID, e.CourseID,
		outcome.Record.ItemID, outcome.Record.Completed, e.ProgressPercent.Int())
	changed.BaseEvent = changed.BaseEvent.WithCorrelationID(correlationID)
	events = append(events, changed)

	if r := outcome.Recomputation; r != nil {
		switch r.Transition {
		case progress.TransitionCompleted:
			ev := shared.NewEnrollmentCompletedEvent(e.ID, e.LearnerID, e.CourseID)
			ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
			events = append(events, ev)
		case progress.TransitionReopened:
			ev := shared.NewEnrollmentReopenedEvent(e.ID, e.LearnerID, e.CourseID, e.ProgressPercent.Int())
			ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
			events = append(events, ev)
		}
		if r.CertificateIssued && r.Certificate != nil {
			c := r.Certificate
			ev := shared.NewCertificateIssuedEvent(e.ID, c.ID, c.Code, c.LearnerID, c.CourseID, c.IssuedAt, false)
			ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
			events = append(events, ev)
		}
	}

	for _, ev := range events {
		if err := h.eventPublisher.Publish(ev); err != nil {
			h.logger.Warn("failed to publish event",
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err),
			)
		}
	}
}
