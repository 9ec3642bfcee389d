package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL COMMAND
// Entry point for the enrollment-creation collaborator. Idempotent.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand enrolls a learner in a course.
type EnrollCommand struct {
	LearnerID     string
	CourseID      string
	CorrelationID string
}

// Validate validates the command and returns the normalized identifiers.
func (c EnrollCommand) Validate() (shared.LearnerID, string, error) {
	learnerID, err := shared.NewLearnerID(c.LearnerID)
	if err != nil {
		return "", "", err
	}
	courseID, err := shared.ParseEntityID("progress", "Enroll", c.CourseID)
	if err != nil {
		return "", "", err
	}
	return learnerID, courseID, nil
}

// EnrollResult contains the enrollment and whether this call created it.
type EnrollResult struct {
	Enrollment *progress.Enrollment
	Created    bool
}

// EnrollHandler handles the EnrollCommand.
type EnrollHandler struct {
	store          progress.Store
	eventPublisher shared.EventPublisher
	newID          func() string
	now            func() time.Time
	logger         *logger.Logger
}

// NewEnrollHandler creates a new EnrollHandler.
func NewEnrollHandler(
	store progress.Store,
	eventPublisher shared.EventPublisher,
	newID func() string,
	log *logger.Logger,
) *EnrollHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EnrollHandler{
		store:          store,
		eventPublisher: eventPublisher,
		newID:          newID,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         log.With(logger.Component("enroll")),
	}
}

// Handle creates the enrollment, or returns the existing one. A fresh
// enrollment starts at 0% IN_PROGRESS; an empty course stays at 0% forever.
func (h *EnrollHandler) Handle(ctx context.Context, cmd EnrollCommand) (*EnrollResult, error) {
	learnerID, courseID, err := cmd.Validate()
	if err != nil {
		return nil, fmt.Errorf("enroll: validation failed: %w", err)
	}

	ctx, span := tracer.Start(ctx, "command.Enroll", trace.WithAttributes(
		attribute.String("learner.id", learnerID.String()),
		attribute.String("course.id", courseID),
	))
	defer span.End()

	result := &EnrollResult{}
	err = h.store.WithinTx(ctx, func(tx progress.Tx) error {
		if _, err := tx.Courses().GetCourse(ctx, courseID); err != nil {
			return err
		}
		e := progress.NewEnrollment(h.newID(), learnerID, courseID, h.now().Truncate(time.Microsecond))
		stored, created, err := tx.Enrollments().CreateIfAbsent(ctx, e)
		if err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		result.Enrollment = stored
		result.Created = created
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !shared.IsNotFound(err) {
			h.logger.Error("enroll failed",
				logger.LearnerID(learnerID.String()),
				logger.CourseID(courseID),
				logger.Err(err),
			)
		}
		return nil, err
	}

	if result.Created {
		ev := shared.NewEnrollmentCreatedEvent(result.Enrollment.ID, learnerID.String(), courseID)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		if err := h.eventPublisher.Publish(ev); err != nil {
			h.logger.Warn("failed to publish event", logger.Err(err))
		}
	}

	h.logger.Debug("enrollment resolved",
		logger.EnrollmentID(result.Enrollment.ID),
		logger.LearnerID(learnerID.String()),
		logger.CourseID(courseID),
		logger.Bool("created", result.Created),
	)
	return result, nil
}
