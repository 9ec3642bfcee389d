// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

var tracer = otel.Tracer("github.com/alem-hub/alem-academy/internal/application/query")

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Returns the derived progress of a learner in a course. Served from the
// snapshot cache when possible; the store stays authoritative.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery identifies the enrollment to read.
type GetProgressQuery struct {
	LearnerID string
	CourseID  string
}

// Validate validates the query and returns the normalized identifiers.
func (q GetProgressQuery) Validate() (shared.LearnerID, string, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return "", "", err
	}
	courseID, err := shared.ParseEntityID("progress", "GetProgress", q.CourseID)
	if err != nil {
		return "", "", err
	}
	return learnerID, courseID, nil
}

// ProgressDTO is the progress view of an enrollment.
type ProgressDTO struct {
	EnrollmentID string `json:"enrollment_id"`
	CourseID     string `json:"course_id"`

	// ProgressPercent is 100 only when every item is complete. An
	// incomplete course that would round up to 100 reports 99.
	ProgressPercent int             `json:"progress_percent"`
	Status          progress.Status `json:"status"`
	IsCompleted     bool            `json:"is_completed"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewProgressDTO converts a snapshot.
func NewProgressDTO(s progress.Snapshot) *ProgressDTO {
	return &ProgressDTO{
		EnrollmentID:    s.EnrollmentID,
		CourseID:        s.CourseID,
		ProgressPercent: s.ProgressPercent,
		Status:          s.Status,
		IsCompleted:     s.Status == progress.StatusCompleted,
		UpdatedAt:       s.UpdatedAt,
	}
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	store  progress.Store
	cache  progress.SnapshotCache
	logger *logger.Logger
}

// NewGetProgressHandler creates a new GetProgressHandler. cache may be nil.
func NewGetProgressHandler(store progress.Store, cache progress.SnapshotCache, log *logger.Logger) *GetProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressHandler{
		store:  store,
		cache:  cache,
		logger: log.With(logger.Component("get_progress")),
	}
}

// Handle executes the query. NotEnrolled when the learner never joined.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	learnerID, courseID, err := q.Validate()
	if err != nil {
		return nil, fmt.Errorf("get_progress: validation failed: %w", err)
	}

	ctx, span := tracer.Start(ctx, "query.GetProgress", trace.WithAttributes(
		attribute.String("learner.id", learnerID.String()),
		attribute.String("course.id", courseID),
	))
	defer span.End()

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, learnerID.String(), courseID)
		if err == nil && cached != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return NewProgressDTO(*cached), nil
		}
	}

	var snapshot progress.Snapshot
	err = h.store.ReadOnly(ctx, func(tx progress.Tx) error {
		e, err := tx.Enrollments().Get(ctx, learnerID.String(), courseID)
		if err != nil {
			return err
		}
		snapshot = progress.SnapshotOf(e)
		return nil
	})
	if shared.IsNotFound(err) {
		return nil, shared.WrapError("progress", "GetProgress", shared.ErrNotEnrolled,
			"learner is not enrolled in the course", err)
	}
	if err != nil {
		h.logger.Error("failed to read progress",
			logger.LearnerID(learnerID.String()),
			logger.CourseID(courseID),
			logger.Err(err),
		)
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, snapshot); err != nil {
			h.logger.Warn("failed to cache progress", logger.EnrollmentID(snapshot.EnrollmentID), logger.Err(err))
		}
	}

	return NewProgressDTO(snapshot), nil
}
