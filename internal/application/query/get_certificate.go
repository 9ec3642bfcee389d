package query

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CERTIFICATE QUERY
// Returns the learner's certificate for a course, or nil when the enrollment
// has never been completed. A completed enrollment without a certificate is
// repaired on read.
// ══════════════════════════════════════════════════════════════════════════════

// GetCertificateQuery identifies the enrollment whose certificate to read.
type GetCertificateQuery struct {
	LearnerID     string
	CourseID      string
	CorrelationID string
}

// Validate validates the query and returns the normalized identifiers.
func (q GetCertificateQuery) Validate() (shared.LearnerID, string, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return "", "", err
	}
	courseID, err := shared.ParseEntityID("certificate", "GetCertificate", q.CourseID)
	if err != nil {
		return "", "", err
	}
	return learnerID, courseID, nil
}

// CertificateDTO is the display-ready certificate view.
type CertificateDTO struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	LearnerID         string    `json:"learner_id"`
	CourseID          string    `json:"course_id"`
	CourseTitle       string    `json:"course_title"`
	IssuedAt          time.Time `json:"issued_at"`
	IssuedAtFormatted string    `json:"issued_at_formatted"`
}

// CertificateDateLayout is the layout of IssuedAtFormatted.
const CertificateDateLayout = "January 2, 2006"

// NewCertificateDTO converts a certificate.
func NewCertificateDTO(c *certificate.Certificate, courseTitle string) *CertificateDTO {
	return &CertificateDTO{
		ID:                c.ID,
		Code:              c.Code,
		LearnerID:         c.LearnerID,
		CourseID:          c.CourseID,
		CourseTitle:       courseTitle,
		IssuedAt:          c.IssuedAt,
		IssuedAtFormatted: c.IssuedAt.UTC().Format(CertificateDateLayout),
	}
}

// GetCertificateHandler handles GetCertificateQuery.
type GetCertificateHandler struct {
	store          progress.Store
	issuer         *certificate.Issuer
	eventPublisher shared.EventPublisher
	logger         *logger.Logger
}

// NewGetCertificateHandler creates a new GetCertificateHandler.
func NewGetCertificateHandler(
	store progress.Store,
	issuer *certificate.Issuer,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *GetCertificateHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetCertificateHandler{
		store:          store,
		issuer:         issuer,
		eventPublisher: eventPublisher,
		logger:         log.With(logger.Component("get_certificate")),
	}
}

// Handle executes the query. It returns (nil, nil) when the enrollment has no
// certificate and is not completed. Certificates survive a reopened
// enrollment, so a learner who unmarked an item still gets theirs back.
func (h *GetCertificateHandler) Handle(ctx context.Context, q GetCertificateQuery) (*CertificateDTO, error) {
	learnerID, courseID, err := q.Validate()
	if err != nil {
		return nil, fmt.Errorf("get_certificate: validation failed: %w", err)
	}

	ctx, span := tracer.Start(ctx, "query.GetCertificate", trace.WithAttributes(
		attribute.String("learner.id", learnerID.String()),
		attribute.String("course.id", courseID),
	))
	defer span.End()

	var (
		cert        *certificate.Certificate
		completed   bool
		courseTitle string
	)
	err = h.store.ReadOnly(ctx, func(tx progress.Tx) error {
		c, err := tx.Courses().GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		courseTitle = c.Title

		e, err := tx.Enrollments().Get(ctx, learnerID.String(), courseID)
		if err != nil {
			return notEnrolled(err)
		}
		completed = e.IsCompleted()

		cert, err = tx.Certificates().GetByEnrollment(ctx, e.ID)
		if shared.IsNotFound(err) {
			cert = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, h.fail(err, learnerID, courseID)
	}

	if cert == nil && completed {
		cert, err = h.heal(ctx, learnerID, courseID, q.CorrelationID)
		if err != nil {
			return nil, h.fail(err, learnerID, courseID)
		}
	}

	span.SetAttributes(attribute.String("certificate.state", string(certificate.StateOf(cert))))
	if cert == nil {
		return nil, nil
	}
	return NewCertificateDTO(cert, courseTitle), nil
}

// heal issues the missing certificate of a completed enrollment under the
// enrollment lock. It returns nil if the enrollment was reopened meanwhile.
func (h *GetCertificateHandler) heal(ctx context.Context, learnerID shared.LearnerID, courseID, correlationID string) (*certificate.Certificate, error) {
	var (
		cert   *certificate.Certificate
		issued bool
	)
	err := h.store.WithinTx(ctx, func(tx progress.Tx) error {
		e, err := tx.Enrollments().GetForUpdate(ctx, learnerID.String(), courseID)
		if err != nil {
			return notEnrolled(err)
		}
		if !e.IsCompleted() {
			existing, err := tx.Certificates().GetByEnrollment(ctx, e.ID)
			if shared.IsNotFound(err) {
				return nil
			}
			cert = existing
			return err
		}
		cert, issued, err = h.issuer.Issue(ctx, tx.Certificates(), e.Claim())
		return err
	})
	if err != nil {
		return nil, err
	}

	if issued {
		h.logger.Warn("issued missing certificate on read",
			logger.LearnerID(learnerID.String()),
			logger.CourseID(courseID),
			logger.CertificateCode(cert.Code),
		)
		ev := shared.NewCertificateIssuedEvent(cert.EnrollmentID, cert.ID, cert.Code, cert.LearnerID, cert.CourseID, cert.IssuedAt, true)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		if err := h.eventPublisher.Publish(ev); err != nil {
			h.logger.Warn("failed to publish event", logger.Err(err))
		}
	}
	return cert, nil
}

func (h *GetCertificateHandler) fail(err error, learnerID shared.LearnerID, courseID string) error {
	fields := []logger.Field{logger.LearnerID(learnerID.String()), logger.CourseID(courseID), logger.Err(err)}
	switch {
	case shared.IsNotFound(err), shared.IsNotEnrolled(err):
	case shared.IsInvalidState(err):
		h.logger.Error("invariant breach during certificate read", fields...)
	default:
		h.logger.Error("certificate read failed", fields...)
	}
	return err
}

// notEnrolled turns a missing enrollment into NotEnrolled.
func notEnrolled(err error) error {
	if shared.IsNotFound(err) {
		return shared.WrapError("progress", "FindEnrollment", shared.ErrNotEnrolled,
			"learner is not enrolled in the course", err)
	}
	return err
}
