package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/certcode"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY CERTIFICATE QUERY
// Public lookup of a certificate by its code. A typo is caught by the check
// character before any storage access.
// ══════════════════════════════════════════════════════════════════════════════

// VerifyCertificateQuery carries the code as typed by a human.
type VerifyCertificateQuery struct {
	Code string
}

// VerificationDTO is the public proof of a certificate.
type VerificationDTO struct {
	Code              string    `json:"code"`
	LearnerID         string    `json:"learner_id"`
	CourseID          string    `json:"course_id"`
	CourseTitle       string    `json:"course_title"`
	IssuedAt          time.Time `json:"issued_at"`
	IssuedAtFormatted string    `json:"issued_at_formatted"`
}

// VerifyCertificateHandler handles VerifyCertificateQuery.
type VerifyCertificateHandler struct {
	store  progress.Store
	cache  certificate.Cache
	logger *logger.Logger
}

// NewVerifyCertificateHandler creates a new VerifyCertificateHandler. cache
// may be nil.
func NewVerifyCertificateHandler(store progress.Store, cache certificate.Cache, log *logger.Logger) *VerifyCertificateHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &VerifyCertificateHandler{store: store, cache: cache, logger: log.With(logger.Component("verify_certificate"))}
}

// Handle executes the query. ErrMalformedCode for a code that fails the shape
// or checksum test, ErrCertificateNotFound for a well formed unknown code.
func (h *VerifyCertificateHandler) Handle(ctx context.Context, q VerifyCertificateQuery) (*VerificationDTO, error) {
	code, ok := certcode.Validate(q.Code)
	if !ok {
		return nil, shared.ErrMalformedCode
	}

	ctx, span := tracer.Start(ctx, "query.VerifyCertificate", trace.WithAttributes(
		attribute.String("certificate.code", code),
	))
	defer span.End()

	var (
		cert   *certificate.Certificate
		cached bool
	)
	if h.cache != nil {
		if hit, err := h.cache.GetByCode(ctx, code); err == nil && hit != nil {
			cert, cached = hit, true
			span.SetAttributes(attribute.Bool("cache.hit", true))
		}
	}

	var courseTitle string
	err := h.store.ReadOnly(ctx, func(tx progress.Tx) error {
		if cert == nil {
			found, err := tx.Certificates().GetByCode(ctx, code)
			if err != nil {
				return err
			}
			cert = found
		}
		c, err := tx.Courses().GetCourse(ctx, cert.CourseID)
		if err != nil {
			return err
		}
		courseTitle = c.Title
		return nil
	})
	if err != nil {
		if !shared.IsNotFound(err) {
			h.logger.Error("certificate verification failed", logger.CertificateCode(code), logger.Err(err))
		}
		return nil, err
	}

	if h.cache != nil && !cached {
		if err := h.cache.Set(ctx, cert); err != nil {
			h.logger.Warn("failed to cache certificate", logger.CertificateCode(code), logger.Err(err))
		}
	}

	return &VerificationDTO{
		Code:              cert.Code,
		LearnerID:         cert.LearnerID,
		CourseID:          cert.CourseID,
		CourseTitle:       courseTitle,
		IssuedAt:          cert.IssuedAt,
		IssuedAtFormatted: cert.IssuedAt.UTC().Format(CertificateDateLayout),
	}, nil
}
