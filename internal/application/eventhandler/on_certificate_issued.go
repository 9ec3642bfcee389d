// Package eventhandler contains subscribers for committed domain events.
package eventhandler

import (
	"context"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CERTIFICATE ISSUED HANDLER
// Warms the verification cache with a freshly issued certificate. Certificates
// are immutable, so the entry can never go stale.
// ═══════════════════════════════════════════════════════════════════════════

// OnCertificateIssuedHandler writes issued certificates into the cache.
type OnCertificateIssuedHandler struct {
	cache   certificate.Cache
	logger  *logger.Logger
	timeout time.Duration
}

// NewOnCertificateIssuedHandler creates the handler.
func NewOnCertificateIssuedHandler(cache certificate.Cache, log *logger.Logger) *OnCertificateIssuedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnCertificateIssuedHandler{
		cache:   cache,
		logger:  log.With(logger.String("handler", "on_certificate_issued")),
		timeout: 2 * time.Second,
	}
}

// Handle implements shared.EventHandler.
func (h *OnCertificateIssuedHandler) Handle(event shared.Event) error {
	issued, ok := event.(shared.CertificateIssuedEvent)
	if !ok {
		h.logger.Warn("received non-CertificateIssuedEvent",
			logger.String("event_type", string(event.EventType())),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	return h.cache.Set(ctx, &certificate.Certificate{
		ID:           issued.CertificateID,
		EnrollmentID: issued.AggregateID(),
		LearnerID:    issued.LearnerID,
		CourseID:     issued.CourseID,
		Code:         issued.Code,
		IssuedAt:     issued.IssuedAt,
	})
}

// Register subscribes the handler on bus.
func (h *OnCertificateIssuedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventCertificateIssued, h.Handle)
}
