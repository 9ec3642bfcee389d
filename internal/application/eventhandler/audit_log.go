package eventhandler

import (
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// AuditLogHandler writes one structured line per committed domain event.
type AuditLogHandler struct {
	logger *logger.Logger
}

// NewAuditLogHandler creates the handler.
func NewAuditLogHandler(log *logger.Logger) *AuditLogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditLogHandler{logger: log.With(logger.String("handler", "audit"))}
}

// Handle implements shared.EventHandler.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	for k, v := range event.Payload() {
		fields = append(fields, logger.Any(k, v))
	}

	switch event.EventType() {
	case shared.EventCertificateIssued, shared.EventEnrollmentCompleted:
		h.logger.Info("domain event", fields...)
	default:
		h.logger.Debug("domain event", fields...)
	}
	return nil
}

// Register subscribes the handler to every event on bus.
func (h *AuditLogHandler) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}
