package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are published only after the transaction that
// produced them has committed.
const (
	// Progress events
	EventItemCompletionChanged EventType = "progress.item_completion_changed"
	EventEnrollmentCreated     EventType = "progress.enrollment_created"
	EventEnrollmentCompleted   EventType = "progress.enrollment_completed"
	EventEnrollmentReopened    EventType = "progress.enrollment_reopened"

	// Certificate events
	EventCertificateIssued EventType = "certificate.issued"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ItemCompletionChangedEvent is emitted when a learner's completion flag on a
// content item actually changes. Repeated toggles with the same value emit nothing.
type ItemCompletionChangedEvent struct {
	BaseEvent
	LearnerID       string `json:"learner_id"`
	CourseID        string `json:"course_id"`
	ItemID          string `json:"item_id"`
	Completed       bool   `json:"completed"`
	ProgressPercent int    `json:"progress_percent"`
}

// Payload implements Event interface.
func (e ItemCompletionChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":       e.LearnerID,
		"course_id":        e.CourseID,
		"item_id":          e.ItemID,
		"completed":        e.Completed,
		"progress_percent": e.ProgressPercent,
	}
}

// NewItemCompletionChangedEvent creates a new ItemCompletionChangedEvent.
func NewItemCompletionChangedEvent(enrollmentID, learnerID, courseID, itemID string, completed bool, percent int) ItemCompletionChangedEvent {
	return ItemCompletionChangedEvent{
		BaseEvent:       NewBaseEvent(EventItemCompletionChanged, enrollmentID),
		LearnerID:       learnerID,
		CourseID:        courseID,
		ItemID:          itemID,
		Completed:       completed,
		ProgressPercent: percent,
	}
}

// EnrollmentCreatedEvent is emitted when a learner joins a course.
type EnrollmentCreatedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
}

// Payload implements Event interface.
func (e EnrollmentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"course_id":  e.CourseID,
	}
}

// NewEnrollmentCreatedEvent creates a new EnrollmentCreatedEvent.
func NewEnrollmentCreatedEvent(enrollmentID, learnerID, courseID string) EnrollmentCreatedEvent {
	return EnrollmentCreatedEvent{
		BaseEvent: NewBaseEvent(EventEnrollmentCreated, enrollmentID),
		LearnerID: learnerID,
		CourseID:  courseID,
	}
}

// EnrollmentStatusEvent is emitted on both status edges. Type tells which one.
type EnrollmentStatusEvent struct {
	BaseEvent
	LearnerID       string `json:"learner_id"`
	CourseID        string `json:"course_id"`
	ProgressPercent int    `json:"progress_percent"`
}

// Payload implements Event interface.
func (e EnrollmentStatusEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":       e.LearnerID,
		"course_id":        e.CourseID,
		"progress_percent": e.ProgressPercent,
	}
}

// NewEnrollmentCompletedEvent creates the IN_PROGRESS -> COMPLETED edge event.
func NewEnrollmentCompletedEvent(enrollmentID, learnerID, courseID string) EnrollmentStatusEvent {
	return EnrollmentStatusEvent{
		BaseEvent:       NewBaseEvent(EventEnrollmentCompleted, enrollmentID),
		LearnerID:       learnerID,
		CourseID:        courseID,
		ProgressPercent: 100,
	}
}

// NewEnrollmentReopenedEvent creates the COMPLETED -> IN_PROGRESS edge event.
func NewEnrollmentReopenedEvent(enrollmentID, learnerID, courseID string, percent int) EnrollmentStatusEvent {
	return EnrollmentStatusEvent{
		BaseEvent:       NewBaseEvent(EventEnrollmentReopened, enrollmentID),
		LearnerID:       learnerID,
		CourseID:        courseID,
		ProgressPercent: percent,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Certificate Events
// ═══════════════════════════════════════════════════════════════════════════

// CertificateIssuedEvent is emitted exactly once per enrollment.
type CertificateIssuedEvent struct {
	BaseEvent
	CertificateID string    `json:"certificate_id"`
	Code          string    `json:"code"`
	LearnerID     string    `json:"learner_id"`
	CourseID      string    `json:"course_id"`
	IssuedAt      time.Time `json:"issued_at"`
	// SelfHealed is true when issuance happened on a certificate read rather
	// than on the completion edge.
	SelfHealed bool `json:"self_healed"`
}

// Payload implements Event interface.
func (e CertificateIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"certificate_id": e.CertificateID,
		"code":           e.Code,
		"learner_id":     e.LearnerID,
		"course_id":      e.CourseID,
		"issued_at":      e.IssuedAt.Format(time.RFC3339),
		"self_healed":    e.SelfHealed,
	}
}

// NewCertificateIssuedEvent creates a new CertificateIssuedEvent.
func NewCertificateIssuedEvent(enrollmentID, certificateID, code, learnerID, courseID string, issuedAt time.Time, selfHealed bool) CertificateIssuedEvent {
	return CertificateIssuedEvent{
		BaseEvent:     NewBaseEvent(EventCertificateIssued, enrollmentID),
		CertificateID: certificateID,
		Code:          code,
		LearnerID:     learnerID,
		CourseID:      courseID,
		IssuedAt:      issuedAt,
		SelfHealed:    selfHealed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
