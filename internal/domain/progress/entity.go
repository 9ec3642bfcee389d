// Package progress contains the completion tracker and the progress aggregator.
// Completion records are the source of truth; enrollment percent and status are
// always derived from them.
package progress

import (
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the enrollment status.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// StatusFor derives the status from a percent.
func StatusFor(p shared.Percent) Status {
	if p.IsComplete() {
		return StatusCompleted
	}
	return StatusInProgress
}

// Transition is the status edge produced by a recompute.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionCompleted
	TransitionReopened
)

// String returns a log friendly name.
func (t Transition) String() string {
	switch t {
	case TransitionCompleted:
		return "completed"
	case TransitionReopened:
		return "reopened"
	default:
		return "none"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRecord is the single row per (learner, item).
type CompletionRecord struct {
	ID        string
	LearnerID string
	ItemID    string
	CourseID  string
	Completed bool
	UpdatedAt time.Time
}

// Enrollment joins a learner to a course and carries derived progress.
type Enrollment struct {
	ID              string
	LearnerID       string
	CourseID        string
	ProgressPercent shared.Percent
	Status          Status
	EnrolledAt      time.Time
	UpdatedAt       time.Time

	// Version starts at 1 and increments on every change Apply makes.
	Version int64
}

// NewEnrollment creates an enrollment at 0%.
func NewEnrollment(id string, learnerID shared.LearnerID, courseID string, now time.Time) *Enrollment {
	return &Enrollment{
		ID:              id,
		LearnerID:       learnerID.String(),
		CourseID:        courseID,
		ProgressPercent: shared.MinPercent,
		Status:          StatusInProgress,
		EnrolledAt:      now,
		UpdatedAt:       now,
		Version:         1,
	}
}

// IsCompleted reports whether status is COMPLETED.
func (e *Enrollment) IsCompleted() bool {
	return e.Status == StatusCompleted
}

// Claim returns the view of the enrollment the certificate issuer works with.
func (e *Enrollment) Claim() certificate.Claim {
	return certificate.Claim{
		EnrollmentID: e.ID,
		LearnerID:    e.LearnerID,
		CourseID:     e.CourseID,
		Completed:    e.IsCompleted(),
	}
}

// Apply sets percent and status from the completed count against the item
// count total. A zero total never completes. It reports the status edge and
// whether anything changed; UpdatedAt and Version move only on change.
func (e *Enrollment) Apply(completed, total int, now time.Time) (Transition, bool) {
	if total <= 0 {
		completed = 0
	}
	percent := shared.PercentOf(completed, total)
	status := StatusFor(percent)

	if percent == e.ProgressPercent && status == e.Status {
		return TransitionNone, false
	}

	transition := TransitionNone
	switch {
	case e.Status != StatusCompleted && status == StatusCompleted:
		transition = TransitionCompleted
	case e.Status == StatusCompleted && status != StatusCompleted:
		transition = TransitionReopened
	}

	e.ProgressPercent = percent
	e.Status = status
	e.UpdatedAt = now
	e.Version++
	return transition, true
}
