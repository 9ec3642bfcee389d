package progress

import (
	"context"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository stores enrollments.
type EnrollmentRepository interface {
	// Get returns the enrollment of a learner in a course.
	// Returns ErrEnrollmentNotFound if the learner never joined.
	Get(ctx context.Context, learnerID, courseID string) (*Enrollment, error)

	// GetForUpdate is Get plus an exclusive lock held until the transaction
	// ends. All writes for one (learner, course) pair go through this lock.
	GetForUpdate(ctx context.Context, learnerID, courseID string) (*Enrollment, error)

	// CreateIfAbsent stores e unless the pair is already enrolled. It returns
	// the stored enrollment and whether e was inserted.
	CreateIfAbsent(ctx context.Context, e *Enrollment) (*Enrollment, bool, error)

	// Update persists percent, status and updated_at.
	Update(ctx context.Context, e *Enrollment) error
}

// CompletionRepository stores completion records.
type CompletionRepository interface {
	// Get returns the record of a learner for an item.
	// Returns an error matching shared.ErrNotFound if no record exists.
	Get(ctx context.Context, learnerID, itemID string) (*CompletionRecord, error)

	// Upsert writes the record, keyed by (learner, item).
	Upsert(ctx context.Context, r *CompletionRecord) error

	// CountCompleted counts items of the course the learner has completed.
	CountCompleted(ctx context.Context, learnerID, courseID string) (int, error)

	// CompletedItemIDs returns the set of completed item ids in the course.
	CompletedItemIDs(ctx context.Context, learnerID, courseID string) (map[string]bool, error)
}

// Tx is a unit of work over every repository the engine touches.
type Tx interface {
	Courses() course.Registry
	Enrollments() EnrollmentRepository
	Completions() CompletionRepository
	Certificates() certificate.Repository
}

// Store runs units of work. WithinTx commits when fn returns nil and rolls
// back otherwise, so the record, enrollment and certificate writes of one
// toggle land together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(tx Tx) error) error
}

// Snapshot is the cached view of an enrollment's progress.
type Snapshot struct {
	EnrollmentID    string    `json:"enrollment_id"`
	LearnerID       string    `json:"learner_id"`
	CourseID        string    `json:"course_id"`
	ProgressPercent int       `json:"progress_percent"`
	Status          Status    `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// SnapshotOf builds a snapshot from an enrollment.
func SnapshotOf(e *Enrollment) Snapshot {
	return Snapshot{
		EnrollmentID:    e.ID,
		LearnerID:       e.LearnerID,
		CourseID:        e.CourseID,
		ProgressPercent: e.ProgressPercent.Int(),
		Status:          e.Status,
		UpdatedAt:       e.UpdatedAt,
		Version:         e.Version,
	}
}

// Supersedes reports whether s was taken after other.
func (s Snapshot) Supersedes(other Snapshot) bool {
	return s.Version > other.Version
}

// SnapshotCache is a read-through cache in front of enrollments. It is never
// authoritative: a miss or an error falls back to the store.
//
// Set must never replace a stored snapshot with one that does not supersede
// it, so a reader that loaded progress before a toggle committed cannot
// overwrite the toggle's snapshot.
type SnapshotCache interface {
	Get(ctx context.Context, learnerID, courseID string) (*Snapshot, error)
	Set(ctx context.Context, s Snapshot) error
}
