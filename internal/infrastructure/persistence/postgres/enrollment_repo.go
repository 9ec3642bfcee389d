package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements progress.EnrollmentRepository.
type EnrollmentRepository struct {
	q Querier
}

// NewEnrollmentRepository creates an EnrollmentRepository.
func NewEnrollmentRepository(q Querier) *EnrollmentRepository {
	return &EnrollmentRepository{q: q}
}

var _ progress.EnrollmentRepository = (*EnrollmentRepository)(nil)

const enrollmentColumns = `id, learner_id, course_id, progress_percent, status, enrolled_at, updated_at, version`

// Get returns the enrollment of a learner in a course.
func (r *EnrollmentRepository) Get(ctx context.Context, learnerID, courseID string) (*progress.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE learner_id = $1 AND course_id = $2`
	return r.scan(r.q.QueryRow(ctx, query, learnerID, courseID))
}

// GetForUpdate returns the enrollment and locks its row until the transaction ends.
func (r *EnrollmentRepository) GetForUpdate(ctx context.Context, learnerID, courseID string) (*progress.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE learner_id = $1 AND course_id = $2 FOR UPDATE`
	return r.scan(r.q.QueryRow(ctx, query, learnerID, courseID))
}

// CreateIfAbsent inserts the enrollment unless the pair already exists.
func (r *EnrollmentRepository) CreateIfAbsent(ctx context.Context, e *progress.Enrollment) (*progress.Enrollment, bool, error) {
	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT enrollments_learner_course_key DO NOTHING
		RETURNING ` + enrollmentColumns

	stored, err := r.scan(r.q.QueryRow(ctx, query,
		e.ID, e.LearnerID, e.CourseID, e.ProgressPercent.Int(), string(e.Status), e.EnrolledAt, e.UpdatedAt, e.Version,
	))
	switch {
	case err == nil:
		return stored, true, nil
	case shared.IsNotFound(err):
		// Lost to an existing row; read it.
		existing, err := r.Get(ctx, e.LearnerID, e.CourseID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case IsForeignKeyViolation(err):
		return nil, false, shared.ErrCourseNotFound
	default:
		return nil, false, err
	}
}

// Update persists percent, status, updated_at and version.
func (r *EnrollmentRepository) Update(ctx context.Context, e *progress.Enrollment) error {
	query := `
		UPDATE enrollments
		SET progress_percent = $2, status = $3, updated_at = $4, version = $5
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, e.ID, e.ProgressPercent.Int(), string(e.Status), e.UpdatedAt, e.Version)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEnrollmentNotFound
	}
	return nil
}

func (r *EnrollmentRepository) scan(row interface{ Scan(dest ...any) error }) (*progress.Enrollment, error) {
	var e progress.Enrollment
	var percent int
	var status string

	err := row.Scan(&e.ID, &e.LearnerID, &e.CourseID, &percent, &status, &e.EnrolledAt, &e.UpdatedAt, &e.Version)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	e.ProgressPercent = shared.Percent(percent)
	e.Status = progress.Status(status)
	return &e, nil
}
