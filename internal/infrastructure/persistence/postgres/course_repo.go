package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REGISTRY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Registry and course.Authoring.
type CourseRepository struct {
	q Querier
}

// NewCourseRepository creates a CourseRepository over a pool or a transaction.
func NewCourseRepository(q Querier) *CourseRepository {
	return &CourseRepository{q: q}
}

// Compile-time interface checks.
var (
	_ course.Registry  = (*CourseRepository)(nil)
	_ course.Authoring = (*CourseRepository)(nil)
)

// GetCourse returns a course.
func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (*course.Course, error) {
	query := `
		SELECT id, title, description, created_at
		FROM courses
		WHERE id = $1
	`

	var c course.Course
	err := r.q.QueryRow(ctx, query, courseID).Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

// Items returns the course items ordered by position.
func (r *CourseRepository) Items(ctx context.Context, courseID string) ([]course.ContentItem, error) {
	if _, err := r.Count(ctx, courseID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, course_id, position, kind, title, payload_ref, created_at
		FROM content_items
		WHERE course_id = $1
		ORDER BY position
	`

	rows, err := r.q.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []course.ContentItem
	for rows.Next() {
		var it course.ContentItem
		var kind string
		if err := rows.Scan(&it.ID, &it.CourseID, &it.Position, &kind, &it.Title, &it.PayloadRef, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Kind = course.Kind(kind)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Count returns the number of items in the course.
func (r *CourseRepository) Count(ctx context.Context, courseID string) (int, error) {
	query := `
		SELECT (SELECT count(*) FROM content_items WHERE course_id = c.id)
		FROM courses c
		WHERE c.id = $1
	`

	var n int
	if err := r.q.QueryRow(ctx, query, courseID).Scan(&n); err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrCourseNotFound
		}
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// GetItem returns a single item.
func (r *CourseRepository) GetItem(ctx context.Context, itemID string) (*course.ContentItem, error) {
	query := `
		SELECT id, course_id, position, kind, title, payload_ref, created_at
		FROM content_items
		WHERE id = $1
	`

	var it course.ContentItem
	var kind string
	err := r.q.QueryRow(ctx, query, itemID).Scan(&it.ID, &it.CourseID, &it.Position, &kind, &it.Title, &it.PayloadRef, &it.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	it.Kind = course.Kind(kind)
	return &it, nil
}

// SaveCourse creates or updates a course.
func (r *CourseRepository) SaveCourse(ctx context.Context, c *course.Course) error {
	query := `
		INSERT INTO courses (id, title, description, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description
	`

	if _, err := r.q.Exec(ctx, query, c.ID, c.Title, c.Description, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	return nil
}

// PublishItem stores a new item.
func (r *CourseRepository) PublishItem(ctx context.Context, it *course.ContentItem) error {
	query := `
		INSERT INTO content_items (id, course_id, position, kind, title, payload_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.Exec(ctx, query, it.ID, it.CourseID, it.Position, string(it.Kind), it.Title, it.PayloadRef, it.CreatedAt)
	if err != nil {
		switch {
		case IsUniqueViolationOn(err, "content_items_course_position_key"):
			return shared.ErrPositionTaken
		case IsUniqueViolation(err):
			return shared.NewDomainError("course", "PublishItem", shared.ErrAlreadyExists, "item already published")
		case IsForeignKeyViolation(err):
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to publish item: %w", err)
	}
	return nil
}
