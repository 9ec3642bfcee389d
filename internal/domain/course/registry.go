package course

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Registry is the read-only view of published courses.
type Registry interface {
	// GetCourse returns a course.
	// Returns ErrCourseNotFound if the course does not exist.
	GetCourse(ctx context.Context, courseID string) (*Course, error)

	// Items returns the course items ordered by position.
	// Returns ErrCourseNotFound if the course does not exist.
	Items(ctx context.Context, courseID string) ([]ContentItem, error)

	// Count returns the number of items in the course.
	// Returns ErrCourseNotFound if the course does not exist.
	Count(ctx context.Context, courseID string) (int, error)

	// GetItem returns a single item.
	// Returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, itemID string) (*ContentItem, error)
}

// Authoring publishes courses and items. Used by seeding and by course-authoring
// collaborators, never by the progress engine.
type Authoring interface {
	// SaveCourse creates or updates a course.
	SaveCourse(ctx context.Context, c *Course) error

	// PublishItem stores a new item. Returns an ErrAlreadyExists domain error if
	// the position is taken in the course.
	PublishItem(ctx context.Context, item *ContentItem) error
}

// LoadOutline assembles the ordered outline of a course from a registry.
func LoadOutline(ctx context.Context, r Registry, courseID string) (*Outline, error) {
	c, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return NewOutline(*c, items)
}
