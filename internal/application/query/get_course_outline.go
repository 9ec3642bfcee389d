package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE OUTLINE QUERY
// The ordered item list of a course with the learner's completion flags.
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseOutlineQuery identifies the course and the viewing learner.
type GetCourseOutlineQuery struct {
	LearnerID string
	CourseID  string
}

// Validate validates the query and returns the normalized identifiers.
func (q GetCourseOutlineQuery) Validate() (shared.LearnerID, string, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return "", "", err
	}
	courseID, err := shared.ParseEntityID("course", "GetCourseOutline", q.CourseID)
	if err != nil {
		return "", "", err
	}
	return learnerID, courseID, nil
}

// ItemDTO is a content item as shown to a learner.
type ItemDTO struct {
	ID         string      `json:"id"`
	CourseID   string      `json:"course_id"`
	Position   int         `json:"position"`
	Kind       course.Kind `json:"kind"`
	KindLabel  string      `json:"kind_label"`
	Title      string      `json:"title"`
	PayloadRef string      `json:"payload_ref"`

	// PayloadKind names what PayloadRef holds for this kind.
	PayloadKind string `json:"payload_kind"`

	Completed bool `json:"completed"`
}

// NewItemDTO converts an item.
func NewItemDTO(item course.ContentItem, completed bool) ItemDTO {
	return ItemDTO{
		ID:          item.ID,
		CourseID:    item.CourseID,
		Position:    item.Position,
		Kind:        item.Kind,
		KindLabel:   item.Kind.Label(),
		Title:       item.Title,
		PayloadRef:  item.PayloadRef,
		PayloadKind: item.Kind.PayloadLabel(),
		Completed:   completed,
	}
}

// CourseOutlineDTO is the course page view.
type CourseOutlineDTO struct {
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ItemCount   int       `json:"item_count"`
	Items       []ItemDTO `json:"items"`

	// Enrolled is false for a learner browsing a course they have not joined.
	// Progress is nil in that case.
	Enrolled bool         `json:"enrolled"`
	Progress *ProgressDTO `json:"progress,omitempty"`
}

// GetCourseOutlineHandler handles GetCourseOutlineQuery.
type GetCourseOutlineHandler struct {
	store  progress.Store
	logger *logger.Logger
}

// NewGetCourseOutlineHandler creates a new GetCourseOutlineHandler.
func NewGetCourseOutlineHandler(store progress.Store, log *logger.Logger) *GetCourseOutlineHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCourseOutlineHandler{store: store, logger: log.With(logger.Component("get_course_outline"))}
}

// Handle executes the query. NotFound when the course does not exist.
func (h *GetCourseOutlineHandler) Handle(ctx context.Context, q GetCourseOutlineQuery) (*CourseOutlineDTO, error) {
	learnerID, courseID, err := q.Validate()
	if err != nil {
		return nil, fmt.Errorf("get_course_outline: validation failed: %w", err)
	}

	ctx, span := tracer.Start(ctx, "query.GetCourseOutline", trace.WithAttributes(
		attribute.String("learner.id", learnerID.String()),
		attribute.String("course.id", courseID),
	))
	defer span.End()

	var dto *CourseOutlineDTO
	err = h.store.ReadOnly(ctx, func(tx progress.Tx) error {
		outline, err := course.LoadOutline(ctx, tx.Courses(), courseID)
		if err != nil {
			return err
		}

		dto = &CourseOutlineDTO{
			CourseID:    outline.Course.ID,
			Title:       outline.Course.Title,
			Description: outline.Course.Description,
			ItemCount:   outline.Count(),
			Items:       make([]ItemDTO, 0, outline.Count()),
		}

		done := map[string]bool{}
		e, err := tx.Enrollments().Get(ctx, learnerID.String(), courseID)
		switch {
		case err == nil:
			dto.Enrolled = true
			dto.Progress = NewProgressDTO(progress.SnapshotOf(e))
			done, err = tx.Completions().CompletedItemIDs(ctx, learnerID.String(), courseID)
			if err != nil {
				return fmt.Errorf("completed items: %w", err)
			}
		case !shared.IsNotFound(err):
			return err
		}

		for _, item := range outline.Items {
			dto.Items = append(dto.Items, NewItemDTO(item, done[item.ID]))
		}
		return nil
	})
	if err != nil {
		if !shared.IsNotFound(err) {
			h.logger.Error("failed to load outline", logger.CourseID(courseID), logger.Err(err))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("course.items", dto.ItemCount))
	return dto, nil
}
