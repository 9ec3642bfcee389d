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
// GET ITEM NAVIGATION QUERY
// A single item with its neighbors, for the item viewer's prev/next controls.
// ══════════════════════════════════════════════════════════════════════════════

// GetItemNavigationQuery identifies the item and the viewing learner.
type GetItemNavigationQuery struct {
	LearnerID string
	ItemID    string
}

// Validate validates the query and returns the normalized identifiers.
func (q GetItemNavigationQuery) Validate() (shared.LearnerID, string, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return "", "", err
	}
	itemID, err := shared.ParseEntityID("course", "GetItemNavigation", q.ItemID)
	if err != nil {
		return "", "", err
	}
	return learnerID, itemID, nil
}

// NeighborDTO is a prev/next link.
type NeighborDTO struct {
	ID       string      `json:"id"`
	Position int         `json:"position"`
	Kind     course.Kind `json:"kind"`
	Title    string      `json:"title"`
}

func newNeighborDTO(item *course.ContentItem) *NeighborDTO {
	if item == nil {
		return nil
	}
	return &NeighborDTO{ID: item.ID, Position: item.Position, Kind: item.Kind, Title: item.Title}
}

// ItemNavigationDTO is the item viewer state.
type ItemNavigationDTO struct {
	Item      ItemDTO      `json:"item"`
	Prev      *NeighborDTO `json:"prev"`
	Next      *NeighborDTO `json:"next"`
	ItemCount int          `json:"item_count"`

	// IsLast is true when there is no next item; the viewer then links back
	// to the course page.
	IsLast   bool `json:"is_last"`
	Enrolled bool `json:"enrolled"`
}

// GetItemNavigationHandler handles GetItemNavigationQuery.
type GetItemNavigationHandler struct {
	store  progress.Store
	logger *logger.Logger
}

// NewGetItemNavigationHandler creates a new GetItemNavigationHandler.
func NewGetItemNavigationHandler(store progress.Store, log *logger.Logger) *GetItemNavigationHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetItemNavigationHandler{store: store, logger: log.With(logger.Component("get_item_navigation"))}
}

// Handle executes the query. NotFound when the item does not exist.
func (h *GetItemNavigationHandler) Handle(ctx context.Context, q GetItemNavigationQuery) (*ItemNavigationDTO, error) {
	learnerID, itemID, err := q.Validate()
	if err != nil {
		return nil, fmt.Errorf("get_item_navigation: validation failed: %w", err)
	}

	ctx, span := tracer.Start(ctx, "query.GetItemNavigation", trace.WithAttributes(
		attribute.String("learner.id", learnerID.String()),
		attribute.String("item.id", itemID),
	))
	defer span.End()

	var dto *ItemNavigationDTO
	err = h.store.ReadOnly(ctx, func(tx progress.Tx) error {
		item, err := tx.Courses().GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		outline, err := course.LoadOutline(ctx, tx.Courses(), item.CourseID)
		if err != nil {
			return err
		}
		prev, next, err := outline.Neighbors(item.Position)
		if err != nil {
			return err
		}

		dto = &ItemNavigationDTO{
			Prev:      newNeighborDTO(prev),
			Next:      newNeighborDTO(next),
			ItemCount: outline.Count(),
			IsLast:    next == nil,
		}

		completed := false
		if _, err := tx.Enrollments().Get(ctx, learnerID.String(), item.CourseID); err == nil {
			dto.Enrolled = true
			rec, err := tx.Completions().Get(ctx, learnerID.String(), item.ID)
			switch {
			case err == nil:
				completed = rec.Completed
			case !shared.IsNotFound(err):
				return err
			}
		} else if !shared.IsNotFound(err) {
			return err
		}

		dto.Item = NewItemDTO(*item, completed)
		return nil
	})
	if err != nil {
		if !shared.IsNotFound(err) {
			h.logger.Error("failed to load item", logger.ItemID(itemID), logger.Err(err))
		}
		return nil, err
	}
	return dto, nil
}
