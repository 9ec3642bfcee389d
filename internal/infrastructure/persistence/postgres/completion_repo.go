package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION RECORD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRepository implements progress.CompletionRepository.
type CompletionRepository struct {
	q Querier
}

// NewCompletionRepository creates a CompletionRepository.
func NewCompletionRepository(q Querier) *CompletionRepository {
	return &CompletionRepository{q: q}
}

var _ progress.CompletionRepository = (*CompletionRepository)(nil)

var errCompletionNotFound = shared.NewDomainError("progress", "GetCompletion", shared.ErrNotFound, "completion record not found")

// Get returns the record of a learner for an item.
func (r *CompletionRepository) Get(ctx context.Context, learnerID, itemID string) (*progress.CompletionRecord, error) {
	query := `
		SELECT cr.id, cr.learner_id, cr.item_id, ci.course_id, cr.completed, cr.updated_at
		FROM completion_records cr
		JOIN content_items ci ON ci.id = cr.item_id
		WHERE cr.learner_id = $1 AND cr.item_id = $2
	`

	var rec progress.CompletionRecord
	err := r.q.QueryRow(ctx, query, learnerID, itemID).Scan(
		&rec.ID, &rec.LearnerID, &rec.ItemID, &rec.CourseID, &rec.Completed, &rec.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, errCompletionNotFound
		}
		return nil, fmt.Errorf("failed to get completion record: %w", err)
	}
	return &rec, nil
}

// Upsert writes the record. The id of an existing row is kept.
func (r *CompletionRepository) Upsert(ctx context.Context, rec *progress.CompletionRecord) error {
	query := `
		INSERT INTO completion_records (id, learner_id, item_id, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT completion_records_learner_item_key DO UPDATE SET
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query, rec.ID, rec.LearnerID, rec.ItemID, rec.Completed, rec.UpdatedAt).Scan(&rec.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrItemNotFound
		}
		return fmt.Errorf("failed to upsert completion record: %w", err)
	}
	return nil
}

// CountCompleted counts completed items of the course for the learner.
func (r *CompletionRepository) CountCompleted(ctx context.Context, learnerID, courseID string) (int, error) {
	query := `
		SELECT count(*)
		FROM completion_records cr
		JOIN content_items ci ON ci.id = cr.item_id
		WHERE cr.learner_id = $1 AND ci.course_id = $2 AND cr.completed
	`

	var n int
	if err := r.q.QueryRow(ctx, query, learnerID, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count completed items: %w", err)
	}
	return n, nil
}

// CompletedItemIDs returns the completed item ids of the course.
func (r *CompletionRepository) CompletedItemIDs(ctx context.Context, learnerID, courseID string) (map[string]bool, error) {
	query := `
		SELECT cr.item_id
		FROM completion_records cr
		JOIN content_items ci ON ci.id = cr.item_id
		WHERE cr.learner_id = $1 AND ci.course_id = $2 AND cr.completed
	`

	rows, err := r.q.Query(ctx, query, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed items: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}
