package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ToggleOutcome is what SetCompletion did.
type ToggleOutcome struct {
	Item   *course.ContentItem
	Record *CompletionRecord

	// Changed is false when the call matched the stored state.
	Changed bool

	// Recomputation is nil when nothing changed.
	Recomputation *Recomputation

	Enrollment *Enrollment
}

// CertificateIssued reports whether this toggle created the certificate.
func (o *ToggleOutcome) CertificateIssued() bool {
	return o.Recomputation != nil && o.Recomputation.CertificateIssued
}

// Tracker owns completion record writes.
type Tracker struct {
	aggregator *Aggregator
	newID      func() string
	now        func() time.Time
}

// NewTracker creates a tracker that recomputes through aggregator.
func NewTracker(aggregator *Aggregator, newID func() string, now func() time.Time) *Tracker {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{aggregator: aggregator, newID: newID, now: now}
}

// SetCompletion sets the completion flag of learner on item inside tx.
//
// The enrollment row is locked before the record is read, so concurrent
// toggles on any item of the same course serialize. A call that matches the
// stored state writes nothing and returns the current record unchanged. A
// missing record counts as not completed.
func (t *Tracker) SetCompletion(ctx context.Context, tx Tx, learnerID shared.LearnerID, itemID string, completed bool) (*ToggleOutcome, error) {
	item, err := tx.Courses().GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	enrollment, err := tx.Enrollments().GetForUpdate(ctx, learnerID.String(), item.CourseID)
	if shared.IsNotFound(err) {
		return nil, shared.WrapError("progress", "SetCompletion", shared.ErrNotEnrolled,
			"learner is not enrolled in the course", err)
	}
	if err != nil {
		return nil, err
	}

	record, err := tx.Completions().Get(ctx, learnerID.String(), item.ID)
	switch {
	case shared.IsNotFound(err):
		record = &CompletionRecord{
			LearnerID: learnerID.String(),
			ItemID:    item.ID,
			CourseID:  item.CourseID,
		}
	case err != nil:
		return nil, fmt.Errorf("get completion record: %w", err)
	}

	out := &ToggleOutcome{Item: item, Enrollment: enrollment}
	if record.Completed == completed {
		out.Record = record
		return out, nil
	}

	if record.ID == "" {
		record.ID = t.newID()
	}
	record.Completed = completed
	record.UpdatedAt = t.now().UTC().Truncate(time.Microsecond)
	if err := tx.Completions().Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("upsert completion record: %w", err)
	}

	recomputed, err := t.aggregator.Recompute(ctx, tx, enrollment)
	if err != nil {
		return nil, err
	}

	out.Record = record
	out.Changed = true
	out.Recomputation = recomputed
	out.Enrollment = recomputed.Enrollment
	return out, nil
}
