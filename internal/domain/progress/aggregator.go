package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// Recomputation is the outcome of one aggregator pass.
type Recomputation struct {
	Enrollment     *Enrollment
	CompletedCount int
	ItemCount      int
	Transition     Transition
	Changed        bool

	// Certificate is set when the pass crossed the completion edge.
	Certificate *certificate.Certificate

	// CertificateIssued is true only if this pass created the certificate.
	CertificateIssued bool
}

// Aggregator derives enrollment progress from the completion set.
type Aggregator struct {
	issuer *certificate.Issuer
	now    func() time.Time
}

// NewAggregator creates an aggregator that hands completion edges to issuer.
func NewAggregator(issuer *certificate.Issuer, now func() time.Time) *Aggregator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Aggregator{issuer: issuer, now: now}
}

// Recompute reads the authoritative completion count and item count, applies
// them to e and persists the result. The caller must hold e's row lock.
// Recompute is idempotent: a second pass over an unchanged completion set
// writes nothing and fires nothing.
func (a *Aggregator) Recompute(ctx context.Context, tx Tx, e *Enrollment) (*Recomputation, error) {
	total, err := tx.Courses().Count(ctx, e.CourseID)
	if err != nil {
		return nil, err
	}
	completed, err := tx.Completions().CountCompleted(ctx, e.LearnerID, e.CourseID)
	if err != nil {
		return nil, fmt.Errorf("count completed: %w", err)
	}

	out := &Recomputation{
		Enrollment:     e,
		CompletedCount: completed,
		ItemCount:      total,
	}
	out.Transition, out.Changed = e.Apply(completed, total, a.now().UTC().Truncate(time.Microsecond))
	if !out.Changed {
		return out, nil
	}

	if err := tx.Enrollments().Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update enrollment: %w", err)
	}

	if out.Transition == TransitionCompleted {
		cert, issued, err := a.issuer.Issue(ctx, tx.Certificates(), e.Claim())
		if err != nil {
			return nil, err
		}
		out.Certificate = cert
		out.CertificateIssued = issued
	}

	return out, nil
}

// RecomputeFor locks the enrollment of (learner, course) and recomputes it.
func (a *Aggregator) RecomputeFor(ctx context.Context, tx Tx, learnerID shared.LearnerID, courseID string) (*Recomputation, error) {
	e, err := tx.Enrollments().GetForUpdate(ctx, learnerID.String(), courseID)
	if err != nil {
		return nil, err
	}
	return a.Recompute(ctx, tx, e)
}
