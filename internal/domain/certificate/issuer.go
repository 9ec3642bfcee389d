package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// maxCodeAttempts bounds regeneration after a code collision.
const maxCodeAttempts = 3

// Issuer issues at most one certificate per enrollment.
type Issuer struct {
	codes CodeGenerator
	newID func() string
	now   func() time.Time
}

// NewIssuer creates an issuer. A nil now uses the UTC wall clock.
func NewIssuer(codes CodeGenerator, newID func() string, now func() time.Time) *Issuer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Issuer{codes: codes, newID: newID, now: now}
}

// Issue returns the certificate of the claimed enrollment, creating it if it
// does not exist yet. The returned flag is true only for the call that created
// the row. Issuing for an enrollment that is not completed returns
// ErrCertificateIneligible even when a certificate already exists, so callers
// cannot use Issue as a lookup.
func (i *Issuer) Issue(ctx context.Context, repo Repository, claim Claim) (*Certificate, bool, error) {
	if !claim.Completed {
		return nil, false, shared.ErrCertificateIneligible
	}

	existing, err := repo.GetByEnrollment(ctx, claim.EnrollmentID)
	if err == nil {
		return existing, false, nil
	}
	if !shared.IsNotFound(err) {
		return nil, false, err
	}

	issuedAt := i.now().UTC().Truncate(time.Microsecond)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := i.codes.Generate()
		if err != nil {
			return nil, false, shared.WrapError("certificate", "Issue", shared.ErrServiceUnavailable, "generate code", err)
		}

		stored, inserted, err := repo.InsertIfAbsent(ctx, &Certificate{
			ID:           i.newID(),
			EnrollmentID: claim.EnrollmentID,
			LearnerID:    claim.LearnerID,
			CourseID:     claim.CourseID,
			Code:         code,
			IssuedAt:     issuedAt,
		})
		if errors.Is(err, shared.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return stored, inserted, nil
	}

	return nil, false, shared.ErrCodeCollision
}
