package certificate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

type fakeRepo struct {
	byEnrollment map[string]*Certificate
	usedCodes    map[string]bool
	inserts      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byEnrollment: map[string]*Certificate{}, usedCodes: map[string]bool{}}
}

func (r *fakeRepo) GetByEnrollment(_ context.Context, enrollmentID string) (*Certificate, error) {
	if c, ok := r.byEnrollment[enrollmentID]; ok {
		return c, nil
	}
	return nil, shared.ErrCertificateNotFound
}

func (r *fakeRepo) GetByCode(_ context.Context, code string) (*Certificate, error) {
	for _, c := range r.byEnrollment {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, shared.ErrCertificateNotFound
}

func (r *fakeRepo) InsertIfAbsent(_ context.Context, c *Certificate) (*Certificate, bool, error) {
	if existing, ok := r.byEnrollment[c.EnrollmentID]; ok {
		return existing, false, nil
	}
	if r.usedCodes[c.Code] {
		return nil, false, shared.ErrCodeCollision
	}
	r.inserts++
	r.usedCodes[c.Code] = true
	r.byEnrollment[c.EnrollmentID] = c
	return c, true, nil
}

type sequenceCodes struct {
	codes []string
	next  int
	err   error
}

func (s *sequenceCodes) Generate() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	code := s.codes[s.next%len(s.codes)]
	s.next++
	return code, nil
}

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("cert-%d", n)
	}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

func newTestIssuer(codes CodeGenerator) *Issuer {
	return NewIssuer(codes, counterIDs(), func() time.Time { return fixedNow })
}

func completedClaim() Claim {
	return Claim{EnrollmentID: "enr-1", LearnerID: "learner-1", CourseID: "go-101", Completed: true}
}

func TestIssuer_IssuesOnce(t *testing.T) {
	repo := newFakeRepo()
	issuer := newTestIssuer(&sequenceCodes{codes: []string{"CODE-1", "CODE-2"}})
	ctx := context.Background()

	first, issued, err := issuer.Issue(ctx, repo, completedClaim())
	require.NoError(t, err)
	assert.True(t, issued)
	assert.Equal(t, "CODE-1", first.Code)
	assert.Equal(t, fixedNow.Truncate(time.Microsecond), first.IssuedAt)
	assert.Equal(t, StateIssued, StateOf(first))

	second, issued, err := issuer.Issue(ctx, repo, completedClaim())
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Same(t, first, second)
	assert.Equal(t, 1, repo.inserts)
}

func TestIssuer_RejectsIncompleteClaim(t *testing.T) {
	repo := newFakeRepo()
	issuer := newTestIssuer(&sequenceCodes{codes: []string{"CODE-1"}})

	claim := completedClaim()
	claim.Completed = false
	cert, issued, err := issuer.Issue(context.Background(), repo, claim)

	assert.ErrorIs(t, err, shared.ErrCertificateIneligible)
	assert.True(t, shared.IsInvalidState(err))
	assert.Nil(t, cert)
	assert.False(t, issued)
	assert.Equal(t, StateNone, StateOf(nil))
}

func TestIssuer_RegeneratesOnCodeCollision(t *testing.T) {
	repo := newFakeRepo()
	repo.usedCodes["TAKEN"] = true
	issuer := newTestIssuer(&sequenceCodes{codes: []string{"TAKEN", "FREE"}})

	cert, issued, err := issuer.Issue(context.Background(), repo, completedClaim())
	require.NoError(t, err)
	assert.True(t, issued)
	assert.Equal(t, "FREE", cert.Code)
}

func TestIssuer_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newFakeRepo()
	repo.usedCodes["TAKEN"] = true
	issuer := newTestIssuer(&sequenceCodes{codes: []string{"TAKEN"}})

	_, _, err := issuer.Issue(context.Background(), repo, completedClaim())
	assert.ErrorIs(t, err, shared.ErrCodeCollision)
	assert.Equal(t, 0, repo.inserts)
}

func TestIssuer_GeneratorFailure(t *testing.T) {
	issuer := newTestIssuer(&sequenceCodes{err: errors.New("entropy exhausted")})

	_, _, err := issuer.Issue(context.Background(), newFakeRepo(), completedClaim())
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}
