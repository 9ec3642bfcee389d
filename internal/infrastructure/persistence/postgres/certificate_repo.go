package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CertificateRepository implements certificate.Repository.
type CertificateRepository struct {
	q Querier
}

// NewCertificateRepository creates a CertificateRepository.
func NewCertificateRepository(q Querier) *CertificateRepository {
	return &CertificateRepository{q: q}
}

var _ certificate.Repository = (*CertificateRepository)(nil)

const certificateColumns = `id, enrollment_id, learner_id, course_id, code, issued_at`

// GetByEnrollment returns the certificate of an enrollment.
func (r *CertificateRepository) GetByEnrollment(ctx context.Context, enrollmentID string) (*certificate.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE enrollment_id = $1`
	return scanCertificate(r.q.QueryRow(ctx, query, enrollmentID))
}

// GetByCode returns the certificate with the given code.
func (r *CertificateRepository) GetByCode(ctx context.Context, code string) (*certificate.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE code = $1`
	return scanCertificate(r.q.QueryRow(ctx, query, code))
}

// InsertIfAbsent inserts c unless the enrollment already has a certificate.
//
// The insert runs under a savepoint when the querier is a transaction, so a
// code collision can be retried in the same transaction.
func (r *CertificateRepository) InsertIfAbsent(ctx context.Context, c *certificate.Certificate) (*certificate.Certificate, bool, error) {
	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT certificates_enrollment_key DO NOTHING
		RETURNING ` + certificateColumns

	q := r.q
	var sp pgx.Tx
	if tx, ok := r.q.(pgx.Tx); ok {
		nested, err := tx.Begin(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to open savepoint: %w", err)
		}
		sp, q = nested, nested
	}

	stored, err := scanCertificate(q.QueryRow(ctx, query,
		c.ID, c.EnrollmentID, c.LearnerID, c.CourseID, c.Code, c.IssuedAt,
	))

	if sp != nil {
		if err != nil && !shared.IsNotFound(err) {
			_ = sp.Rollback(ctx)
		} else if cErr := sp.Commit(ctx); cErr != nil {
			return nil, false, fmt.Errorf("failed to release savepoint: %w", cErr)
		}
	}

	switch {
	case err == nil:
		return stored, true, nil
	case shared.IsNotFound(err):
		// Another transaction already issued; it committed before our insert
		// returned, so its row is visible now.
		existing, err := r.GetByEnrollment(ctx, c.EnrollmentID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case IsUniqueViolationOn(err, "certificates_code_key"):
		return nil, false, shared.ErrCodeCollision
	default:
		return nil, false, err
	}
}

func scanCertificate(row pgx.Row) (*certificate.Certificate, error) {
	var c certificate.Certificate
	err := row.Scan(&c.ID, &c.EnrollmentID, &c.LearnerID, &c.CourseID, &c.Code, &c.IssuedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to scan certificate: %w", err)
	}
	return &c, nil
}
