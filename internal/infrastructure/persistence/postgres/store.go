package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Store implements progress.Store on a connection pool.
type Store struct {
	conn *Connection
}

// NewStore creates a Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

var _ progress.Store = (*Store)(nil)

// WithinTx runs fn in a read-write transaction. Lost races are reported as
// errors matching shared.ErrConflict so callers can retry.
func (s *Store) WithinTx(ctx context.Context, fn func(tx progress.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(newUnit(tx))
	})
	return translateTxError("WithinTx", err)
}

// ReadOnly runs fn in a read-only snapshot.
func (s *Store) ReadOnly(ctx context.Context, fn func(tx progress.Tx) error) error {
	err := s.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		return fn(newUnit(tx))
	})
	return translateTxError("ReadOnly", err)
}

// Courses returns a registry outside any transaction, for seeding.
func (s *Store) Courses() *CourseRepository {
	return NewCourseRepository(s.conn.pool)
}

func translateTxError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConcurrencyFailure(err) {
		return shared.WrapError("postgres", op, shared.ErrConflict, "transaction lost a race", err)
	}
	return err
}

type unit struct {
	courses      *CourseRepository
	enrollments  *EnrollmentRepository
	completions  *CompletionRepository
	certificates *CertificateRepository
}

func newUnit(tx pgx.Tx) *unit {
	return &unit{
		courses:      NewCourseRepository(tx),
		enrollments:  NewEnrollmentRepository(tx),
		completions:  NewCompletionRepository(tx),
		certificates: NewCertificateRepository(tx),
	}
}

func (u *unit) Courses() course.Registry                   { return u.courses }
func (u *unit) Enrollments() progress.EnrollmentRepository { return u.enrollments }
func (u *unit) Completions() progress.CompletionRepository { return u.completions }
func (u *unit) Certificates() certificate.Repository       { return u.certificates }
