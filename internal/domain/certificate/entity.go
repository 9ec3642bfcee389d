// Package certificate contains the certificate issuer: the NONE -> ISSUED state
// machine that gates certificate creation on a completed enrollment.
package certificate

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Certificate is the permanent proof that an enrollment was completed.
// Code and IssuedAt never change after issuance.
type Certificate struct {
	ID           string
	EnrollmentID string
	LearnerID    string
	CourseID     string

	// Code is the public verification handle.
	Code string

	IssuedAt time.Time
}

// State is the issuance state of an enrollment.
type State string

const (
	StateNone   State = "NONE"
	StateIssued State = "ISSUED"
)

// StateOf returns the issuance state implied by a possibly nil certificate.
func StateOf(c *Certificate) State {
	if c == nil {
		return StateNone
	}
	return StateIssued
}

// Claim is what the issuer needs to know about an enrollment.
type Claim struct {
	EnrollmentID string
	LearnerID    string
	CourseID     string
	Completed    bool
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores certificates. Storage enforces uniqueness on both the
// enrollment and the code.
type Repository interface {
	// GetByEnrollment returns the certificate of an enrollment.
	// Returns ErrCertificateNotFound if none was issued.
	GetByEnrollment(ctx context.Context, enrollmentID string) (*Certificate, error)

	// GetByCode returns the certificate with the given code.
	// Returns ErrCertificateNotFound if the code is unknown.
	GetByCode(ctx context.Context, code string) (*Certificate, error)

	// InsertIfAbsent stores c unless the enrollment already has a certificate.
	// It returns the stored row, which is the concurrent winner's row when c lost,
	// and whether c was the one inserted. Returns ErrCodeCollision when the code
	// is already used by another enrollment.
	InsertIfAbsent(ctx context.Context, c *Certificate) (*Certificate, bool, error)
}

// CodeGenerator produces opaque certificate codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// Cache holds certificates by code for public verification. Certificates are
// immutable so entries never need invalidation.
type Cache interface {
	GetByCode(ctx context.Context, code string) (*Certificate, error)
	Set(ctx context.Context, c *Certificate) error
}
