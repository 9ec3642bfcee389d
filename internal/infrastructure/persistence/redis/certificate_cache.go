package redis

import (
	"context"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
)

// CertificateCache implements certificate.Cache.
type CertificateCache struct {
	cache *Cache
}

var _ certificate.Cache = (*CertificateCache)(nil)

// NewCertificateCache creates a CertificateCache.
func NewCertificateCache(cache *Cache) *CertificateCache {
	return &CertificateCache{cache: cache}
}

type certificateEntry struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	LearnerID    string    `json:"learner_id"`
	CourseID     string    `json:"course_id"`
	Code         string    `json:"code"`
	IssuedAt     time.Time `json:"issued_at"`
}

// GetByCode returns a cached certificate or ErrCacheMiss.
func (c *CertificateCache) GetByCode(ctx context.Context, code string) (*certificate.Certificate, error) {
	var e certificateEntry
	if err := c.cache.Get(ctx, CertificateKey(code), &e); err != nil {
		return nil, err
	}
	return &certificate.Certificate{
		ID:           e.ID,
		EnrollmentID: e.EnrollmentID,
		LearnerID:    e.LearnerID,
		CourseID:     e.CourseID,
		Code:         e.Code,
		IssuedAt:     e.IssuedAt,
	}, nil
}

// Set stores a certificate under its code.
func (c *CertificateCache) Set(ctx context.Context, cert *certificate.Certificate) error {
	if cert == nil {
		return ErrCacheNilValue
	}
	return c.cache.Set(ctx, CertificateKey(cert.Code), certificateEntry{
		ID:           cert.ID,
		EnrollmentID: cert.EnrollmentID,
		LearnerID:    cert.LearnerID,
		CourseID:     cert.CourseID,
		Code:         cert.Code,
		IssuedAt:     cert.IssuedAt,
	}, TTLCertificate)
}
