package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "academy:progress:course-1:learner-1", ProgressKey("learner-1", "course-1"))
	assert.Equal(t, "academy:certificate:CERT-AAAA-BBBB-CCCC-D", CertificateKey("CERT-AAAA-BBBB-CCCC-D"))
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
}

func TestCache_Validation(t *testing.T) {
	c := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}))
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))

	_, err := c.SetIfNewer(ctx, "k", progress.Snapshot{}, 1, 0)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
	_, err = c.SetIfNewer(ctx, "", progress.Snapshot{}, 1, time.Minute)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
}

// newTestCache connects to TEST_REDIS_ADDR or skips.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return NewCacheFromClient(client)
}

func TestProgressCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	pc := NewProgressCache(c, time.Minute)
	ctx := context.Background()

	_, err := pc.Get(ctx, "learner-1", "course-1")
	assert.True(t, IsMiss(err))

	snap := progress.Snapshot{
		EnrollmentID:    "enr-1",
		LearnerID:       "learner-1",
		CourseID:        "course-1",
		ProgressPercent: 67,
		Status:          progress.StatusInProgress,
		UpdatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, pc.Set(ctx, snap))

	got, err := pc.Get(ctx, "learner-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ProgressPercent, got.ProgressPercent)
	assert.Equal(t, snap.Status, got.Status)
	assert.True(t, snap.UpdatedAt.Equal(got.UpdatedAt))

	ttl, err := c.TTL(ctx, ProgressKey("learner-1", "course-1"))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

}

func TestProgressCache_KeepsNewerSnapshot(t *testing.T) {
	c := newTestCache(t)
	pc := NewProgressCache(c, time.Minute)
	ctx := context.Background()

	older := progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", ProgressPercent: 0, Status: progress.StatusInProgress, Version: 1}
	newer := older
	newer.ProgressPercent = 33
	newer.Version = 2

	require.NoError(t, pc.Set(ctx, newer))
	require.NoError(t, pc.Set(ctx, older))

	got, err := pc.Get(ctx, "learner-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 33, got.ProgressPercent)
	assert.Equal(t, int64(2), got.Version)

	wrote, err := c.SetIfNewer(ctx, ProgressKey("learner-1", "course-1"), newer, newer.Version, time.Minute)
	require.NoError(t, err)
	assert.False(t, wrote)
}

func TestCertificateCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	cc := NewCertificateCache(c)
	ctx := context.Background()

	cert := &certificate.Certificate{
		ID:           "cert-1",
		EnrollmentID: "enr-1",
		LearnerID:    "learner-1",
		CourseID:     "course-1",
		Code:         "CERT-AAAA-BBBB-CCCC-D",
		IssuedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cc.Set(ctx, cert))

	got, err := cc.GetByCode(ctx, cert.Code)
	require.NoError(t, err)
	assert.Equal(t, cert.EnrollmentID, got.EnrollmentID)
	assert.True(t, cert.IssuedAt.Equal(got.IssuedAt))

	exists, err := c.Exists(ctx, CertificateKey(cert.Code))
	require.NoError(t, err)
	assert.True(t, exists)
}
