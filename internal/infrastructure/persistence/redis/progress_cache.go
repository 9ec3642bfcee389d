package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
)

// ProgressCache implements progress.SnapshotCache.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ progress.SnapshotCache = (*ProgressCache)(nil)

// NewProgressCache creates a ProgressCache. A non-positive ttl uses TTLProgress.
func NewProgressCache(cache *Cache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgress
	}
	return &ProgressCache{cache: cache, ttl: ttl}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (p *ProgressCache) Get(ctx context.Context, learnerID, courseID string) (*progress.Snapshot, error) {
	var s progress.Snapshot
	if err := p.cache.Get(ctx, ProgressKey(learnerID, courseID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Set stores a snapshot unless Redis already holds one with an equal or
// higher version. The compare and the write run as one script.
func (p *ProgressCache) Set(ctx context.Context, s progress.Snapshot) error {
	_, err := p.cache.SetIfNewer(ctx, ProgressKey(s.LearnerID, s.CourseID), s, s.Version, p.ttl)
	return err
}

// IsMiss reports whether err is a plain cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
