package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// SnapshotCache is an in-process progress.SnapshotCache with the same
// ordering rule as the Redis one: Set keeps whichever snapshot is newer.
type SnapshotCache struct {
	mu      sync.Mutex
	entries map[pairKey]progress.Snapshot
}

var _ progress.SnapshotCache = (*SnapshotCache)(nil)

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{entries: make(map[pairKey]progress.Snapshot)}
}

// Get returns the cached snapshot or shared.ErrNotFound.
func (c *SnapshotCache) Get(_ context.Context, learnerID, courseID string) (*progress.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[pairKey{learnerID, courseID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

// Set stores s unless the cached snapshot is at least as new.
func (c *SnapshotCache) Set(_ context.Context, s progress.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pairKey{s.LearnerID, s.CourseID}
	if cur, ok := c.entries[key]; ok && !s.Supersedes(cur) {
		return nil
	}
	c.entries[key] = s
	return nil
}
