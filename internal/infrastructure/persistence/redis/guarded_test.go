package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/pkg/circuitbreaker"
)

type flakySnapshots struct {
	err    error
	calls  int
	stored map[string]progress.Snapshot
}

func (f *flakySnapshots) Get(_ context.Context, learnerID, courseID string) (*progress.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.stored[learnerID+"|"+courseID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &s, nil
}

func (f *flakySnapshots) Set(_ context.Context, s progress.Snapshot) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.stored == nil {
		f.stored = make(map[string]progress.Snapshot)
	}
	key := s.LearnerID + "|" + s.CourseID
	if cur, ok := f.stored[key]; ok && !s.Supersedes(cur) {
		return nil
	}
	f.stored[key] = s
	return nil
}

func TestGuardedProgressCache_OpensOnFailures(t *testing.T) {
	next := &flakySnapshots{err: errors.New("connection refused")}
	cache := NewGuardedProgressCache(next, NewCacheBreaker("progress-cache", nil))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := cache.Get(ctx, "learner-1", "course-1")
		require.Error(t, err)
	}
	assert.Equal(t, 5, next.calls)

	_, err := cache.Get(ctx, "learner-1", "course-1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, cache.Set(ctx, progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", Version: 2}), circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 5, next.calls)

	_, err = cache.Get(ctx, "learner-1", "course-1")
	assert.ErrorIs(t, err, ErrPendingWrite)
	assert.Equal(t, 5, next.calls)
}

func TestGuardedProgressCache_ReplaysPendingSnapshot(t *testing.T) {
	next := &flakySnapshots{}
	breaker := NewCacheBreaker("progress-cache", nil)
	cache := NewGuardedProgressCache(next, breaker)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", Version: 1}))

	next.err = errors.New("connection refused")
	newer := progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", Version: 3, ProgressPercent: 67}
	assert.Error(t, cache.Set(ctx, newer))

	// A stale writer does not displace the pending snapshot.
	next.err = nil
	require.NoError(t, cache.Set(ctx, progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", Version: 2}))

	got, err := cache.Get(ctx, "learner-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 67, got.ProgressPercent)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestGuardedProgressCache_ReplayAfterReset(t *testing.T) {
	next := &flakySnapshots{}
	breaker := NewCacheBreaker("progress-cache", nil)
	cache := NewGuardedProgressCache(next, breaker)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", Version: 1}))

	next.err = errors.New("connection refused")
	for i := 2; i <= 6; i++ {
		assert.Error(t, cache.Set(ctx, progress.Snapshot{LearnerID: "learner-1", CourseID: "course-1", Version: int64(i)}))
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	next.err = nil
	breaker.Reset()

	got, err := cache.Get(ctx, "learner-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Version)
}

func TestGuardedProgressCache_MissesKeepCircuitClosed(t *testing.T) {
	next := &flakySnapshots{err: ErrCacheMiss}
	breaker := NewCacheBreaker("progress-cache", nil)
	cache := NewGuardedProgressCache(next, breaker)

	for i := 0; i < 10; i++ {
		_, err := cache.Get(context.Background(), "learner-1", "course-1")
		assert.True(t, IsMiss(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
	assert.Equal(t, 10, next.calls)
}
