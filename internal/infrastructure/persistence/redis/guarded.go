package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/pkg/circuitbreaker"
)

// isCacheFailure counts everything but misses against the breaker.
func isCacheFailure(err error) bool {
	return err != nil && !IsMiss(err)
}

// NewCacheBreaker returns a breaker tuned for the caches in this package.
func NewCacheBreaker(name string, onStateChange func(name string, from, to circuitbreaker.State)) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.CacheBreaker(name, isCacheFailure, onStateChange)
}

// ErrPendingWrite is returned by GuardedProgressCache.Get for a key whose
// latest snapshot has not reached Redis yet.
var ErrPendingWrite = errors.New("cache: snapshot write pending")

// GuardedProgressCache skips the wrapped cache while its breaker is open.
// Callers see the breaker error and fall back to the store.
//
// A snapshot that could not be written is kept in process and replayed before
// the key is served again, so an entry Redis held before the outage is never
// returned after a newer snapshot was produced.
type GuardedProgressCache struct {
	next    progress.SnapshotCache
	breaker *circuitbreaker.CircuitBreaker

	mu      sync.Mutex
	pending map[snapshotKey]progress.Snapshot
}

type snapshotKey struct {
	learnerID string
	courseID  string
}

var _ progress.SnapshotCache = (*GuardedProgressCache)(nil)

// NewGuardedProgressCache wraps next with breaker.
func NewGuardedProgressCache(next progress.SnapshotCache, breaker *circuitbreaker.CircuitBreaker) *GuardedProgressCache {
	return &GuardedProgressCache{
		next:    next,
		breaker: breaker,
		pending: make(map[snapshotKey]progress.Snapshot),
	}
}

// Get replays a pending snapshot for the key first. While that replay fails it
// returns ErrPendingWrite without reading Redis.
func (g *GuardedProgressCache) Get(ctx context.Context, learnerID, courseID string) (*progress.Snapshot, error) {
	key := snapshotKey{learnerID, courseID}
	if s, ok := g.pendingFor(key); ok {
		if err := g.write(ctx, key, s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPendingWrite, err)
		}
	}

	var s *progress.Snapshot
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		s, err = g.next.Get(ctx, learnerID, courseID)
		return err
	})
	return s, err
}

// Set writes the newest of s and any pending snapshot for the same key.
func (g *GuardedProgressCache) Set(ctx context.Context, s progress.Snapshot) error {
	key := snapshotKey{s.LearnerID, s.CourseID}
	if p, ok := g.pendingFor(key); ok && p.Supersedes(s) {
		s = p
	}
	return g.write(ctx, key, s)
}

func (g *GuardedProgressCache) write(ctx context.Context, key snapshotKey, s progress.Snapshot) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.Set(ctx, s)
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.pending[key]
	switch {
	case err != nil:
		if !ok || s.Supersedes(cur) {
			g.pending[key] = s
		}
	case ok && !cur.Supersedes(s):
		delete(g.pending, key)
	}
	return err
}

func (g *GuardedProgressCache) pendingFor(key snapshotKey) (progress.Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.pending[key]
	return s, ok
}

// GuardedCertificateCache skips the wrapped cache while its breaker is open.
type GuardedCertificateCache struct {
	next    certificate.Cache
	breaker *circuitbreaker.CircuitBreaker
}

var _ certificate.Cache = (*GuardedCertificateCache)(nil)

// NewGuardedCertificateCache wraps next with breaker.
func NewGuardedCertificateCache(next certificate.Cache, breaker *circuitbreaker.CircuitBreaker) *GuardedCertificateCache {
	return &GuardedCertificateCache{next: next, breaker: breaker}
}

func (g *GuardedCertificateCache) GetByCode(ctx context.Context, code string) (*certificate.Certificate, error) {
	var c *certificate.Certificate
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		c, err = g.next.GetByCode(ctx, code)
		return err
	})
	return c, err
}

func (g *GuardedCertificateCache) Set(ctx context.Context, c *certificate.Certificate) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.Set(ctx, c)
	})
}
