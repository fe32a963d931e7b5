package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-reque/core"
)

type countingStatsSource struct {
	*core.MemoryQueueStore

	mu         sync.Mutex
	statsCalls int
	statsErr   error
	// afterRead runs between reading the snapshot and returning it.
	afterRead func()
}

func newCountingStatsSource() *countingStatsSource {
	return &countingStatsSource{MemoryQueueStore: core.NewMemoryQueueStore()}
}

func (s *countingStatsSource) Stats(ctx context.Context) (core.QueueStats, error) {
	s.mu.Lock()
	s.statsCalls++
	err := s.statsErr
	afterRead := s.afterRead
	s.mu.Unlock()
	if err != nil {
		return core.QueueStats{}, err
	}
	stats, err := s.MemoryQueueStore.Stats(ctx)
	if afterRead != nil {
		afterRead()
	}
	return stats, err
}

func (s *countingStatsSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsCalls
}

func TestCachedQueueStats_MissFetchThenHit(t *testing.T) {
	base := newCountingStatsSource()
	store := newTestCachedStats(t, base)
	ctx := context.Background()

	if _, err := base.Enqueue(ctx, testEntry("/a")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	first, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("first stats: %v", err)
	}
	if base.calls() != 1 || first.Depth != 1 {
		t.Fatalf("expected one base read with depth 1, calls=%d depth=%d", base.calls(), first.Depth)
	}

	if _, err := store.Count(ctx); err != nil {
		t.Fatalf("count: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected count to be served from cache, calls=%d", base.calls())
	}
}

func TestCachedQueueStats_WritesEvictSnapshot(t *testing.T) {
	base := newCountingStatsSource()
	store := newTestCachedStats(t, base)
	ctx := context.Background()

	if _, err := store.Stats(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}
	id, err := store.Enqueue(ctx, testEntry("/a"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after enqueue: %v", err)
	}
	if base.calls() != 2 || stats.Depth != 1 || stats.OldestID != id {
		t.Fatalf("expected refreshed stats after enqueue, calls=%d stats=%+v", base.calls(), stats)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after delete: %v", err)
	}
	if base.calls() != 3 || stats.Depth != 0 {
		t.Fatalf("expected refreshed stats after delete, calls=%d stats=%+v", base.calls(), stats)
	}
}

func TestCachedQueueStats_InFlightFetchDoesNotOutliveWrite(t *testing.T) {
	base := newCountingStatsSource()
	store := newTestCachedStats(t, base)
	ctx := context.Background()

	reading := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	base.mu.Lock()
	base.afterRead = func() {
		once.Do(func() {
			close(reading)
			<-release
		})
	}
	base.mu.Unlock()

	staleDone := make(chan core.QueueStats, 1)
	go func() {
		stats, _ := store.Stats(ctx)
		staleDone <- stats
	}()
	<-reading

	if _, err := store.Enqueue(ctx, testEntry("/a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	close(release)
	if stale := <-staleDone; stale.Depth != 0 {
		t.Fatalf("expected the in-flight read to see the empty queue, got %+v", stale)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after enqueue: %v", err)
	}
	if stats.Depth != 1 {
		t.Fatalf("expected stale snapshot to be ignored after enqueue, got depth %d", stats.Depth)
	}
}

func TestCachedQueueStats_PeekAndListPassThrough(t *testing.T) {
	base := newCountingStatsSource()
	store := newTestCachedStats(t, base)
	ctx := context.Background()

	first, _ := store.Enqueue(ctx, testEntry("/a"))
	_, _ = store.Enqueue(ctx, testEntry("/b"))

	oldest, found, err := store.PeekOldest(ctx)
	if err != nil || !found || oldest.ID != first {
		t.Fatalf("expected oldest %d, got %+v found=%v err=%v", first, oldest, found, err)
	}
	entries, err := store.List(ctx, 10, 0)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected two entries, got %d err=%v", len(entries), err)
	}
	if base.calls() != 0 {
		t.Fatalf("expected no stats reads, got %d", base.calls())
	}
}

func TestCachedQueueStats_FetchErrorIsReturned(t *testing.T) {
	base := newCountingStatsSource()
	base.statsErr = errors.New("database unavailable")
	store := newTestCachedStats(t, base)

	if _, err := store.Stats(context.Background()); err == nil {
		t.Fatalf("expected stats error to surface")
	}
}

func TestNewCachedQueueStats_RequiresDependencies(t *testing.T) {
	cacheService := newTestQueueStatsCacheService(t)
	if _, err := NewCachedQueueStats(nil, cacheService); err == nil {
		t.Fatalf("expected error without base store")
	}
	if _, err := NewCachedQueueStats(newCountingStatsSource(), nil); err == nil {
		t.Fatalf("expected error without cache service")
	}
}

func newTestCachedStats(t *testing.T, base *countingStatsSource) *CachedQueueStats {
	t.Helper()
	store, err := NewCachedQueueStats(base, newTestQueueStatsCacheService(t))
	if err != nil {
		t.Fatalf("new cached queue stats: %v", err)
	}
	return store
}

func newTestQueueStatsCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return cacheService
}
