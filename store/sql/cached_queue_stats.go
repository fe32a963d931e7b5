package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-reque/core"
)

const (
	QueueStatsCacheKey      = "go-reque::queue_stats::v1"
	DefaultQueueStatsTTL    = 2 * time.Second
	queueStatsCacheKeyScope = "queue_stats"
)

type statsSource interface {
	core.QueueStore
	core.QueueInspector
	core.QueueStatsReader
}

// CachedQueueStats fronts a queue store so frequent info probes do not hit the
// database. Writes pass through and evict the cached snapshot. Snapshots are
// keyed by a generation that every write bumps, so a fetch still running when
// a write lands stores under a key no later read uses.
type CachedQueueStats struct {
	base       statsSource
	cache      repositorycache.CacheService
	generation atomic.Uint64
}

func NewCachedQueueStats(base statsSource, cacheService repositorycache.CacheService) (*CachedQueueStats, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base queue store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: queue stats cache service is required")
	}
	return &CachedQueueStats{base: base, cache: cacheService}, nil
}

// NewQueueStatsCache builds the default in-process cache service.
func NewQueueStatsCache(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl <= 0 {
		ttl = DefaultQueueStatsTTL
	}
	config.TTL = ttl
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build %s cache: %w", queueStatsCacheKeyScope, err)
	}
	return cacheService, nil
}

func (s *CachedQueueStats) Enqueue(ctx context.Context, entry core.QueueEntry) (int64, error) {
	if s == nil || s.base == nil {
		return 0, core.StoreError(nil, "sqlstore: cached queue store is not configured", nil)
	}
	id, err := s.base.Enqueue(ctx, entry)
	if err != nil {
		return 0, err
	}
	s.evict(ctx)
	return id, nil
}

func (s *CachedQueueStats) PeekOldest(ctx context.Context) (core.QueueEntry, bool, error) {
	if s == nil || s.base == nil {
		return core.QueueEntry{}, false, core.StoreError(nil, "sqlstore: cached queue store is not configured", nil)
	}
	return s.base.PeekOldest(ctx)
}

func (s *CachedQueueStats) Delete(ctx context.Context, id int64) error {
	if s == nil || s.base == nil {
		return core.StoreError(nil, "sqlstore: cached queue store is not configured", nil)
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(ctx)
	return nil
}

func (s *CachedQueueStats) Count(ctx context.Context) (int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Depth, nil
}

func (s *CachedQueueStats) List(ctx context.Context, limit int, offset int) ([]core.QueueEntry, error) {
	if s == nil || s.base == nil {
		return nil, core.StoreError(nil, "sqlstore: cached queue store is not configured", nil)
	}
	return s.base.List(ctx, limit, offset)
}

func (s *CachedQueueStats) Stats(ctx context.Context) (core.QueueStats, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.QueueStats{}, core.StoreError(nil, "sqlstore: cached queue store is not configured", nil)
	}
	stats, err := repositorycache.GetOrFetch(ctx, s.cache, s.cacheKey(s.generation.Load()), func(ctx context.Context) (core.QueueStats, error) {
		fetched, fetchErr := s.base.Stats(ctx)
		if fetchErr != nil {
			return core.QueueStats{}, fetchErr
		}
		return cloneQueueStats(fetched), nil
	})
	if err != nil {
		return core.QueueStats{}, err
	}
	return cloneQueueStats(stats), nil
}

// evict moves reads to a fresh generation; deleting the old key only frees it
// before its TTL.
func (s *CachedQueueStats) evict(ctx context.Context) {
	previous := s.generation.Add(1) - 1
	_ = s.cache.Delete(context.WithoutCancel(ctx), s.cacheKey(previous))
}

func (s *CachedQueueStats) cacheKey(generation uint64) string {
	return QueueStatsCacheKey + "::" + strconv.FormatUint(generation, 10)
}

func cloneQueueStats(stats core.QueueStats) core.QueueStats {
	cloned := stats
	if stats.OldestAt != nil {
		value := stats.OldestAt.UTC()
		cloned.OldestAt = &value
	}
	return cloned
}

var (
	_ core.QueueStore       = (*CachedQueueStats)(nil)
	_ core.QueueInspector   = (*CachedQueueStats)(nil)
	_ core.QueueStatsReader = (*CachedQueueStats)(nil)
)
