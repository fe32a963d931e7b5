package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueueStore keeps entries in process memory. It honors the ordering and
// idempotency contract but loses everything on restart.
type MemoryQueueStore struct {
	mu      sync.Mutex
	entries map[int64]QueueEntry
	lastID  int64
	Now     func() time.Time
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{
		entries: map[int64]QueueEntry{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryQueueStore) Enqueue(ctx context.Context, entry QueueEntry) (int64, error) {
	if s == nil {
		return 0, StoreError(nil, "core: memory queue store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return 0, StoreError(err, "core: enqueue cancelled", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[int64]QueueEntry{}
	}
	s.lastID++
	entry.ID = s.lastID
	entry.Body = append([]byte(nil), entry.Body...)
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = s.now()
	}
	s.entries[entry.ID] = entry
	return entry.ID, nil
}

func (s *MemoryQueueStore) PeekOldest(ctx context.Context) (QueueEntry, bool, error) {
	if s == nil {
		return QueueEntry{}, false, StoreError(nil, "core: memory queue store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return QueueEntry{}, false, StoreError(err, "core: peek cancelled", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		oldest QueueEntry
		found  bool
	)
	for id, entry := range s.entries {
		if !found || id < oldest.ID {
			oldest = entry
			found = true
		}
	}
	if !found {
		return QueueEntry{}, false, nil
	}
	return cloneEntry(oldest), true, nil
}

func (s *MemoryQueueStore) Delete(ctx context.Context, id int64) error {
	if s == nil {
		return StoreError(nil, "core: memory queue store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return StoreError(err, "core: delete cancelled", map[string]any{"id": id})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryQueueStore) Count(context.Context) (int, error) {
	if s == nil {
		return 0, StoreError(nil, "core: memory queue store is nil", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *MemoryQueueStore) List(_ context.Context, limit int, offset int) ([]QueueEntry, error) {
	if s == nil {
		return nil, StoreError(nil, "core: memory queue store is nil", nil)
	}
	s.mu.Lock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if offset < 0 {
		offset = 0
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]QueueEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneEntry(s.entries[id]))
	}
	s.mu.Unlock()
	return out, nil
}

func (s *MemoryQueueStore) Stats(ctx context.Context) (QueueStats, error) {
	stats := QueueStats{ObservedAt: s.now()}
	entries, err := s.List(ctx, 1, 0)
	if err != nil {
		return QueueStats{}, err
	}
	count, err := s.Count(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	stats.Depth = count
	if len(entries) > 0 {
		enqueuedAt := entries[0].EnqueuedAt
		stats.OldestID = entries[0].ID
		stats.OldestAt = &enqueuedAt
	}
	return stats, nil
}

func (s *MemoryQueueStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func cloneEntry(entry QueueEntry) QueueEntry {
	entry.Body = append([]byte(nil), entry.Body...)
	return entry
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

var (
	_ QueueStore       = (*MemoryQueueStore)(nil)
	_ QueueInspector   = (*MemoryQueueStore)(nil)
	_ QueueStatsReader = (*MemoryQueueStore)(nil)
)
