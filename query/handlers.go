package query

import (
	"context"

	"github.com/goliatone/go-reque/core"
)

type QueueReader interface {
	QueueStats(ctx context.Context) (core.QueueStats, error)
	PeekOldest(ctx context.Context) (core.QueueEntry, bool, error)
	ListEntries(ctx context.Context, limit int, offset int) ([]core.QueueEntry, error)
}

// OldestEntry is the peek result; Found is false on an empty queue.
type OldestEntry struct {
	Entry core.QueueEntry
	Found bool
}

type QueueStatsQuery struct {
	reader QueueReader
}

func NewQueueStatsQuery(reader QueueReader) *QueueStatsQuery {
	return &QueueStatsQuery{reader: reader}
}

func (q *QueueStatsQuery) Query(ctx context.Context, _ QueueStatsMessage) (core.QueueStats, error) {
	if q == nil || q.reader == nil {
		return core.QueueStats{}, queryDependencyError("query: queue reader is required")
	}
	return q.reader.QueueStats(ctx)
}

type PeekOldestQuery struct {
	reader QueueReader
}

func NewPeekOldestQuery(reader QueueReader) *PeekOldestQuery {
	return &PeekOldestQuery{reader: reader}
}

func (q *PeekOldestQuery) Query(ctx context.Context, _ PeekOldestMessage) (OldestEntry, error) {
	if q == nil || q.reader == nil {
		return OldestEntry{}, queryDependencyError("query: queue reader is required")
	}
	entry, found, err := q.reader.PeekOldest(ctx)
	if err != nil {
		return OldestEntry{}, err
	}
	return OldestEntry{Entry: entry, Found: found}, nil
}

type ListEntriesQuery struct {
	reader QueueReader
}

func NewListEntriesQuery(reader QueueReader) *ListEntriesQuery {
	return &ListEntriesQuery{reader: reader}
}

func (q *ListEntriesQuery) Query(ctx context.Context, msg ListEntriesMessage) ([]core.QueueEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: queue reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListEntries(ctx, msg.Limit, msg.Offset)
}
