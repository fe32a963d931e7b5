package query

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-reque/core"
)

type stubQueueReader struct {
	stats     core.QueueStats
	oldest    core.QueueEntry
	found     bool
	entries   []core.QueueEntry
	err       error
	listLimit int
	listSkip  int
}

func (s *stubQueueReader) QueueStats(context.Context) (core.QueueStats, error) {
	return s.stats, s.err
}

func (s *stubQueueReader) PeekOldest(context.Context) (core.QueueEntry, bool, error) {
	return s.oldest, s.found, s.err
}

func (s *stubQueueReader) ListEntries(_ context.Context, limit int, offset int) ([]core.QueueEntry, error) {
	s.listLimit = limit
	s.listSkip = offset
	return s.entries, s.err
}

func TestQueueStatsQuery_Delegates(t *testing.T) {
	oldestAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reader := &stubQueueReader{stats: core.QueueStats{Depth: 4, OldestID: 9, OldestAt: &oldestAt}}

	stats, err := NewQueueStatsQuery(reader).Query(context.Background(), QueueStatsMessage{})
	if err != nil {
		t.Fatalf("query stats: %v", err)
	}
	if stats.Depth != 4 || stats.OldestID != 9 || !stats.OldestAt.Equal(oldestAt) {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestPeekOldestQuery_ReportsEmptyQueue(t *testing.T) {
	out, err := NewPeekOldestQuery(&stubQueueReader{}).Query(context.Background(), PeekOldestMessage{})
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if out.Found {
		t.Fatalf("expected empty queue, got %#v", out)
	}

	reader := &stubQueueReader{oldest: core.QueueEntry{ID: 2, URI: "/a"}, found: true}
	out, err = NewPeekOldestQuery(reader).Query(context.Background(), PeekOldestMessage{})
	if err != nil || !out.Found || out.Entry.ID != 2 {
		t.Fatalf("unexpected peek result %#v err=%v", out, err)
	}
}

func TestPeekOldestQuery_PropagatesStoreError(t *testing.T) {
	failure := errors.New("db down")
	_, err := NewPeekOldestQuery(&stubQueueReader{err: failure}).Query(context.Background(), PeekOldestMessage{})
	if !errors.Is(err, failure) {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestListEntriesQuery_ValidatesAndDelegates(t *testing.T) {
	reader := &stubQueueReader{entries: []core.QueueEntry{{ID: 1}, {ID: 2}}}
	entries, err := NewListEntriesQuery(reader).Query(context.Background(), ListEntriesMessage{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || reader.listLimit != 2 || reader.listSkip != 3 {
		t.Fatalf("unexpected delegation entries=%d limit=%d offset=%d", len(entries), reader.listLimit, reader.listSkip)
	}

	for _, msg := range []ListEntriesMessage{{Limit: -1}, {Limit: MaxListLimit + 1}, {Offset: -5}} {
		_, err := NewListEntriesQuery(reader).Query(context.Background(), msg)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%#v: expected go-errors envelope, got %T", msg, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorBadInput || rich.Code != http.StatusBadRequest {
			t.Fatalf("%#v: unexpected envelope %+v", msg, rich)
		}
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var stats *QueueStatsQuery
	_, err := stats.Query(context.Background(), QueueStatsMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if _, err := NewListEntriesQuery(nil).Query(context.Background(), ListEntriesMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil reader")
	}
}
