package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// QueueEntry is one persisted, replayable representation of an inbound request.
type QueueEntry struct {
	ID         int64
	Reference  string
	Method     string
	Host       string
	Port       int
	URI        string
	Headers    string
	Body       []byte
	EnqueuedAt time.Time
}

// QueueStore owns entry identity and ordering. Implementations must make each
// operation independently atomic.
type QueueStore interface {
	Enqueue(ctx context.Context, entry QueueEntry) (int64, error)
	PeekOldest(ctx context.Context) (QueueEntry, bool, error)
	Delete(ctx context.Context, id int64) error
}

// QueueInspector is the read side used by admin queries and the info probe.
type QueueInspector interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, limit int, offset int) ([]QueueEntry, error)
}

type QueueStats struct {
	Depth      int
	OldestID   int64
	OldestAt   *time.Time
	ObservedAt time.Time
}

type QueueStatsReader interface {
	Stats(ctx context.Context) (QueueStats, error)
}

type DeliveryRequest struct {
	Proto string
	Host  string
	URI   string
	Body  []byte
}

type DeliveryResult struct {
	Success    bool
	StatusCode int
	URL        string
	Duration   time.Duration
	Err        error
}

// Forwarder issues exactly one outbound attempt per call and never retries.
type Forwarder interface {
	Deliver(ctx context.Context, req DeliveryRequest) DeliveryResult
}

type ForwarderFunc func(ctx context.Context, req DeliveryRequest) DeliveryResult

func (fn ForwarderFunc) Deliver(ctx context.Context, req DeliveryRequest) DeliveryResult {
	return fn(ctx, req)
}

// InboundRequest is the generic tuple captured from any inbound caller.
type InboundRequest struct {
	Method  string
	Host    string
	Port    int
	URI     string
	Headers map[string][]string
	Body    []byte
}

type IngestReceipt struct {
	Accepted  bool
	Reference string
	Async     bool
}

type IngestErrorHandler func(ctx context.Context, req InboundRequest, err error)

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// CycleHook observes dispatcher cycles. Hooks run on the dispatcher goroutine.
type CycleHook interface {
	OnCycleStart(ctx context.Context, event CycleEvent)
	OnCycleEnd(ctx context.Context, report CycleReport)
}

type CycleEvent struct {
	Sequence  uint64
	StartedAt time.Time
	Trigger   string
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
