package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type IngestorConfig struct {
	Async          bool
	CaptureHeaders bool
}

func IngestorConfigFrom(cfg Config) IngestorConfig {
	return IngestorConfig{
		Async:          cfg.IngestAsync,
		CaptureHeaders: cfg.CaptureHeaders,
	}
}

type IngestorOption func(*Ingestor)

func WithIngestorLogger(logger Logger) IngestorOption {
	return func(i *Ingestor) {
		i.telemetry = newTelemetry(logger, i.telemetry.metrics)
	}
}

func WithIngestorMetrics(recorder MetricsRecorder) IngestorOption {
	return func(i *Ingestor) {
		i.telemetry = newTelemetry(i.telemetry.logger, recorder)
	}
}

func WithIngestErrorHandler(handler IngestErrorHandler) IngestorOption {
	return func(i *Ingestor) {
		i.onError = handler
	}
}

func WithIngestorClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

// Ingestor turns inbound requests into queue entries. The caller is always
// acknowledged; persistence failures surface only through logs, metrics and
// the optional error handler.
type Ingestor struct {
	store     QueueStore
	config    IngestorConfig
	telemetry telemetry
	onError   IngestErrorHandler
	now       func() time.Time

	inflight sync.WaitGroup
}

func NewIngestor(store QueueStore, config IngestorConfig, opts ...IngestorOption) (*Ingestor, error) {
	if store == nil {
		return nil, fmt.Errorf("core: queue store is required")
	}
	i := &Ingestor{
		store:     store,
		config:    config,
		telemetry: newTelemetry(nil, nil),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(i)
	}
	return i, nil
}

// Ingest persists req and returns an acceptance receipt. In async mode the
// write happens off the request path and survives cancellation of ctx.
func (i *Ingestor) Ingest(ctx context.Context, req InboundRequest) IngestReceipt {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := i.BuildEntry(req, i.now())
	receipt := IngestReceipt{
		Accepted:  true,
		Reference: entry.Reference,
		Async:     i.config.Async,
	}

	if !i.config.Async {
		i.persist(ctx, entry, req)
		return receipt
	}

	detached := context.WithoutCancel(ctx)
	i.inflight.Add(1)
	go func() {
		defer i.inflight.Done()
		i.persist(detached, entry, req)
	}()
	return receipt
}

// BuildEntry derives the queue entry for req at the given time.
func (i *Ingestor) BuildEntry(req InboundRequest, now time.Time) QueueEntry {
	entry := QueueEntry{
		Reference:  uuid.NewString(),
		Method:     strings.ToUpper(strings.TrimSpace(req.Method)),
		Host:       strings.TrimSpace(req.Host),
		Port:       req.Port,
		URI:        req.URI,
		Body:       append([]byte(nil), req.Body...),
		EnqueuedAt: now.UTC(),
	}
	if entry.URI == "" {
		entry.URI = "/"
	}
	if i != nil && i.config.CaptureHeaders {
		entry.Headers = encodeHeaders(req.Headers)
	}
	return entry
}

// Wait blocks until every detached enqueue has finished.
func (i *Ingestor) Wait() {
	if i == nil {
		return
	}
	i.inflight.Wait()
}

func (i *Ingestor) persist(ctx context.Context, entry QueueEntry, req InboundRequest) {
	fields := map[string]any{
		"reference": entry.Reference,
		"method":    entry.Method,
		"uri":       entry.URI,
		"bytes":     len(entry.Body),
	}
	id, err := i.store.Enqueue(ctx, entry)
	if err != nil {
		i.telemetry.counter(ctx, MetricIngestTotal, 1, map[string]string{"status": "failure"})
		i.telemetry.log(ctx, levelError, "enqueue failed, request dropped", errorFields(fields, err))
		if i.onError != nil {
			i.onError(ctx, req, err)
		}
		return
	}
	fields["id"] = id
	i.telemetry.counter(ctx, MetricIngestTotal, 1, map[string]string{"status": "success"})
	i.telemetry.log(ctx, levelDebug, "request enqueued", fields)
}

func encodeHeaders(headers map[string][]string) string {
	if len(headers) == 0 {
		return ""
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return ""
	}
	return string(raw)
}
