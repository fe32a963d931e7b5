package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) hasCounter(name string, key string, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.counters {
		if item.name == name && item.tags[key] == value {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func hasLog(items []capturedLog, level string, message string) bool {
	for _, item := range items {
		if item.level == level && item.msg == message {
			return true
		}
	}
	return false
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// scriptedForwarder replays a fixed list of outcomes, repeating the last one.
type scriptedForwarder struct {
	mu       sync.Mutex
	outcomes []bool
	calls    []DeliveryRequest
	delay    time.Duration
	inFlight int
	maxSeen  int
}

func (f *scriptedForwarder) Deliver(_ context.Context, req DeliveryRequest) DeliveryResult {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	index := len(f.calls)
	f.calls = append(f.calls, req)
	success := true
	if len(f.outcomes) > 0 {
		if index >= len(f.outcomes) {
			index = len(f.outcomes) - 1
		}
		success = f.outcomes[index]
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	status := 200
	if !success {
		status = 500
	}
	return DeliveryResult{Success: success, StatusCode: status, URL: req.Proto + "://" + req.Host + req.URI}
}

func (f *scriptedForwarder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *scriptedForwarder) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

// faultyStore wraps a memory store and fails selected operations.
type faultyStore struct {
	*MemoryQueueStore
	mu           sync.Mutex
	failEnqueue  bool
	failPeek     bool
	failDeletes  int
	deleteCalls  int
	enqueueCalls int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryQueueStore: NewMemoryQueueStore()}
}

func (s *faultyStore) Enqueue(ctx context.Context, entry QueueEntry) (int64, error) {
	s.mu.Lock()
	s.enqueueCalls++
	fail := s.failEnqueue
	s.mu.Unlock()
	if fail {
		return 0, StoreError(errors.New("disk full"), "enqueue failed", nil)
	}
	return s.MemoryQueueStore.Enqueue(ctx, entry)
}

func (s *faultyStore) PeekOldest(ctx context.Context) (QueueEntry, bool, error) {
	s.mu.Lock()
	fail := s.failPeek
	s.mu.Unlock()
	if fail {
		return QueueEntry{}, false, StoreError(errors.New("database is locked"), "peek failed", nil)
	}
	return s.MemoryQueueStore.PeekOldest(ctx)
}

func (s *faultyStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	s.deleteCalls++
	fail := s.failDeletes > 0
	if fail {
		s.failDeletes--
	}
	s.mu.Unlock()
	if fail {
		return StoreError(errors.New("database is locked"), "delete failed", map[string]any{"id": id})
	}
	return s.MemoryQueueStore.Delete(ctx, id)
}

type recordingHook struct {
	mu      sync.Mutex
	starts  []CycleEvent
	reports []CycleReport
}

func (h *recordingHook) OnCycleStart(_ context.Context, event CycleEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts = append(h.starts, event)
}

func (h *recordingHook) OnCycleEnd(_ context.Context, report CycleReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, report)
}

func (h *recordingHook) snapshot() ([]CycleEvent, []CycleReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CycleEvent(nil), h.starts...), append([]CycleReport(nil), h.reports...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "sqlite://file::memory:"
	cfg.HTTPDest = "dest.example:9000"
	return cfg
}

func seedEntries(store QueueStore, uris ...string) []int64 {
	ids := make([]int64, 0, len(uris))
	for _, uri := range uris {
		id, err := store.Enqueue(context.Background(), QueueEntry{Method: "POST", URI: uri, Body: []byte(uri)})
		if err != nil {
			panic(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func waitFor(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}
