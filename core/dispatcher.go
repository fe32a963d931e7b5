package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	TriggerClock  = "clock"
	TriggerManual = "manual"
)

type CycleOutcome string

const (
	CycleIdle         CycleOutcome = "idle"
	CyclePeekFailed   CycleOutcome = "peek_failed"
	CycleRetained     CycleOutcome = "retained"
	CycleRemoved      CycleOutcome = "removed"
	CycleDeleteFailed CycleOutcome = "delete_failed"
)

var ErrDispatcherRunning = errors.New("core: dispatcher loop is already running")

type DispatcherConfig struct {
	Proto       string
	Destination string
	Interval    time.Duration
	Policy      RemovalPolicy
}

func DispatcherConfigFrom(cfg Config) DispatcherConfig {
	return DispatcherConfig{
		Proto:       cfg.Proto(),
		Destination: cfg.Destination(),
		Interval:    cfg.Interval(),
		Policy:      cfg.Policy(),
	}
}

// CycleReport describes one peek, deliver, policy, delete pass.
type CycleReport struct {
	Sequence       uint64
	Trigger        string
	StartedAt      time.Time
	Duration       time.Duration
	Outcome        CycleOutcome
	EntryID        int64
	Reference      string
	URI            string
	Delivery       DeliveryResult
	Removed        bool
	RemovalReasons []string
	Err            error
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.telemetry = newTelemetry(logger, d.telemetry.metrics)
	}
}

func WithDispatcherMetrics(recorder MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.telemetry = newTelemetry(d.telemetry.logger, recorder)
	}
}

func WithCycleHook(hook CycleHook) DispatcherOption {
	return func(d *Dispatcher) {
		if hook != nil {
			d.hooks = append(d.hooks, hook)
		}
	}
}

// Dispatcher drains the queue one entry per cycle. Cycles never overlap: the
// clock loop and manual triggers share cycleMu, so at most one delivery to the
// destination is in flight.
type Dispatcher struct {
	store     QueueStore
	forwarder Forwarder
	config    DispatcherConfig
	telemetry telemetry
	hooks     []CycleHook

	cycleMu  sync.Mutex
	sequence atomic.Uint64
	running  atomic.Bool
}

func NewDispatcher(
	store QueueStore,
	forwarder Forwarder,
	config DispatcherConfig,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: queue store is required")
	}
	if forwarder == nil {
		return nil, fmt.Errorf("core: forwarder is required")
	}
	config.Proto = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(config.Proto)), "://")
	if config.Proto == "" {
		config.Proto = DefaultHTTPProto
	}
	config.Destination = strings.TrimRight(strings.TrimSpace(config.Destination), "/")
	if config.Destination == "" {
		return nil, fmt.Errorf("core: dispatcher destination is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("core: dispatcher interval must be positive")
	}

	d := &Dispatcher{
		store:     store,
		forwarder: forwarder,
		config:    config,
		telemetry: newTelemetry(nil, nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(d)
	}
	return d, nil
}

func (d *Dispatcher) Config() DispatcherConfig {
	if d == nil {
		return DispatcherConfig{}
	}
	return d.config
}

// Run drives cycles until ctx is cancelled. The first cycle starts
// immediately; each later cycle starts at previous start + interval, or right
// after the previous cycle when that one overran.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil {
		return fmt.Errorf("core: dispatcher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.running.CompareAndSwap(false, true) {
		return ErrDispatcherRunning
	}
	defer d.running.Store(false)

	d.telemetry.log(ctx, levelInfo, "dispatcher started", map[string]any{
		"destination": d.config.Proto + "://" + d.config.Destination,
		"interval_ms": d.config.Interval.Milliseconds(),
	})

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.telemetry.log(context.WithoutCancel(ctx), levelInfo, "dispatcher stopped", nil)
			return nil
		case <-timer.C:
		}

		startedAt := time.Now()
		// Failures are logged inside the cycle; the next tick starts fresh.
		_, _ = d.runCycle(ctx, TriggerClock, startedAt)

		wait := time.Until(startedAt.Add(d.config.Interval))
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// RunCycle executes one cycle outside the clock loop. It waits for any cycle
// already in progress.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleReport, error) {
	if d == nil {
		return CycleReport{}, fmt.Errorf("core: dispatcher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return d.runCycle(ctx, TriggerManual, time.Now())
}

func (d *Dispatcher) Running() bool {
	return d != nil && d.running.Load()
}

func (d *Dispatcher) runCycle(ctx context.Context, trigger string, startedAt time.Time) (CycleReport, error) {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	// A started cycle always finishes, so shutdown never strands a delivery
	// between forward and delete.
	cycleCtx := context.WithoutCancel(ctx)

	report := CycleReport{
		Sequence:  d.sequence.Add(1),
		Trigger:   trigger,
		StartedAt: startedAt,
	}
	for _, hook := range d.hooks {
		hook.OnCycleStart(cycleCtx, CycleEvent{
			Sequence:  report.Sequence,
			StartedAt: startedAt,
			Trigger:   trigger,
		})
	}

	err := d.cycle(cycleCtx, &report)
	report.Duration = time.Since(startedAt)
	report.Err = err

	d.telemetry.counter(cycleCtx, MetricCycleTotal, 1, map[string]string{
		"outcome": string(report.Outcome),
		"trigger": trigger,
	})
	for _, hook := range d.hooks {
		hook.OnCycleEnd(cycleCtx, report)
	}
	return report, err
}

func (d *Dispatcher) cycle(ctx context.Context, report *CycleReport) error {
	entry, found, err := d.store.PeekOldest(ctx)
	if err != nil {
		report.Outcome = CyclePeekFailed
		d.telemetry.log(ctx, levelWarn, "dispatch peek failed", errorFields(map[string]any{
			"sequence": report.Sequence,
		}, err))
		return nil
	}
	if !found {
		report.Outcome = CycleIdle
		return nil
	}

	report.EntryID = entry.ID
	report.Reference = entry.Reference
	report.URI = entry.URI

	result := d.forwarder.Deliver(ctx, DeliveryRequest{
		Proto: d.config.Proto,
		Host:  d.config.Destination,
		URI:   entry.URI,
		Body:  entry.Body,
	})
	report.Delivery = result
	d.telemetry.histogram(ctx, MetricDeliverDurationMS, float64(result.Duration.Milliseconds()), map[string]string{
		"success": fmt.Sprint(result.Success),
	})

	fields := map[string]any{
		"sequence":    report.Sequence,
		"id":          entry.ID,
		"reference":   entry.Reference,
		"uri":         entry.URI,
		"success":     result.Success,
		"status_code": result.StatusCode,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		d.telemetry.log(ctx, levelWarn, "delivery attempt failed", errorFields(fields, result.Err))
	}

	reasons := d.config.Policy.Reasons(result.Success)
	if len(reasons) == 0 {
		report.Outcome = CycleRetained
		d.telemetry.log(ctx, levelInfo, "entry retained for redelivery", fields)
		return nil
	}

	var deleteErr error
	for _, reason := range reasons {
		if err := d.store.Delete(ctx, entry.ID); err != nil {
			deleteErr = errors.Join(deleteErr, err)
			d.telemetry.counter(ctx, MetricDeleteTotal, 1, map[string]string{"status": "failure", "reason": reason})
			continue
		}
		report.Removed = true
		report.RemovalReasons = append(report.RemovalReasons, reason)
		d.telemetry.counter(ctx, MetricDeleteTotal, 1, map[string]string{"status": "success", "reason": reason})
	}

	fields["reasons"] = strings.Join(reasons, ",")
	if !report.Removed {
		report.Outcome = CycleDeleteFailed
		d.telemetry.log(ctx, levelError, "entry removal failed, skipping cycle", errorFields(fields, deleteErr))
		return deleteErr
	}
	report.Outcome = CycleRemoved
	if deleteErr != nil {
		d.telemetry.log(ctx, levelWarn, "entry removed with partial delete failure", errorFields(fields, deleteErr))
		return nil
	}
	d.telemetry.log(ctx, levelInfo, "entry removed from queue", fields)
	return nil
}
