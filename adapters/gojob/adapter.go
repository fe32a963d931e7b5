package gojob

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-reque/command"
	"github.com/goliatone/go-reque/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDIngest        = "reque.ingest"
	JobIDDispatchCycle = "reque.dispatch.cycle"

	ParamMethod  = "method"
	ParamHost    = "host"
	ParamPort    = "port"
	ParamURI     = "uri"
	ParamBody    = "body"
	ParamBodyB64 = "body_base64"
	ParamHeaders = "headers"

	ParamSequence = "sequence"
	ParamTrigger  = "trigger"
)

// RetryPolicy bounds how often a failed go-job delivery is retried.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. An
// empty disposition means retry. Once attempt reaches MaxAttempts a retry
// becomes dead_letter or failed, depending on DeadLetterOnMax.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry || out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	return out
}

// ToExecutionMessage encodes an inbound request as a go-job ingestion message.
// The body travels base64 encoded so binary payloads survive JSON backends.
func ToExecutionMessage(req core.InboundRequest, idempotencyKey string) *job.ExecutionMessage {
	params := map[string]any{
		ParamMethod:  req.Method,
		ParamHost:    req.Host,
		ParamPort:    req.Port,
		ParamURI:     req.URI,
		ParamBodyB64: base64.StdEncoding.EncodeToString(req.Body),
	}
	if len(req.Headers) > 0 {
		headers := make(map[string]any, len(req.Headers))
		for key, values := range req.Headers {
			headers[key] = append([]string(nil), values...)
		}
		params[ParamHeaders] = headers
	}
	return &job.ExecutionMessage{
		JobID:          JobIDIngest,
		ScriptPath:     JobIDIngest,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

// FromExecutionMessage decodes an ingestion message. Method defaults to POST
// and uri to "/".
func FromExecutionMessage(msg *job.ExecutionMessage) (core.InboundRequest, error) {
	if msg == nil {
		return core.InboundRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	params := msg.Parameters
	req := core.InboundRequest{
		Method: stringParam(params, ParamMethod),
		Host:   stringParam(params, ParamHost),
		URI:    stringParam(params, ParamURI),
	}
	if req.Method == "" {
		req.Method = "POST"
	}
	if req.URI == "" {
		req.URI = "/"
	}
	port, err := intParam(params, ParamPort)
	if err != nil {
		return core.InboundRequest{}, err
	}
	req.Port = port

	if encoded := stringParam(params, ParamBodyB64); encoded != "" {
		body, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil {
			return core.InboundRequest{}, fmt.Errorf("gojob: decode %s: %w", ParamBodyB64, decodeErr)
		}
		req.Body = body
	} else if raw, ok := params[ParamBody]; ok {
		switch typed := raw.(type) {
		case string:
			req.Body = []byte(typed)
		case []byte:
			req.Body = append([]byte(nil), typed...)
		default:
			return core.InboundRequest{}, fmt.Errorf("gojob: %s must be a string, got %T", ParamBody, raw)
		}
	}
	req.Headers = headersParam(params[ParamHeaders])
	return req, nil
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func intParam(params map[string]any, key string) (int, error) {
	value, ok := params[key]
	if !ok || value == nil {
		return 0, nil
	}
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		return int(typed), nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("gojob: %s must be an integer: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("gojob: %s must be an integer, got %T", key, value)
	}
}

func headersParam(raw any) map[string][]string {
	out := map[string][]string{}
	switch typed := raw.(type) {
	case map[string][]string:
		for key, values := range typed {
			out[key] = append([]string(nil), values...)
		}
	case map[string]any:
		for key, value := range typed {
			switch values := value.(type) {
			case []string:
				out[key] = append([]string(nil), values...)
			case []any:
				for _, item := range values {
					out[key] = append(out[key], fmt.Sprint(item))
				}
			case string:
				out[key] = []string{values}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Relay is the part of the service go-job messages can drive.
type Relay interface {
	command.Ingester
	command.Dispatcher
}

// MessageRouter accepts go-job execution messages and routes them by job id:
// ingestion messages become queued requests, dispatch messages run a cycle.
type MessageRouter struct {
	relay Relay
}

func NewMessageRouter(relay Relay) *MessageRouter {
	return &MessageRouter{relay: relay}
}

// Enqueue handles msg synchronously. The receipt's DispatchID is the queued
// entry reference for ingestion and the cycle key for dispatch.
func (r *MessageRouter) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if r == nil || r.relay == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: relay is not configured")
	}
	if msg == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: execution message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDIngest:
		req, err := FromExecutionMessage(msg)
		if err != nil {
			return queue.EnqueueReceipt{}, err
		}
		receipt := r.relay.Ingest(ctx, req)
		if !receipt.Accepted {
			return queue.EnqueueReceipt{}, fmt.Errorf("gojob: ingestion not accepted")
		}
		return queue.EnqueueReceipt{DispatchID: receipt.Reference, EnqueuedAt: time.Now().UTC()}, nil
	case JobIDDispatchCycle:
		report, err := r.relay.DispatchNow(ctx)
		if err != nil {
			return queue.EnqueueReceipt{}, err
		}
		return queue.EnqueueReceipt{
			DispatchID: JobIDDispatchCycle + ":" + strconv.FormatUint(report.Sequence, 10),
			EnqueuedAt: report.StartedAt,
		}, nil
	default:
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: unsupported job id %q", msg.JobID)
	}
}

// Consumer drains a go-job queue through a MessageRouter, acking handled
// deliveries and nacking failures under the retry policy.
type Consumer struct {
	dequeuer queue.Dequeuer
	router   *MessageRouter
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

func NewConsumer(dequeuer queue.Dequeuer, router *MessageRouter, policy RetryPolicy) *Consumer {
	return &Consumer{
		dequeuer: dequeuer,
		router:   router,
		policy:   policy,
		attempts: map[string]int{},
	}
}

// ConsumeOne handles a single delivery. The returned error is the handling
// failure, after the delivery has been nacked.
func (c *Consumer) ConsumeOne(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.router == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	key := attemptKey(msg)

	if _, handleErr := c.router.Enqueue(ctx, msg); handleErr != nil {
		attempt := c.recordFailure(key)
		opts := c.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionRetry,
			Reason:      handleErr.Error(),
		}, attempt)
		if opts.Disposition != queue.NackDispositionRetry {
			c.forget(key)
		}
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return fmt.Errorf("gojob: nack after %v: %w", handleErr, nackErr)
		}
		return handleErr
	}
	c.forget(key)
	return delivery.Ack(ctx)
}

func (c *Consumer) recordFailure(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID) + ":" + stringParam(msg.Parameters, ParamURI)
}

// CycleHookAdapter reports dispatcher cycles to a go-job worker hook, so the
// relay loop shows up in the same job telemetry as queue workers.
type CycleHookAdapter struct {
	hook worker.Hook
}

func NewCycleHookAdapter(hook worker.Hook) *CycleHookAdapter {
	return &CycleHookAdapter{hook: hook}
}

func (a *CycleHookAdapter) OnCycleStart(ctx context.Context, event core.CycleEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, worker.Event{
		Message:   cycleMessage(event.Sequence, event.Trigger),
		Attempt:   1,
		StartedAt: event.StartedAt,
	})
}

// OnCycleEnd maps outcomes: removed after a 200 and idle cycles succeed,
// retained entries retry, everything else fails.
func (a *CycleHookAdapter) OnCycleEnd(ctx context.Context, report core.CycleReport) {
	if a == nil || a.hook == nil {
		return
	}
	event := worker.Event{
		Message:   cycleMessage(report.Sequence, report.Trigger),
		Attempt:   1,
		Err:       report.Err,
		StartedAt: report.StartedAt,
		Duration:  report.Duration,
	}
	switch report.Outcome {
	case core.CycleIdle:
		a.hook.OnSuccess(ctx, event)
	case core.CycleRetained:
		if event.Err == nil {
			event.Err = report.Delivery.Err
		}
		a.hook.OnRetry(ctx, event)
	case core.CycleRemoved:
		if report.Delivery.Success {
			a.hook.OnSuccess(ctx, event)
			return
		}
		if event.Err == nil {
			event.Err = report.Delivery.Err
		}
		a.hook.OnFailure(ctx, event)
	default:
		if event.Err == nil {
			event.Err = fmt.Errorf("gojob: dispatch cycle %s", report.Outcome)
		}
		a.hook.OnFailure(ctx, event)
	}
}

func cycleMessage(sequence uint64, trigger string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDDispatchCycle,
		ScriptPath: JobIDDispatchCycle,
		Parameters: map[string]any{
			ParamSequence: sequence,
			ParamTrigger:  trigger,
		},
		IdempotencyKey: JobIDDispatchCycle + ":" + strconv.FormatUint(sequence, 10),
	}
}

var (
	_ queue.Enqueuer = (*MessageRouter)(nil)
	_ core.CycleHook = (*CycleHookAdapter)(nil)
	_ Relay          = (*core.Service)(nil)
)
