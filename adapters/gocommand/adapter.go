package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	requecommand "github.com/goliatone/go-reque/command"
	"github.com/goliatone/go-reque/core"
	requequery "github.com/goliatone/go-reque/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so cycles can also be scheduled as background jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Relay is everything the relay's command and query handlers need.
type Relay interface {
	requecommand.Dispatcher
	requecommand.Ingester
	requequery.QueueReader
}

// RelaySubscriptions holds the dispatcher subscriptions created by RegisterRelay.
type RelaySubscriptions struct {
	subs []commanddispatcher.Subscription
}

func (s *RelaySubscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range s.subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	s.subs = nil
}

// RegisterRelay registers and subscribes the dispatch and ingest commands and
// the queue queries for relay. On error nothing stays subscribed.
func RegisterRelay(adapter *RegistryAdapter, relay Relay, runnerOpts ...runner.Option) (*RelaySubscriptions, error) {
	if relay == nil {
		return nil, fmt.Errorf("gocommand: relay is required")
	}
	out := &RelaySubscriptions{}
	track := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			out.Unsubscribe()
			return err
		}
		out.subs = append(out.subs, sub)
		return nil
	}

	if err := track(RegisterAndSubscribe[requecommand.DispatchCycleMessage](adapter, requecommand.NewDispatchCycleCommand(relay), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe[requecommand.IngestRequestMessage](adapter, requecommand.NewIngestRequestCommand(relay), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[requequery.QueueStatsMessage, core.QueueStats](adapter, requequery.NewQueueStatsQuery(relay), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[requequery.PeekOldestMessage, requequery.OldestEntry](adapter, requequery.NewPeekOldestQuery(relay), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[requequery.ListEntriesMessage, []core.QueueEntry](adapter, requequery.NewListEntriesQuery(relay), runnerOpts...)); err != nil {
		return nil, err
	}
	return out, nil
}

// DispatchCycle runs one cycle through the command dispatcher and returns the
// report stored by the handler.
func DispatchCycle(ctx context.Context) (core.CycleReport, error) {
	collector := command.NewResult[core.CycleReport]()
	err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), requecommand.DispatchCycleMessage{})
	report, _ := collector.Load()
	return report, err
}

// IngestRequest queues req through the command dispatcher.
func IngestRequest(ctx context.Context, req core.InboundRequest) (core.IngestReceipt, error) {
	collector := command.NewResult[core.IngestReceipt]()
	err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), requecommand.IngestRequestMessage{Request: req})
	receipt, _ := collector.Load()
	return receipt, err
}

func QueueStats(ctx context.Context) (core.QueueStats, error) {
	return commanddispatcher.Query[requequery.QueueStatsMessage, core.QueueStats](ctx, requequery.QueueStatsMessage{})
}

func PeekOldest(ctx context.Context) (requequery.OldestEntry, error) {
	return commanddispatcher.Query[requequery.PeekOldestMessage, requequery.OldestEntry](ctx, requequery.PeekOldestMessage{})
}

func ListEntries(ctx context.Context, limit int, offset int) ([]core.QueueEntry, error) {
	return commanddispatcher.Query[requequery.ListEntriesMessage, []core.QueueEntry](ctx, requequery.ListEntriesMessage{Limit: limit, Offset: offset})
}

var _ Relay = (*core.Service)(nil)
