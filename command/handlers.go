package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-reque/core"
)

type Dispatcher interface {
	DispatchNow(ctx context.Context) (core.CycleReport, error)
}

type Ingester interface {
	Ingest(ctx context.Context, req core.InboundRequest) core.IngestReceipt
}

type DispatchCycleCommand struct {
	service Dispatcher
}

func NewDispatchCycleCommand(service Dispatcher) *DispatchCycleCommand {
	return &DispatchCycleCommand{service: service}
}

// Execute stores the cycle report even when removal failed, so callers can
// inspect the outcome alongside the error.
func (c *DispatchCycleCommand) Execute(ctx context.Context, _ DispatchCycleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	report, err := c.service.DispatchNow(ctx)
	storeResult(ctx, report)
	return err
}

type IngestRequestCommand struct {
	service Ingester
}

func NewIngestRequestCommand(service Ingester) *IngestRequestCommand {
	return &IngestRequestCommand{service: service}
}

func (c *IngestRequestCommand) Execute(ctx context.Context, msg IngestRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	storeResult(ctx, c.service.Ingest(ctx, msg.Request))
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
