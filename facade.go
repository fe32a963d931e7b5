package reque

import (
	"fmt"

	requecommand "github.com/goliatone/go-reque/command"
	requequery "github.com/goliatone/go-reque/query"
)

// CommandQueryService is what the facade's handlers call into.
type CommandQueryService interface {
	requecommand.Dispatcher
	requecommand.Ingester
	requequery.QueueReader
}

type Commands struct {
	DispatchCycle *requecommand.DispatchCycleCommand
	IngestRequest *requecommand.IngestRequestCommand
}

type Queries struct {
	QueueStats  *requequery.QueueStatsQuery
	PeekOldest  *requequery.PeekOldestQuery
	ListEntries *requequery.ListEntriesQuery
}

// Facade bundles the command and query handlers bound to one service, for
// hosts that register them with their own dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	reader requequery.QueueReader
}

// WithQueueReader serves the queries from reader instead of the service,
// e.g. a read replica.
func WithQueueReader(reader requequery.QueueReader) FacadeOption {
	return func(options *facadeOptions) {
		options.reader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("reque: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	reader := cfg.reader
	if reader == nil {
		reader = service
	}

	return &Facade{
		service: service,
		commands: Commands{
			DispatchCycle: requecommand.NewDispatchCycleCommand(service),
			IngestRequest: requecommand.NewIngestRequestCommand(service),
		},
		queries: Queries{
			QueueStats:  requequery.NewQueueStatsQuery(reader),
			PeekOldest:  requequery.NewPeekOldestQuery(reader),
			ListEntries: requequery.NewListEntriesQuery(reader),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
