// Package reque relays captured webhook requests to a fixed destination, one
// queued request per tick, oldest first.
package reque

import (
	"net/http"

	"github.com/goliatone/go-reque/core"
	"github.com/goliatone/go-reque/inbound"
	"github.com/goliatone/go-reque/transport"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type QueueStore = core.QueueStore
type QueueEntry = core.QueueEntry
type QueueStats = core.QueueStats
type Forwarder = core.Forwarder
type CycleHook = core.CycleHook
type CycleReport = core.CycleReport
type InboundRequest = core.InboundRequest
type IngestReceipt = core.IngestReceipt

var (
	WithLogger                    = core.WithLogger
	WithLoggerProvider            = core.WithLoggerProvider
	WithMetricsRecorder           = core.WithMetricsRecorder
	WithErrorMapper               = core.WithErrorMapper
	WithConfigProvider            = core.WithConfigProvider
	WithOptionsResolver           = core.WithOptionsResolver
	WithQueueStore                = core.WithQueueStore
	WithForwarder                 = core.WithForwarder
	WithServiceCycleHook          = core.WithServiceCycleHook
	WithServiceIngestErrorHandler = core.WithServiceIngestErrorHandler
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds a service that forwards over HTTP with cfg's timeout. A
// WithForwarder option in opts replaces the HTTP forwarder.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithForwarder(transport.NewHTTPForwarderFromConfig(cfg)))
	all = append(all, opts...)
	return core.Setup(cfg, all...)
}

// Handler returns the inbound HTTP surface for svc.
func Handler(svc *Service, opts ...inbound.RouterOption) (http.Handler, error) {
	if svc == nil {
		return nil, core.ConfigError(nil, "reque: service is required")
	}
	router, err := inbound.NewRouter(svc, inbound.RouterConfigFrom(svc.Config()), opts...)
	if err != nil {
		return nil, err
	}
	return router.Handler(), nil
}
