package core

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrInspectionUnsupported = errors.New("core: queue store does not support inspection")

const defaultListLimit = 50

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	store           QueueStore
	forwarder       Forwarder
	dispatcher      *Dispatcher
	ingestor        *Ingestor
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	QueueStore      QueueStore
	Forwarder       Forwarder
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("reque", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.queueStore == nil {
		return nil, mapBuildError(builder.errorMapper, StoreError(nil, "core: queue store is required", nil))
	}
	if builder.forwarder == nil {
		return nil, mapBuildError(builder.errorMapper, ForwardError(nil, "core: forwarder is required", nil))
	}

	dispatcherOpts := []DispatcherOption{
		WithDispatcherLogger(namedLogger(provider, "reque.dispatcher", logger)),
		WithDispatcherMetrics(builder.metricsRecorder),
	}
	for _, hook := range builder.cycleHooks {
		dispatcherOpts = append(dispatcherOpts, WithCycleHook(hook))
	}
	dispatcher, err := NewDispatcher(builder.queueStore, builder.forwarder, DispatcherConfigFrom(finalConfig), dispatcherOpts...)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	ingestor, err := NewIngestor(builder.queueStore, IngestorConfigFrom(finalConfig),
		WithIngestorLogger(namedLogger(provider, "reque.ingest", logger)),
		WithIngestorMetrics(builder.metricsRecorder),
		WithIngestErrorHandler(builder.ingestErrors),
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		store:           builder.queueStore,
		forwarder:       builder.forwarder,
		dispatcher:      dispatcher,
		ingestor:        ingestor,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func namedLogger(provider LoggerProvider, name string, fallback Logger) Logger {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return named
		}
	}
	return fallback
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		QueueStore:      s.store,
		Forwarder:       s.forwarder,
	}
}

func (s *Service) Dispatcher() *Dispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

func (s *Service) Ingestor() *Ingestor {
	if s == nil {
		return nil
	}
	return s.ingestor
}

// Run blocks on the dispatch loop until ctx is cancelled, then waits for
// detached enqueues to land.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return errors.New("core: service is nil")
	}
	err := s.dispatcher.Run(ctx)
	s.ingestor.Wait()
	return err
}

func (s *Service) Ingest(ctx context.Context, req InboundRequest) IngestReceipt {
	return s.ingestor.Ingest(ctx, req)
}

func (s *Service) DispatchNow(ctx context.Context) (CycleReport, error) {
	report, err := s.dispatcher.RunCycle(ctx)
	if err != nil {
		return report, s.MapError(err)
	}
	return report, nil
}

func (s *Service) PeekOldest(ctx context.Context) (QueueEntry, bool, error) {
	entry, found, err := s.store.PeekOldest(ctx)
	if err != nil {
		return QueueEntry{}, false, s.MapError(err)
	}
	return entry, found, nil
}

func (s *Service) QueueStats(ctx context.Context) (QueueStats, error) {
	if reader, ok := s.store.(QueueStatsReader); ok {
		stats, err := reader.Stats(ctx)
		if err != nil {
			return QueueStats{}, s.MapError(err)
		}
		return stats, nil
	}
	inspector, ok := s.store.(QueueInspector)
	if !ok {
		return QueueStats{}, s.MapError(ErrInspectionUnsupported)
	}
	count, err := inspector.Count(ctx)
	if err != nil {
		return QueueStats{}, s.MapError(err)
	}
	stats := QueueStats{Depth: count, ObservedAt: time.Now().UTC()}
	entry, found, err := s.store.PeekOldest(ctx)
	if err != nil {
		return QueueStats{}, s.MapError(err)
	}
	if found {
		enqueuedAt := entry.EnqueuedAt
		stats.OldestID = entry.ID
		stats.OldestAt = &enqueuedAt
	}
	return stats, nil
}

func (s *Service) ListEntries(ctx context.Context, limit int, offset int) ([]QueueEntry, error) {
	inspector, ok := s.store.(QueueInspector)
	if !ok {
		return nil, s.MapError(ErrInspectionUnsupported)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := inspector.List(ctx, limit, offset)
	if err != nil {
		return nil, s.MapError(err)
	}
	return entries, nil
}

// MapError converts err into the service's error envelope.
func (s *Service) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	mapper := defaultErrorMapper
	if s != nil && s.errorMapper != nil {
		mapper = s.errorMapper
	}
	mapped := mapper(err)
	if mapped == nil {
		return defaultErrorMapper(err)
	}
	return mapped
}
