package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	queueStore      QueueStore
	forwarder       Forwarder
	cycleHooks      []CycleHook
	ingestErrors    IngestErrorHandler
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithQueueStore(store QueueStore) Option {
	return func(b *serviceBuilder) {
		b.queueStore = store
	}
}

func WithForwarder(forwarder Forwarder) Option {
	return func(b *serviceBuilder) {
		b.forwarder = forwarder
	}
}

func WithServiceCycleHook(hook CycleHook) Option {
	return func(b *serviceBuilder) {
		if hook != nil {
			b.cycleHooks = append(b.cycleHooks, hook)
		}
	}
}

func WithServiceIngestErrorHandler(handler IngestErrorHandler) Option {
	return func(b *serviceBuilder) {
		b.ingestErrors = handler
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("reque", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

// StaticRawConfigLoader serves a fixed map; handy for tests and embedding.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load overlays the loader's raw values on defaults. Validation is deferred to
// the resolver so runtime overrides can still fill required keys.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, ConfigError(err, "core: config load failed")
	}
	cfg, err := cfgx.Build[Config](normalizeRawConfig(raw),
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, ConfigError(err, "core: config decode failed")
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime. The loaded layer
// already carries defaults, so it is taken whole; runtime only contributes the
// fields it sets.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, nil),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, nil),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, &defaults),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, ConfigError(err, "core: config decode failed")
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens cfg into an options layer. With a baseline only
// overrides are kept: non-empty strings and non-zero ints, and bools that
// differ from the baseline, so a runtime false can switch off a default true.
func configToLayerMap(cfg Config, baseline *Config) map[string]any {
	layer := map[string]any{}
	setString := func(key string, value string) {
		if baseline == nil || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setInt := func(key string, value int) {
		if baseline == nil || value != 0 {
			layer[key] = value
		}
	}
	setBool := func(key string, value bool, base bool) {
		if baseline == nil || value != base {
			layer[key] = value
		}
	}
	base := Config{}
	if baseline != nil {
		base = *baseline
	}

	setString("service_name", cfg.ServiceName)
	setInt("reque_service_port", cfg.ServicePort)
	setBool("require_success", cfg.RequireSuccess, base.RequireSuccess)
	setBool("remove_from_queue_on_failure", cfg.RemoveOnFailure, base.RemoveOnFailure)
	setString("database_url", cfg.DatabaseURL)
	setString("http_dest", cfg.HTTPDest)
	setString("http_proto", cfg.HTTPProto)
	setInt("reque_interval", cfg.RequeInterval)
	setInt("forward_timeout", cfg.ForwardTimeout)
	setString("log_path", cfg.LogPath)
	setString("log_level", cfg.LogLevel)
	setString("log_format", cfg.LogFormat)
	setBool("ingest_async", cfg.IngestAsync, base.IngestAsync)
	setBool("capture_headers", cfg.CaptureHeaders, base.CaptureHeaders)
	setBool("admin_enabled", cfg.AdminEnabled, base.AdminEnabled)
	return layer
}
