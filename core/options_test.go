package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func newTestService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithQueueStore(NewMemoryQueueStore()),
		WithForwarder(&scriptedForwarder{outcomes: []bool{true}}),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc := newTestService(t, testConfig())
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "reque" || cfg.ServicePort != DefaultServicePort || cfg.RequeInterval != DefaultRequeInterval {
		t.Fatalf("expected defaults to fill unset keys, got %+v", cfg)
	}
	if !cfg.IngestAsync {
		t.Fatalf("expected async ingest by default")
	}
}

func TestNewService_RequiresStoreAndForwarder(t *testing.T) {
	if _, err := NewService(testConfig(), WithForwarder(&scriptedForwarder{})); !IsStoreError(err) {
		t.Fatalf("expected store error without queue store, got %v", err)
	}
	if _, err := NewService(testConfig(), WithQueueStore(NewMemoryQueueStore())); !IsForwardError(err) {
		t.Fatalf("expected forward error without forwarder, got %v", err)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := newCaptureLogger()
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	resolvedCfg := testConfig()
	resolvedCfg.ServiceName = "resolved"
	configProvider := &fixedConfigProvider{cfg: testConfig()}
	optionsResolver := &fixedOptionsResolver{cfg: resolvedCfg}
	store := NewMemoryQueueStore()

	svc := newTestService(t, testConfig(),
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithQueueStore(store),
	)

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("reque.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if deps.QueueStore != store {
		t.Fatalf("expected last queue store option to win")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if mapped := svc.MapError(errors.New("boom")); mapped == nil || mapped.Message != "mapped" {
		t.Fatalf("expected custom error mapper, got %v", mapped)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name":                 "from-config",
		"database_url":                 "sqlite://reque.db",
		"http_dest":                    "config.example",
		"reque_interval":               "9",
		"require_success":              "true",
		"remove_from_queue_on_failure": false,
		"ingest_async":                 "false",
	}})

	svc := newTestService(t, Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.HTTPDest != "config.example" || cfg.DatabaseURL != "sqlite://reque.db" {
		t.Fatalf("expected config layer values, got %+v", cfg)
	}
	if cfg.RequeInterval != 9 || !cfg.RequireSuccess {
		t.Fatalf("expected string scalars to be coerced, got %+v", cfg)
	}
	if cfg.IngestAsync {
		t.Fatalf("expected config layer to turn off a default-true flag")
	}
	if cfg.ServicePort != DefaultServicePort {
		t.Fatalf("expected default port to survive layering, got %d", cfg.ServicePort)
	}
}

func TestNewService_InvalidConfigFails(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPDest = ""
	_, err := NewService(cfg,
		WithQueueStore(NewMemoryQueueStore()),
		WithForwarder(&scriptedForwarder{}),
	)
	if err == nil {
		t.Fatalf("expected missing http_dest to fail")
	}
	if !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNewService_LoaderFailureIsConfigError(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{err: errors.New("settings unreadable")})
	_, err := NewService(testConfig(),
		WithConfigProvider(provider),
		WithQueueStore(NewMemoryQueueStore()),
		WithForwarder(&scriptedForwarder{}),
	)
	if !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNewService_RuntimeFalseOverridesDefaultTrue(t *testing.T) {
	cfg := testConfig()
	cfg.IngestAsync = false
	svc := newTestService(t, cfg)
	if svc.Config().IngestAsync {
		t.Fatalf("expected runtime ingest_async=false to win over the default")
	}
}
