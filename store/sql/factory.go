package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-reque/core"
	"github.com/goliatone/go-reque/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultPingTimeout = 5 * time.Second
)

// DatabaseConfig satisfies the go-persistence-bun client config contract.
type DatabaseConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return c.Driver
}

func (c DatabaseConfig) GetServer() string {
	return c.DSN
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-reque"
	}
	return c.OtelIdentifier
}

// ParseDatabaseURL maps database_url onto a driver and DSN. postgres:// and
// postgresql:// go to lib/pq; sqlite://, sqlite: and file: go to go-sqlite3.
func ParseDatabaseURL(raw string) (DatabaseConfig, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	switch {
	case trimmed == "":
		return DatabaseConfig{}, core.ConfigError(nil, "sqlstore: database_url is required")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DatabaseConfig{Driver: DriverPostgres, DSN: trimmed}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return sqliteConfig(trimmed[len("sqlite://"):])
	case strings.HasPrefix(lower, "sqlite:"):
		return sqliteConfig(trimmed[len("sqlite:"):])
	case strings.HasPrefix(lower, "file:"):
		return DatabaseConfig{Driver: DriverSQLite, DSN: trimmed}, nil
	default:
		scheme := lower
		if index := strings.Index(scheme, ":"); index >= 0 {
			scheme = scheme[:index]
		}
		return DatabaseConfig{}, core.ConfigError(nil, fmt.Sprintf("sqlstore: unsupported database_url scheme %q", scheme))
	}
}

func sqliteConfig(path string) (DatabaseConfig, error) {
	if strings.TrimSpace(path) == "" {
		return DatabaseConfig{}, core.ConfigError(nil, "sqlstore: sqlite database_url has no path")
	}
	return DatabaseConfig{Driver: DriverSQLite, DSN: path}, nil
}

type openOptions struct {
	debug       bool
	pingTimeout time.Duration
	skipMigrate bool
	statsTTL    time.Duration
}

type OpenOption func(*openOptions)

func WithDebug(debug bool) OpenOption {
	return func(o *openOptions) {
		o.debug = debug
	}
}

func WithPingTimeout(timeout time.Duration) OpenOption {
	return func(o *openOptions) {
		o.pingTimeout = timeout
	}
}

func WithoutMigrations() OpenOption {
	return func(o *openOptions) {
		o.skipMigrate = true
	}
}

func WithStatsTTL(ttl time.Duration) OpenOption {
	return func(o *openOptions) {
		o.statsTTL = ttl
	}
}

// Database owns the persistence client and the stores built on it.
type Database struct {
	config  DatabaseConfig
	dialect string
	client  *persistence.Client
	factory *RepositoryFactory
}

// Open connects to database_url, applies the embedded migrations for its
// dialect and builds the queue stores.
func Open(ctx context.Context, databaseURL string, opts ...OpenOption) (*Database, error) {
	options := openOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.Debug = options.debug
	cfg.PingTimeout = options.pingTimeout

	dialectName, err := migrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, core.ConfigError(err, "sqlstore: resolve migration dialect")
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, core.StoreError(err, "sqlstore: open database", map[string]any{"driver": cfg.Driver})
	}
	var bunDialect schema.Dialect = pgdialect.New()
	if cfg.Driver == DriverSQLite {
		// SQLite allows one writer; a single connection keeps in-memory
		// databases alive and avoids SQLITE_BUSY between the loop and ingest.
		sqlDB.SetMaxOpenConns(1)
		bunDialect = sqlitedialect.New()
	}

	client, err := persistence.New(cfg, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, core.StoreError(err, "sqlstore: create persistence client", map[string]any{"driver": cfg.Driver})
	}

	if !options.skipMigrate {
		if err := registerMigrations(ctx, client, dialectName); err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, core.StoreError(err, "sqlstore: apply migrations", map[string]any{"dialect": dialectName})
		}
	}

	factory, err := NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return nil, core.StoreError(err, "sqlstore: build stores", nil)
	}
	if err := factory.EnableStatsCache(options.statsTTL); err != nil {
		_ = client.Close()
		return nil, core.StoreError(err, "sqlstore: build stats cache", nil)
	}

	return &Database{
		config:  cfg,
		dialect: dialectName,
		client:  client,
		factory: factory,
	}, nil
}

func registerMigrations(ctx context.Context, client *persistence.Client, dialectName string) error {
	_, err := migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialectName))
	if err != nil {
		return core.StoreError(err, "sqlstore: register migrations", map[string]any{"dialect": dialectName})
	}
	return nil
}

func (d *Database) Config() DatabaseConfig {
	if d == nil {
		return DatabaseConfig{}
	}
	return d.config
}

func (d *Database) Dialect() string {
	if d == nil {
		return ""
	}
	return d.dialect
}

func (d *Database) Client() *persistence.Client {
	if d == nil {
		return nil
	}
	return d.client
}

func (d *Database) Factory() *RepositoryFactory {
	if d == nil {
		return nil
	}
	return d.factory
}

// QueueStore returns the cached store when the stats cache is enabled.
func (d *Database) QueueStore() core.QueueStore {
	if d == nil || d.factory == nil {
		return nil
	}
	if cached := d.factory.CachedQueueStats(); cached != nil {
		return cached
	}
	return d.factory.QueueStore()
}

func (d *Database) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

type RepositoryFactory struct {
	db *bun.DB

	queueStore  *QueueStore
	cachedStats *CachedQueueStats
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.queueStore != nil {
		return nil
	}
	queueStore, err := NewQueueStore(f.db)
	if err != nil {
		return err
	}
	f.queueStore = queueStore
	return nil
}

// EnableStatsCache wraps the queue store with a go-repository-cache backed
// stats snapshot.
func (f *RepositoryFactory) EnableStatsCache(ttl time.Duration) error {
	if f == nil || f.queueStore == nil {
		return fmt.Errorf("sqlstore: repository factory is not built")
	}
	cacheService, err := NewQueueStatsCache(ttl)
	if err != nil {
		return err
	}
	cached, err := NewCachedQueueStats(f.queueStore, cacheService)
	if err != nil {
		return err
	}
	f.cachedStats = cached
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) QueueStore() *QueueStore {
	if f == nil {
		return nil
	}
	return f.queueStore
}

func (f *RepositoryFactory) CachedQueueStats() *CachedQueueStats {
	if f == nil {
		return nil
	}
	return f.cachedStats
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
