// Package migrations exposes the embedded queue schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	reque "github.com/goliatone/go-reque"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-reque"

	rootPath  = "data/sql/migrations"
	sqliteDir = "sqlite"
	upPattern = "*.up.sql"
)

// DialectForDriver maps a database/sql driver name onto a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "pgx", "pq":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Source is the migration tree for one dialect. PostgreSQL files live at the
// root, SQLite variants under sqlite/.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(dialects ...string) Option {
	return func(r *Registration) {
		var next []string
		for _, dialect := range dialects {
			dialect = strings.TrimSpace(strings.ToLower(dialect))
			if dialect == "" || containsDialect(next, dialect) {
				continue
			}
			next = append(next, dialect)
		}
		if len(next) > 0 {
			r.Dialects = next
		}
	}
}

// WithSources replaces the embedded schema, e.g. with a patched copy on disk.
func WithSources(sources ...Source) Option {
	return func(r *Registration) {
		var next []Source
		for _, source := range sources {
			dialect := strings.TrimSpace(strings.ToLower(source.Dialect))
			if dialect == "" || source.FS == nil {
				continue
			}
			next = append(next, Source{Dialect: dialect, Path: source.Path, FS: source.FS})
		}
		if len(next) > 0 {
			r.Sources = next
		}
	}
}

// Sources splits a migration tree into per-dialect sources. With no root the
// embedded tree is used. root may hold data/sql/migrations or be that
// directory itself.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = reque.GetMigrationsFS()
	}
	base, basePath := root, "."
	if sub, err := fs.Sub(root, rootPath); err == nil {
		if matches, _ := fs.Glob(sub, upPattern); len(matches) > 0 {
			base, basePath = sub, rootPath
		}
	}
	sqliteFS, err := fs.Sub(base, sqliteDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite migrations: %w", err)
	}

	sqlitePath := sqliteDir
	if basePath != "." {
		sqlitePath = basePath + "/" + sqliteDir
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: sqlitePath, FS: sqliteFS},
	}
	for _, source := range sources {
		matches, globErr := fs.Glob(source.FS, upPattern)
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s migrations %q have no %s files", source.Dialect, source.Path, upPattern)
		}
	}
	return sources, nil
}

// Register hands each selected dialect's migrations to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: DefaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Sources) == 0 {
		sources, err := Sources(nil)
		if err != nil {
			return reg, err
		}
		reg.Sources = sources
	}

	registered := 0
	for _, source := range reg.Sources {
		if !containsDialect(reg.Dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered++
	}
	if registered == 0 {
		return reg, fmt.Errorf("migrations: no migrations for dialects %v", reg.Dialects)
	}
	return reg, nil
}

func containsDialect(dialects []string, dialect string) bool {
	for _, candidate := range dialects {
		if candidate == dialect {
			return true
		}
	}
	return false
}
