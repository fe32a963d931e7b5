package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	reque "github.com/goliatone/go-reque"
	"github.com/goliatone/go-reque/adapters/gologger"
	"github.com/goliatone/go-reque/config"
	"github.com/goliatone/go-reque/core"
	"github.com/goliatone/go-reque/inbound"
	sqlstore "github.com/goliatone/go-reque/store/sql"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

type cli struct {
	Config    string           `help:"Settings file; the extension is optional." default:"config/Settings" env:"REQUE_CONFIG" short:"c"`
	Optional  bool             `help:"Start from defaults and environment when the settings file is missing." name:"settings-optional"`
	Admin     bool             `help:"Enable the admin routes under /_reque."`
	LogLevel  string           `help:"Override log_level (trace, debug, info, warn, error)."`
	LogFormat string           `help:"Override log_format (text or json)."`
	SQLDebug  bool             `help:"Log SQL statements." name:"sql-debug"`
	Version   kong.VersionFlag `help:"Print version and exit."`
}

func newParser(args *cli, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("reque"),
		kong.Description("Capture inbound webhooks and relay them, oldest first, to a fixed destination."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	}
	return kong.New(args, append(base, opts...)...)
}

func main() {
	var args cli
	parser, err := newParser(&args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		parser.FatalIfErrorf(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "reque:", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(ctx context.Context, args cli) (core.Config, error) {
	loader := config.NewFileLoader(args.Config)
	loader.Optional = args.Optional
	provider := core.NewCfgxConfigProvider(config.ChainLoader{
		loader,
		config.NewEnvLoader(config.DefaultEnvPrefix),
	})
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	cfg = applyOverrides(cfg, args)
	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

func applyOverrides(cfg core.Config, args cli) core.Config {
	if args.Admin {
		cfg.AdminEnabled = true
	}
	if level := strings.TrimSpace(args.LogLevel); level != "" {
		cfg.LogLevel = level
	}
	if format := strings.TrimSpace(args.LogFormat); format != "" {
		cfg.LogFormat = format
	}
	return cfg
}

// openLogOutput appends to path when set, creating parent directories, and
// falls back to fallback otherwise.
func openLogOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, core.ConfigError(err, fmt.Sprintf("log_path %q is not writable", path))
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, core.ConfigError(err, fmt.Sprintf("log_path %q is not writable", path))
	}
	return file, file.Close, nil
}

func run(ctx context.Context, args cli, stdout io.Writer) error {
	cfg, err := loadConfig(ctx, args)
	if err != nil {
		return err
	}

	logOut, closeLog, err := openLogOutput(cfg.LogPath, stdout)
	if err != nil {
		return err
	}
	defer closeLog()
	root := gologger.NewSlogLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	provider := gologger.NewProvider(root)
	logger := provider.GetLogger("reque")

	db, err := sqlstore.Open(ctx, cfg.DatabaseURL, sqlstore.WithDebug(args.SQLDebug))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("database close failed", "error", closeErr)
		}
	}()

	svc, err := reque.Setup(cfg,
		reque.WithQueueStore(db.QueueStore()),
		reque.WithLoggerProvider(provider),
		reque.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	handler, err := reque.Handler(svc, inbound.WithRouterLogger(provider.GetLogger("inbound")))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(runCtx)
	}()

	serveDone := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "destination", cfg.Proto()+"://"+cfg.Destination(), "db", db.Dialect())
		serveDone <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveDone:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	cancelRun()
	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("dispatcher stopped with error", "error", err)
	}
	logger.Info("stopped")
	return serveErr
}
