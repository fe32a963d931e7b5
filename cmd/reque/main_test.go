package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-reque/core"
)

func TestParser_DefaultsAndFlags(t *testing.T) {
	var args cli
	parser, err := newParser(&args)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	if _, err := parser.Parse([]string{}); err != nil {
		t.Fatalf("parse defaults: %v", err)
	}
	if args.Config != "config/Settings" || args.Admin {
		t.Fatalf("unexpected defaults %+v", args)
	}

	args = cli{}
	if _, err := parser.Parse([]string{"-c", "/etc/reque/Settings.yaml", "--admin", "--log-level", "debug", "--settings-optional"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if args.Config != "/etc/reque/Settings.yaml" || !args.Admin || args.LogLevel != "debug" || !args.Optional {
		t.Fatalf("unexpected parsed flags %+v", args)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := core.DefaultConfig()
	got := applyOverrides(cfg, cli{Admin: true, LogLevel: " warn ", LogFormat: "json"})
	if !got.AdminEnabled || got.LogLevel != "warn" || got.LogFormat != "json" {
		t.Fatalf("expected overrides applied, got %+v", got)
	}
	unchanged := applyOverrides(cfg, cli{})
	if unchanged.AdminEnabled || unchanged.LogLevel != cfg.LogLevel || unchanged.LogFormat != cfg.LogFormat {
		t.Fatalf("expected config untouched without flags, got %+v", unchanged)
	}
}

func TestLoadConfig_OptionalSettingsUsesEnvironment(t *testing.T) {
	t.Setenv("REQUE_DATABASE_URL", "sqlite://reque.db")
	t.Setenv("REQUE_HTTP_DEST", "dest.example:9000")
	missing := filepath.Join(t.TempDir(), "Settings")

	if _, err := loadConfig(context.Background(), cli{Config: missing}); !core.IsConfigError(err) {
		t.Fatalf("expected config error for a missing required settings file, got %v", err)
	}

	cfg, err := loadConfig(context.Background(), cli{Config: missing, Optional: true, Admin: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "sqlite://reque.db" || cfg.HTTPDest != "dest.example:9000" || !cfg.AdminEnabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ServicePort != core.DefaultServicePort {
		t.Fatalf("expected default port, got %d", cfg.ServicePort)
	}
}

func TestOpenLogOutput(t *testing.T) {
	var fallback bytes.Buffer
	out, closeFn, err := openLogOutput("", &fallback)
	if err != nil || out != &fallback {
		t.Fatalf("expected fallback writer, got %v err=%v", out, err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close fallback: %v", err)
	}

	path := filepath.Join(t.TempDir(), "log", "requests.log")
	out, closeFn, err = openLogOutput(path, &fallback)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	if _, err := out.Write([]byte("captured\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "captured") {
		t.Fatalf("expected log file contents, got %q err=%v", data, err)
	}
}
