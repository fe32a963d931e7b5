package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("reque", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("reque", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("reque", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("reque", provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger("reque")
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestSlogLogger_TextOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, "info", "text")

	logger.Debug("hidden", "k", "v")
	logger.Info("cycle finished", "outcome", "removed", "entry_id", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug record to be filtered, got %q", out)
	}
	if !strings.Contains(out, "cycle finished") || !strings.Contains(out, "outcome=removed") || !strings.Contains(out, "entry_id=3") {
		t.Fatalf("expected text record with fields, got %q", out)
	}
}

func TestSlogLogger_JSONWithFieldsAndProvider(t *testing.T) {
	var buf bytes.Buffer
	root := NewSlogLogger(&buf, "trace", "json")
	provider := NewProvider(root.withFields(map[string]any{"service": "reque"}))

	provider.GetLogger("dispatcher").Trace("peek", "depth", 2)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected one json record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "peek" || record["service"] != "reque" || record["component"] != "dispatcher" {
		t.Fatalf("unexpected json record %v", record)
	}
	if record["depth"] != float64(2) {
		t.Fatalf("expected depth field, got %v", record["depth"])
	}
}

func TestSlogLogger_FatalExits(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, "info", "text")
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal("boom")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	code = -1
	logger.WithContext(context.Background()).Fatal("boom")
	if code != 1 {
		t.Fatalf("expected context logger to exit too, got %d", code)
	}
	if strings.Count(buf.String(), "boom") != 2 {
		t.Fatalf("expected both fatal records to be written, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   levelTrace.String(),
		"DEBUG":   "DEBUG",
		" warn ":  "WARN",
		"error":   "ERROR",
		"unknown": "INFO",
	}
	for input, want := range cases {
		if got := ParseLevel(input).String(); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
