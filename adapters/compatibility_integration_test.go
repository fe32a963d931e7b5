package adapters_test

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-reque/adapters/gocommand"
	"github.com/goliatone/go-reque/adapters/gojob"
	"github.com/goliatone/go-reque/adapters/gologger"
	requecommand "github.com/goliatone/go-reque/command"
	"github.com/goliatone/go-reque/core"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	root := gologger.NewSlogLogger(&logs, "debug", "text")

	_, logger, jobProvider, jobLogger := gologger.ResolveForJob("reque", gologger.NewProvider(root), nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	hook := &compatHook{}
	store := core.NewMemoryQueueStore()
	cfg := core.DefaultConfig()
	cfg.DatabaseURL = "sqlite://file::memory:"
	cfg.HTTPDest = "dest.example:9000"
	cfg.IngestAsync = false
	cfg.RequireSuccess = true
	svc, err := core.NewService(cfg,
		core.WithQueueStore(store),
		core.WithLogger(logger),
		core.WithServiceCycleHook(gojob.NewCycleHookAdapter(hook)),
		core.WithForwarder(core.ForwarderFunc(func(context.Context, core.DeliveryRequest) core.DeliveryResult {
			return core.DeliveryResult{Success: false, StatusCode: http.StatusBadGateway}
		})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	subs, err := gocommand.RegisterRelay(adapter, svc)
	if err != nil {
		t.Fatalf("register relay: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(requecommand.TypeDispatchCycle); !ok {
		t.Fatalf("expected dispatch command to be mirrored into go-job queue registry")
	}

	router := gojob.NewMessageRouter(svc)
	receipt, err := router.Enqueue(ctx, gojob.ToExecutionMessage(core.InboundRequest{
		Method: "POST",
		Host:   "relay.local",
		Port:   8000,
		URI:    "/hooks/compat",
		Body:   []byte("payload"),
	}, "compat-1"))
	if err != nil {
		t.Fatalf("ingest via go-job message: %v", err)
	}
	if receipt.DispatchID == "" {
		t.Fatalf("expected go-job receipt to carry the entry reference")
	}

	report, err := gocommand.DispatchCycle(ctx)
	if err != nil {
		t.Fatalf("dispatch via go-command: %v", err)
	}
	if report.Outcome != core.CycleRetained {
		t.Fatalf("expected entry retained after 502, got %s", report.Outcome)
	}
	if hook.retries != 1 {
		t.Fatalf("expected go-job retry hook for retained entry, got %d", hook.retries)
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Fatalf("expected entry to stay queued, count=%d", count)
	}
	if !strings.Contains(logs.String(), "component=reque") {
		t.Fatalf("expected service logs through slog provider, got %q", logs.String())
	}
}

type compatHook struct {
	retries int
}

func (h *compatHook) OnStart(context.Context, worker.Event)   {}
func (h *compatHook) OnSuccess(context.Context, worker.Event) {}
func (h *compatHook) OnFailure(context.Context, worker.Event) {}
func (h *compatHook) OnRetry(context.Context, worker.Event)   { h.retries++ }
