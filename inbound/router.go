package inbound

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-reque/command"
	"github.com/goliatone/go-reque/core"
	"github.com/goliatone/go-reque/query"
)

const (
	AdminPrefix = "/_reque"

	corsAllowOrigin  = "*"
	corsAllowMethods = "POST, GET, PATCH, OPTIONS"
	corsAllowHeaders = "*"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// RelayService is the slice of core.Service the HTTP surface needs.
type RelayService interface {
	command.Dispatcher
	command.Ingester
	query.QueueReader
	MapError(err error) *goerrors.Error
}

type RouterConfig struct {
	ServiceName  string
	ServicePort  int
	AdminEnabled bool
	// MaxBodyBytes caps captured bodies; zero means unlimited.
	MaxBodyBytes int64
}

func RouterConfigFrom(cfg core.Config) RouterConfig {
	return RouterConfig{
		ServiceName:  cfg.ServiceName,
		ServicePort:  cfg.ServicePort,
		AdminEnabled: cfg.AdminEnabled,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
}

type RouterOption func(*Router)

func WithRouterLogger(logger core.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Router serves ingestion, the info probe and the optional admin routes.
type Router struct {
	service RelayService
	config  RouterConfig
	logger  core.Logger
	mux     chi.Router

	ingest   *command.IngestRequestCommand
	dispatch *command.DispatchCycleCommand
	stats    *query.QueueStatsQuery
	oldest   *query.PeekOldestQuery
	list     *query.ListEntriesQuery
}

func NewRouter(service RelayService, config RouterConfig, opts ...RouterOption) (*Router, error) {
	if service == nil {
		return nil, inboundInternal("inbound: relay service is required", nil)
	}
	if strings.TrimSpace(config.ServiceName) == "" {
		config.ServiceName = "reque"
	}
	r := &Router{
		service:  service,
		config:   config,
		logger:   glog.Nop(),
		ingest:   command.NewIngestRequestCommand(service),
		dispatch: command.NewDispatchCycleCommand(service),
		stats:    query.NewQueueStatsQuery(service),
		oldest:   query.NewPeekOldestQuery(service),
		list:     query.NewListEntriesQuery(service),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.mux = r.routes()
	return r, nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() chi.Router {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(cors)

	mux.Get("/", r.handleInfo)
	mux.Options("/", preflight)
	mux.Options("/*", preflight)

	if r.config.AdminEnabled {
		mux.Route(AdminPrefix, func(admin chi.Router) {
			admin.Get("/queue", r.handleQueue)
			admin.Get("/queue/oldest", r.handleOldest)
			admin.Post("/dispatch", r.handleDispatch)
			admin.Options("/*", preflight)
		})
	}

	mux.Post("/delay/{n:[0-9]+}", r.handleCapture)
	mux.Post("/", r.handleCapture)
	mux.Post("/*", r.handleCapture)
	return mux
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", corsAllowOrigin)
		header.Set("Access-Control-Allow-Methods", corsAllowMethods)
		header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		next.ServeHTTP(w, req)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type infoResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Depth   *int   `json:"depth,omitempty"`
}

// handleInfo never enqueues. A failing stats read degrades the probe instead
// of failing it.
func (r *Router) handleInfo(w http.ResponseWriter, req *http.Request) {
	out := infoResponse{Service: r.config.ServiceName, Status: "ok"}
	stats, err := r.stats.Query(req.Context(), query.QueueStatsMessage{})
	if err != nil {
		out.Status = "degraded"
		r.logger.Warn("queue stats unavailable", "error", err)
	} else {
		depth := stats.Depth
		out.Depth = &depth
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleCapture(w http.ResponseWriter, req *http.Request) {
	inbound, err := r.capture(req)
	if err != nil {
		r.writeError(w, err)
		return
	}
	if err := r.ingest.Execute(req.Context(), command.IngestRequestMessage{Request: inbound}); err != nil {
		r.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *Router) capture(req *http.Request) (core.InboundRequest, error) {
	reader := io.Reader(req.Body)
	if r.config.MaxBodyBytes > 0 {
		reader = io.LimitReader(req.Body, r.config.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return core.InboundRequest{}, inboundWrapError(err, goerrors.CategoryBadInput, "inbound: read request body",
			http.StatusBadRequest, core.ErrorBadInput, nil)
	}
	if r.config.MaxBodyBytes > 0 && int64(len(body)) > r.config.MaxBodyBytes {
		return core.InboundRequest{}, inboundError("inbound: request body too large", goerrors.CategoryBadInput,
			http.StatusRequestEntityTooLarge, core.ErrorBadInput, map[string]any{"limit": r.config.MaxBodyBytes})
	}

	host, port := splitHostPort(req.Host, r.config.ServicePort)
	uri := req.URL.RequestURI()
	return core.InboundRequest{
		Method:  req.Method,
		Host:    host,
		Port:    port,
		URI:     uri,
		Headers: req.Header.Clone(),
		Body:    body,
	}, nil
}

func splitHostPort(hostport string, fallbackPort int) (string, int) {
	hostport = strings.TrimSpace(hostport)
	host, rawPort, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.Trim(hostport, "[]"), fallbackPort
	}
	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil || port == 0 {
		return host, fallbackPort
	}
	return host, int(port)
}

type statsResponse struct {
	Depth    int    `json:"depth"`
	OldestID int64  `json:"oldest_id,omitempty"`
	OldestAt string `json:"oldest_at,omitempty"`
}

func toStatsResponse(stats core.QueueStats) statsResponse {
	out := statsResponse{Depth: stats.Depth, OldestID: stats.OldestID}
	if stats.OldestAt != nil {
		out.OldestAt = stats.OldestAt.UTC().Format(timestampLayout)
	}
	return out
}

type queueResponse struct {
	Stats   statsResponse   `json:"stats"`
	Entries []entryResponse `json:"entries"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

type entryResponse struct {
	ID         int64  `json:"id"`
	Reference  string `json:"reference"`
	Method     string `json:"method"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	URI        string `json:"uri"`
	BodyBytes  int    `json:"body_bytes"`
	EnqueuedAt string `json:"enqueued_at"`
}

func toEntryResponse(entry core.QueueEntry) entryResponse {
	return entryResponse{
		ID:         entry.ID,
		Reference:  entry.Reference,
		Method:     entry.Method,
		Host:       entry.Host,
		Port:       entry.Port,
		URI:        entry.URI,
		BodyBytes:  len(entry.Body),
		EnqueuedAt: entry.EnqueuedAt.UTC().Format(timestampLayout),
	}
}

func (r *Router) handleQueue(w http.ResponseWriter, req *http.Request) {
	msg, err := listMessageFrom(req)
	if err != nil {
		r.writeError(w, err)
		return
	}
	stats, err := r.stats.Query(req.Context(), query.QueueStatsMessage{})
	if err != nil {
		r.writeError(w, err)
		return
	}
	entries, err := r.list.Query(req.Context(), msg)
	if err != nil {
		r.writeError(w, err)
		return
	}
	out := queueResponse{Stats: toStatsResponse(stats), Entries: make([]entryResponse, 0, len(entries)), Limit: msg.Limit, Offset: msg.Offset}
	for _, entry := range entries {
		out.Entries = append(out.Entries, toEntryResponse(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

func listMessageFrom(req *http.Request) (query.ListEntriesMessage, error) {
	msg := query.ListEntriesMessage{}
	values := req.URL.Query()
	for key, target := range map[string]*int{"limit": &msg.Limit, "offset": &msg.Offset} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return query.ListEntriesMessage{}, inboundBadInput("inbound: "+key+" must be an integer", map[string]any{key: raw})
		}
		*target = parsed
	}
	return msg, nil
}

func (r *Router) handleOldest(w http.ResponseWriter, req *http.Request) {
	out, err := r.oldest.Query(req.Context(), query.PeekOldestMessage{})
	if err != nil {
		r.writeError(w, err)
		return
	}
	if !out.Found {
		r.writeError(w, inboundError("inbound: queue is empty", goerrors.CategoryNotFound,
			http.StatusNotFound, core.ErrorNotFound, nil))
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(out.Entry))
}

type dispatchResponse struct {
	Sequence       uint64   `json:"sequence"`
	Outcome        string   `json:"outcome"`
	EntryID        int64    `json:"entry_id,omitempty"`
	Success        bool     `json:"success"`
	StatusCode     int      `json:"status_code,omitempty"`
	Removed        bool     `json:"removed"`
	RemovalReasons []string `json:"removal_reasons"`
	DurationMS     int64    `json:"duration_ms"`
	Error          string   `json:"error,omitempty"`
}

// handleDispatch answers 200 with the cycle report; a removal failure is
// reported inside the body and mapped to the store error status.
func (r *Router) handleDispatch(w http.ResponseWriter, req *http.Request) {
	collector := gocmd.NewResult[core.CycleReport]()
	ctx := gocmd.ContextWithResult(req.Context(), collector)
	err := r.dispatch.Execute(ctx, command.DispatchCycleMessage{})

	report, ok := collector.Load()
	if !ok {
		if err == nil {
			err = inboundInternal("inbound: dispatch produced no report", nil)
		}
		r.writeError(w, err)
		return
	}
	out := dispatchResponse{
		Sequence:       report.Sequence,
		Outcome:        string(report.Outcome),
		EntryID:        report.EntryID,
		Success:        report.Delivery.Success,
		StatusCode:     report.Delivery.StatusCode,
		Removed:        report.Removed,
		RemovalReasons: append([]string{}, report.RemovalReasons...),
		DurationMS:     report.Duration.Milliseconds(),
	}
	status := http.StatusOK
	if err != nil {
		out.Error = err.Error()
		status = r.mapError(err).Code
	}
	writeJSON(w, status, out)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string         `json:"message"`
	TextCode string         `json:"text_code"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r *Router) mapError(err error) *goerrors.Error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code != 0 {
		return rich
	}
	if mapped := r.service.MapError(err); mapped != nil {
		if mapped.Code == 0 {
			mapped.Code = http.StatusInternalServerError
		}
		return mapped
	}
	return inboundWrapError(err, goerrors.CategoryInternal, "inbound: request failed",
		http.StatusInternalServerError, core.ErrorInternal, nil)
}

func (r *Router) writeError(w http.ResponseWriter, err error) {
	mapped := r.mapError(err)
	if mapped.Code >= http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err, "text_code", mapped.TextCode)
	}
	writeJSON(w, mapped.Code, errorResponse{Error: errorBody{
		Message:  mapped.Message,
		TextCode: mapped.TextCode,
		Category: string(mapped.Category),
		Metadata: mapped.Metadata,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Handler returns the router as an http.Handler for servers that take one.
func (r *Router) Handler() http.Handler {
	return r
}
