package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-reque/core"
)

const defaultDrainLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPForwarder replays a queued body to the destination as a single POST.
// Only a 200 reply counts as delivered.
type HTTPForwarder struct {
	Client         HTTPDoer
	DefaultHeaders map[string]string
	Timeout        time.Duration
	DrainLimit     int64
}

func NewHTTPForwarder(client HTTPDoer) *HTTPForwarder {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPForwarder{
		Client:         client,
		DefaultHeaders: map[string]string{},
		DrainLimit:     defaultDrainLimit,
	}
}

// NewHTTPForwarderFromConfig applies forward_timeout; zero means no deadline.
func NewHTTPForwarderFromConfig(cfg core.Config) *HTTPForwarder {
	forwarder := NewHTTPForwarder(&http.Client{})
	forwarder.Timeout = cfg.ForwardTimeoutDuration()
	return forwarder
}

// TargetURL joins proto, host and the original request URI verbatim.
func TargetURL(proto string, host string, uri string) string {
	proto = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(proto)), "://")
	if uri == "" {
		uri = "/"
	}
	return fmt.Sprintf("%s://%s%s", proto, strings.TrimSpace(host), uri)
}

func (f *HTTPForwarder) Deliver(ctx context.Context, req core.DeliveryRequest) core.DeliveryResult {
	target := TargetURL(req.Proto, req.Host, req.URI)
	result := core.DeliveryResult{URL: target}
	if f == nil || f.Client == nil {
		result.Err = transportError(
			"transport: forwarder requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"url": target},
		)
		return result
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := url.Parse(target); err != nil {
		result.Err = transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid target url",
			http.StatusBadRequest,
			map[string]any{"url": target},
		)
		return result
	}

	requestCtx := ctx
	cancel := func() {}
	if f.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, f.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		result.Err = transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"url": target},
		)
		return result
	}
	for key, value := range f.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now()
	httpRes, err := f.Client.Do(httpReq)
	result.Duration = time.Since(startedAt)
	if err != nil {
		result.Err = transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"url": target},
		)
		return result
	}
	defer httpRes.Body.Close()

	// The reply body is never inspected; draining lets the connection be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(httpRes.Body, f.drainLimit()))

	result.StatusCode = httpRes.StatusCode
	result.Success = httpRes.StatusCode == http.StatusOK
	if !result.Success {
		result.Err = transportError(
			fmt.Sprintf("transport: destination replied %d", httpRes.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"url": target, "status_code": httpRes.StatusCode},
		)
	}
	return result
}

func (f *HTTPForwarder) drainLimit() int64 {
	if f.DrainLimit > 0 {
		return f.DrainLimit
	}
	return defaultDrainLimit
}

var _ core.Forwarder = (*HTTPForwarder)(nil)
