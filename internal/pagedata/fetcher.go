// Package pagedata fetches page payloads from the content API. Every failure is
// absorbed: callers always receive a Result whose Payload is a usable map.
package pagedata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"finitefield.org/apifront/internal/apiconfig"
	"finitefield.org/apifront/internal/observability"
)

const instrumentationName = "finitefield.org/apifront/internal/pagedata"

// Fetcher issues one GET per call against the configured content API.
type Fetcher struct {
	cfg      apiconfig.Config
	http     *http.Client
	logger   *zap.Logger
	now      func() time.Time
	failures metric.Int64Counter
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient swaps the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.http = client
		}
	}
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the time source stamped on results.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher builds a Fetcher. The config timeout is intentionally not applied
// to the client.
func NewFetcher(cfg apiconfig.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:    cfg,
		http:   &http.Client{},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	failures, err := otel.Meter(instrumentationName).Int64Counter("apifront.pagedata.fetch.failures",
		metric.WithDescription("Content API calls that fell back to an empty payload"),
	)
	if err != nil {
		f.logger.Warn("create fetch failure counter failed", zap.Error(err))
		failures = noop.Int64Counter{}
	}
	f.failures = failures
	return f
}

// Config returns the API configuration the fetcher was built with.
func (f *Fetcher) Config() apiconfig.Config { return f.cfg }

// Fetch loads endpointPath and wraps the decoded body. Non-2xx responses,
// transport errors and undecodable bodies are logged and yield an empty payload.
func (f *Fetcher) Fetch(ctx context.Context, endpointPath string, override apiconfig.FetchOptions) Result {
	url := f.cfg.BuildURL(endpointPath)
	opts := f.cfg.DefaultFetchOptions().Merge(override)

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "pagedata.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("apifront.endpoint", endpointPath),
			attribute.String("url.full", url),
		),
	)
	defer span.End()

	payload := f.load(ctx, span, url, opts)

	return Result{
		Payload:   payload,
		Endpoint:  endpointPath,
		FetchedAt: f.now(),
	}
}

// FetchHome fetches the configured home endpoint.
func (f *Fetcher) FetchHome(ctx context.Context, override apiconfig.FetchOptions) Result {
	return f.fetchNamed(ctx, apiconfig.EndpointHome, override)
}

// FetchAbout fetches the configured about endpoint.
func (f *Fetcher) FetchAbout(ctx context.Context, override apiconfig.FetchOptions) Result {
	return f.fetchNamed(ctx, apiconfig.EndpointAbout, override)
}

func (f *Fetcher) fetchNamed(ctx context.Context, name string, override apiconfig.FetchOptions) Result {
	path, _ := f.cfg.Endpoint(name)
	return f.Fetch(ctx, path, override)
}

func (f *Fetcher) load(ctx context.Context, span trace.Span, url string, opts apiconfig.FetchOptions) Payload {
	logger := observability.Logger(ctx)
	if logger == observability.NoopLogger() {
		logger = f.logger
	}
	logger = logger.With(zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Error("build content request failed", zap.Error(err))
		f.recordFailure(ctx, span, err, "build request")
		return Payload{}
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		logger.Error("fetch content failed", zap.Error(err))
		f.recordFailure(ctx, span, err, "transport")
		return Payload{}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("content api returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("status_text", http.StatusText(resp.StatusCode)),
		)
		span.SetStatus(codes.Error, resp.Status)
		f.countFailure(ctx, "status")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Payload{}
	}

	var payload Payload
	if err := decodeObject(resp.Body, &payload); err != nil {
		logger.Error("decode content payload failed", zap.Error(err))
		f.recordFailure(ctx, span, err, "decode")
		return Payload{}
	}
	if payload == nil {
		// body was a literal null
		return Payload{}
	}
	return payload
}

// decodeObject reads exactly one JSON value from r. Anything after it other
// than whitespace is an error.
func decodeObject(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return fmt.Errorf("trailing content: %w", err)
	}
	return nil
}

func (f *Fetcher) recordFailure(ctx context.Context, span trace.Span, err error, stage string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	f.countFailure(ctx, stage)
}

func (f *Fetcher) countFailure(ctx context.Context, stage string) {
	f.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
