package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hazz-dev/statusrelay/internal/registry"
)

const (
	// DefaultTimeout applies when neither the fetcher nor the endpoint sets one.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// HTTPFetcher fetches health documents with a single bounded GET.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithLogger sets the logger used for failed fetches.
func WithLogger(l *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewHTTP creates an HTTPFetcher. timeout is the per-fetch default and is
// overridden by Endpoint.Timeout when set.
func NewHTTP(timeout time.Duration, opts ...Option) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &HTTPFetcher{
		client:  &http.Client{},
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ep registry.Endpoint) Outcome {
	start := time.Now()

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := f.fetch(ctx, fetchCtx, ep)
	out.Duration = time.Since(start)

	if !out.OK() && out.Kind != KindCanceled {
		f.logger.Warn("fetch failed",
			"endpoint", ep.Name,
			"kind", out.Kind,
			"status", out.StatusCode,
			"duration", out.Duration,
			"error", out.Err,
		)
	}
	return out
}

func (f *HTTPFetcher) fetch(parent, ctx context.Context, ep registry.Endpoint) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return Failure(ep, KindUnreachable, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Failure(ep, classify(parent, err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		out := Failure(ep, KindHTTPStatus, fmt.Errorf("unexpected status %d", resp.StatusCode))
		out.StatusCode = resp.StatusCode
		return out
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Failure(ep, classify(parent, err), fmt.Errorf("reading body: %w", err))
	}
	if len(body) > maxBodyBytes {
		return Failure(ep, KindParse, fmt.Errorf("body exceeds %d bytes", maxBodyBytes))
	}

	report, err := ParseReport(body)
	if err != nil {
		return Failure(ep, KindParse, err)
	}
	return Success(ep, report)
}

// classify maps a transport error to a kind. parent is the caller's context,
// so its cancellation is not mistaken for an endpoint timeout.
func classify(parent context.Context, err error) ErrorKind {
	if parent.Err() != nil {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnreachable
}
