package gist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idoracle/pkg/domain"
)

const (
	DefaultBaseURL = "https://api.github.com"

	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "idoracle"
	maxBodyBytes     = 1 << 20
)

// Fetcher retrieves the raw content of a gist.
type Fetcher interface {
	Fetch(ctx context.Context, id domain.ResourceID) ([]byte, error)
}

// HTTPFetcher reads gists from the GitHub REST API. Only a 200 response is
// accepted.
type HTTPFetcher struct {
	client    *http.Client
	baseURL   string
	token     string
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

type FetcherOption func(*HTTPFetcher)

func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithToken authenticates requests, which raises the API rate limit.
func WithToken(token string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.token = token
	}
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

func WithFetcherMetrics(m *Metrics) FetcherOption {
	return func(f *HTTPFetcher) {
		f.metrics = m
	}
}

func NewHTTPFetcher(baseURL string, opts ...FetcherOption) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &HTTPFetcher{
		client:    http.DefaultClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the API location of gist id.
func (f *HTTPFetcher) URL(id domain.ResourceID) string {
	return f.baseURL + "/gists/" + url.PathEscape(id.String())
}

func (f *HTTPFetcher) Fetch(ctx context.Context, id domain.ResourceID) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, id)

	outcome := "ok"
	var fe *FetchError
	if errors.As(err, &fe) {
		outcome = string(fe.Kind)
	}
	f.metrics.observeFetch(outcome, time.Since(start).Seconds())
	return body, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, id domain.ResourceID) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(id), nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, ResourceID: id.String(), Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classify(ctx, err), ResourceID: id.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		f.logger.DebugContext(ctx, "gist api returned non-200",
			"resource_id", id,
			"status", resp.StatusCode,
		)
		return nil, &FetchError{Kind: FetchBadStatus, ResourceID: id.String(), Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Kind: classify(ctx, err), ResourceID: id.String(), Err: err}
	}
	if len(body) > maxBodyBytes {
		return nil, &FetchError{Kind: FetchNetwork, ResourceID: id.String(), Err: fmt.Errorf("response exceeds %d bytes", maxBodyBytes)}
	}
	return body, nil
}

func classify(ctx context.Context, err error) FetchKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}
	return FetchNetwork
}
