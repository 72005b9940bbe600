// Package httputil provides a hardened HTTP client with connection-level
// retries, a small page fetcher on top of it, and input sanitization helpers.
package httputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent   = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"
	maxBodySize = 10 * 1024 * 1024
)

// Retry defaults: three attempts in total, sleeping 0.5s then 1s.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond
)

// NewClient creates a hardened HTTP client with secure defaults whose
// transport retries connection-level failures.
func NewClient(logger *slog.Logger) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &RetryTransport{
			Base: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
			Attempts: DefaultAttempts,
			Backoff:  DefaultBackoff,
			Logger:   logger,
		},
	}
}

// RetryTransport retries a request when the underlying transport fails
// before producing a response. HTTP status codes are never retried.
type RetryTransport struct {
	Base     http.RoundTripper
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := t.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r := req
		if attempt > 1 {
			if req.Body != nil && req.GetBody == nil {
				break
			}
			r = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewinding request body: %w", err)
				}
				r.Body = body
			}
		}

		resp, err := base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil || attempt == attempts {
			break
		}

		if t.Logger != nil {
			t.Logger.Debug("retrying request",
				slog.String("url", req.URL.Redacted()),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.Any("error", err))
		}
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Status, e.URL)
}

// Fetcher performs page loads and form posts with browser-like headers.
// It owns no cookie or session state.
type Fetcher struct {
	client *http.Client
}

// NewFetcher wraps client in a Fetcher.
func NewFetcher(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Get fetches url and returns the response body.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return f.do(ctx, http.MethodGet, url, nil)
}

// Post issues a POST with an empty body and the given extra headers.
func (f *Fetcher) Post(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f.do(ctx, http.MethodPost, url, headers)
}

// Document fetches url and parses it as HTML.
func (f *Fetcher) Document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string, headers map[string]string) ([]byte, error) {
	if err := ValidateURL(url); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
