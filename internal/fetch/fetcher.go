package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/intellsearch/intell/internal/search"
)

// HTTPFetcher implements search.Fetcher over plain HTTP GET with a
// request timeout and a response body cap.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// FetcherConfig tunes the HTTP client.
type FetcherConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	if c.UserAgent == "" {
		c.UserAgent = "intellbot/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = 2 << 20
	}
	return c
}

// NewHTTPFetcher builds an HTTPFetcher with pooled connections.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	cfg = cfg.withDefaults()
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(),
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}
}

// NewHTTPFetcherWithClient injects a client (tests).
func NewHTTPFetcherWithClient(cfg FetcherConfig, client *http.Client) *HTTPFetcher {
	cfg = cfg.withDefaults()
	return &HTTPFetcher{client: client, userAgent: cfg.UserAgent, maxBodySize: cfg.MaxBodySize}
}

// Fetch implements search.Fetcher. Network failures, timeouts, and
// non-2xx statuses all surface as *search.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (search.FetchResponse, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return search.FetchResponse{}, &search.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return search.FetchResponse{}, &search.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return search.FetchResponse{}, &search.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	// One byte past the cap distinguishes "exactly at the limit" from
	// "truncated".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return search.FetchResponse{}, &search.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	truncated := int64(len(body)) > f.maxBodySize
	if truncated {
		body = body[:f.maxBodySize]
	}

	return search.FetchResponse{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
		Duration:    time.Since(start),
	}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
