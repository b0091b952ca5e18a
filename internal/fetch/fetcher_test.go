package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intellsearch/intell/internal/search"
)

func TestFetch_ReturnsBodyAndMetadata(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "intellbot/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer ts.Close()

	f := NewHTTPFetcher(FetcherConfig{})
	resp, err := f.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", resp.ContentType)
	require.Contains(t, string(resp.Body), "hello")
	require.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetch_NonSuccessStatusIsFetchError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	f := NewHTTPFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), ts.URL)

	var fetchErr *search.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	require.True(t, search.IsRetryable(err))
}

func TestFetch_ConnectionFailureIsFetchError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close() // connection refused from here on

	f := NewHTTPFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), ts.URL)

	var fetchErr *search.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Zero(t, fetchErr.StatusCode)
}

func TestFetch_BodyCap(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer ts.Close()

	f := NewHTTPFetcher(FetcherConfig{MaxBodySize: 1024})
	resp, err := f.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	require.Len(t, resp.Body, 1024)
	require.True(t, resp.Truncated)
}

func TestFetch_BodyAtCapIsNotTruncated(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer ts.Close()

	f := NewHTTPFetcher(FetcherConfig{MaxBodySize: 1024})
	resp, err := f.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	require.Len(t, resp.Body, 1024)
	require.False(t, resp.Truncated)
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	f := NewHTTPFetcher(FetcherConfig{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), ts.URL)

	var fetchErr *search.FetchError
	require.ErrorAs(t, err, &fetchErr)
}
