package fetcher_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/guildcrawl/internal/fetcher"
	"github.com/jonesrussell/guildcrawl/internal/logger"
)

func newFetcher(t *testing.T, cfg fetcher.Config) *fetcher.CollyFetcher {
	t.Helper()

	f, err := fetcher.NewCollyFetcher(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	return f
}

func TestCollyFetcher_ReturnsBodyHeadersAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "guildcrawl-test", r.Header.Get("User-Agent"))
		w.Header().Set("Date", "Mon, 10 Jul 2023 21:57:03 GMT")
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><title>ok</title></html>")
	}))
	defer srv.Close()

	f := newFetcher(t, fetcher.Config{UserAgent: "guildcrawl-test"})

	resp, err := f.Do(context.Background(), &fetcher.Request{URL: srv.URL + "/servers"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, srv.URL+"/servers", resp.URL)
	assert.Equal(t, "Mon, 10 Jul 2023 21:57:03 GMT", resp.Headers.Get("Date"))
	assert.Contains(t, string(resp.Body), "<title>ok</title>")
	assert.False(t, resp.FetchedAt.IsZero())
}

func TestCollyFetcher_ErrorStatusIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "busy")
	}))
	defer srv.Close()

	f := newFetcher(t, fetcher.Config{})

	resp, err := f.Do(context.Background(), &fetcher.Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "busy", string(resp.Body))
}

func TestCollyFetcher_RevisitsSameURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "again")
	}))
	defer srv.Close()

	f := newFetcher(t, fetcher.Config{})
	for range 3 {
		_, err := f.Do(context.Background(), &fetcher.Request{URL: srv.URL})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestCollyFetcher_PostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	f := newFetcher(t, fetcher.Config{})
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")

	resp, err := f.Do(context.Background(), &fetcher.Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/v1",
		Body:   []byte(`{"cmd":"request.get"}`),
		Header: hdr,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"request.get"}`, string(resp.Body))
}

func TestCollyFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	f := newFetcher(t, fetcher.Config{RequestTimeout: time.Second})

	_, err := f.Do(context.Background(), &fetcher.Request{URL: addr})
	require.Error(t, err)
}

func TestCollyFetcher_CancelledContext(t *testing.T) {
	f := newFetcher(t, fetcher.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Do(ctx, &fetcher.Request{URL: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollyFetcher_CancelReturnsWhileRequestInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := newFetcher(t, fetcher.Config{RequestTimeout: 30 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Do(ctx, &fetcher.Request{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCollyFetcher_DelayIsSharedByConcurrentCallers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	const delay = 200 * time.Millisecond
	f := newFetcher(t, fetcher.Config{DownloadDelay: delay})

	start := time.Now()
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := f.Do(context.Background(), &fetcher.Request{URL: srv.URL})
			errs <- err
		}()
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.GreaterOrEqual(t, time.Since(start), delay)
}
