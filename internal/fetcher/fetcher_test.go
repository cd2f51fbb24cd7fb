package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestFetchRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("filing body"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 5
	cfg.RateLimit = 1000
	cfg.RateBurst = 10
	f := New(cfg, srv.Client())

	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "filing body" {
		t.Errorf("unexpected body: %s", body)
	}
	if calls < 3 {
		t.Errorf("expected at least 3 calls, got %d", calls)
	}
}

func TestFetchTerminalOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	cfg.RateBurst = 10
	f := New(cfg, srv.Client())

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.IsRetryable() {
		t.Error("404 should not be retryable")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for terminal error, got %d", calls)
	}
}

type countingTransport struct {
	calls int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

// TestRateLimitedTransportGatesEveryRoundTrip establishes that the
// token bucket is consumed on the transport, not once up front in
// Fetch — so every attempt a retrying client makes, not just the
// first, passes through it.
func TestRateLimitedTransportGatesEveryRoundTrip(t *testing.T) {
	base := &countingTransport{}
	limiter := rate.NewLimiter(rate.Limit(1000), 10)
	rt := NewLimitedTransport(limiter, base)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	for i := 0; i < 5; i++ {
		if _, err := rt.RoundTrip(req); err != nil {
			t.Fatalf("RoundTrip call %d: %v", i, err)
		}
	}
	if base.calls != 5 {
		t.Errorf("expected 5 calls through the wrapped transport, got %d", base.calls)
	}
}

// TestRateLimitedTransportRespectsContextCancellation establishes that
// an exhausted bucket surrenders to the request's deadline rather than
// blocking forever, matching every other suspension point in this
// core's cancellation model.
func TestRateLimitedTransportRespectsContextCancellation(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	limiter.Allow() // spend the only token so the next Wait must block
	rt := NewLimitedTransport(limiter, &countingTransport{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)

	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected the limiter to block past the request's deadline")
	}
}

func TestArchiveWritesContentAddressedPath(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ArchiveRoot = dir
	f := New(cfg, nil)

	path, err := f.Archive("0000320193", "0000320193-24-000010", "aapl-10q.htm", []byte("hi"))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	want := filepath.Join(dir, "0000320193", "000032019324000010", "aapl-10q.htm")
	if path != want {
		t.Errorf("got path %s, want %s", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hi" {
		t.Errorf("unexpected content: %s", data)
	}
}
