package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestPageFetchSendsIdentifyingHeaders(t *testing.T) {
	var ua, lang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		lang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>サロン</title></html>"))
	}))
	defer srv.Close()

	p := NewPage(PageOptions{UserAgent: "floorwatch-test", Timeout: time.Second}, noopLogger())
	body := p.Fetch(context.Background(), srv.URL)

	if !strings.Contains(body, "サロン") {
		t.Fatalf("unexpected body %q", body)
	}
	if ua != "floorwatch-test" {
		t.Fatalf("User-Agent not sent, got %q", ua)
	}
	if !strings.HasPrefix(lang, "ja") {
		t.Fatalf("Accept-Language should prefer ja, got %q", lang)
	}
}

func TestPageFetchDecodesShiftJIS(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String("<html><body>クーポン 5000円</body></html>")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
		_, _ = w.Write([]byte(encoded))
	}))
	defer srv.Close()

	body := NewPage(PageOptions{Timeout: time.Second}, noopLogger()).Fetch(context.Background(), srv.URL)
	if !strings.Contains(body, "クーポン 5000円") {
		t.Fatalf("body not decoded to UTF-8: %q", body)
	}
}

func TestPageFetchFailuresCollapseToEmpty(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	p := NewPage(PageOptions{Timeout: 50 * time.Millisecond}, noopLogger())
	ctx := context.Background()

	if body := p.Fetch(ctx, notFound.URL); body != "" {
		t.Fatalf("404 should yield empty markup, got %q", body)
	}
	if body := p.Fetch(ctx, slow.URL); body != "" {
		t.Fatalf("timeout should yield empty markup, got %q", body)
	}
	if body := p.Fetch(ctx, "ftp://example.com/menu"); body != "" {
		t.Fatalf("unsupported scheme should yield empty markup, got %q", body)
	}
	if body := p.Fetch(ctx, "not a url"); body != "" {
		t.Fatalf("invalid url should yield empty markup, got %q", body)
	}
}

func TestPageFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := NewPage(PageOptions{Timeout: time.Second, Retries: 1, RetryBackoff: time.Millisecond}, noopLogger())
	if body := p.Fetch(context.Background(), srv.URL); body != "ok" {
		t.Fatalf("expected retry to succeed, got %q", body)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestPageFetchTimeoutCoversRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewPage(PageOptions{Timeout: 150 * time.Millisecond, Retries: 5, RetryBackoff: 100 * time.Millisecond}, noopLogger())
	start := time.Now()
	if body := p.Fetch(context.Background(), srv.URL); body != "" {
		t.Fatalf("expected empty body, got %q", body)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fetch ran %v, want it bounded by the 150ms timeout", elapsed)
	}
	if n := atomic.LoadInt32(&calls); n < 1 || n > 2 {
		t.Fatalf("expected at most 2 attempts inside the timeout, got %d", n)
	}
}

func TestPageFetchTimeoutCoversSlowAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewPage(PageOptions{Timeout: 100 * time.Millisecond, Retries: 3, RetryBackoff: time.Millisecond}, noopLogger())
	start := time.Now()
	if body := p.Fetch(context.Background(), srv.URL); body != "" {
		t.Fatalf("expected empty body, got %q", body)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("slow source held the fetch for %v", elapsed)
	}
}

type stubFetcher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *stubFetcher) Fetch(_ context.Context, url string) string {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return "body:" + url
}

func TestFetchAllKeepsOrderAndLimit(t *testing.T) {
	stub := &stubFetcher{}
	urls := []string{"a", "b", "c", "d", "e", "f"}

	out, err := FetchAll(context.Background(), stub, urls, 2)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	for i, u := range urls {
		if out[i] != "body:"+u {
			t.Fatalf("result %d out of order: %q", i, out[i])
		}
	}
	if stub.peak > 2 {
		t.Fatalf("concurrency limit exceeded: %d", stub.peak)
	}
}

func TestFetchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := FetchAll(ctx, &stubFetcher{}, []string{"a"}, 1); err == nil {
		t.Fatal("cancelled context should surface an error")
	}
}
