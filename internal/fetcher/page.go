package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent      = "Mozilla/5.0 (compatible; floorwatch/1.0)"
	defaultAcceptLanguage = "ja,en;q=0.8"
	defaultMaxBodyBytes   = 5 << 20
)

// errRetryable marks failures worth another attempt.
var errRetryable = errors.New("retryable fetch failure")

// PageOptions parameterise the HTTP page fetcher.
type PageOptions struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	RatePerSec     float64
	Burst          int
	MaxBodyBytes   int64
	Retries        int
	RetryBackoff   time.Duration
}

// Page fetches HTML documents over HTTP.
type Page struct {
	opts    PageOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewPage constructs a page fetcher. A zero RatePerSec disables pacing.
func NewPage(opts PageOptions, logger zerolog.Logger) *Page {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = defaultAcceptLanguage
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Page{
		opts:    opts,
		logger:  logger.With().Str("component", "page_fetcher").Logger(),
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Fetch returns the UTF-8 markup at rawURL, or "" on any failure. Timeout
// bounds the whole fetch, retries and backoff included.
func (p *Page) Fetch(ctx context.Context, rawURL string) string {
	if err := validateURL(rawURL); err != nil {
		p.logger.Warn().Err(err).Str("url", rawURL).Msg("skip invalid url")
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	var body string
	err := retry(ctx, p.opts.Retries, p.opts.RetryBackoff, func() error {
		var fetchErr error
		body, fetchErr = p.fetchOnce(ctx, rawURL)
		return fetchErr
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("url", rawURL).Msg("source unavailable")
		return ""
	}
	return body
}

func (p *Page) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)
	req.Header.Set("Accept-Language", p.opts.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, p.opts.MaxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", errRetryable, err)
	}

	p.logger.Debug().Str("url", rawURL).Int("bytes", len(payload)).Msg("page fetched")
	return string(payload), nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

// retry runs fn up to retries+1 times, doubling the wait between attempts.
// Only errors wrapping errRetryable are retried.
func retry(ctx context.Context, retries int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !errors.Is(lastErr, errRetryable) {
			return lastErr
		}
		if attempt == retries {
			break
		}

		wait := backoff * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %d attempts: %v", ctx.Err(), attempt+1, lastErr)
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", retries, lastErr)
}

var _ PageFetcher = (*Page)(nil)
