package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pevans/newsharvest/logger"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// Page is a fetched listing page, decoded to UTF-8.
type Page struct {
	// URL is the final URL after redirects; relative links resolve against
	// it.
	URL         string
	ContentType string
	Body        []byte
}

// FetcherConfig controls how pages are requested.
type FetcherConfig struct {
	// Timeout per request.
	Timeout time.Duration
	// Delay is the minimum spacing between requests. Zero disables it.
	Delay time.Duration
	// MaxAttempts includes the first request.
	MaxAttempts int
	// InitialBackoff is the first wait between attempts; it grows
	// exponentially.
	InitialBackoff time.Duration
	UserAgent      string
	MaxBodyBytes   int64
}

// DefaultFetcherConfig returns polite defaults for a public government site.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:        30 * time.Second,
		Delay:          2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		UserAgent:      "newsharvest/1.0 (incremental news archive harvester)",
		MaxBodyBytes:   5 * 1024 * 1024,
	}
}

// HTTPStatusError reports a non-200 response.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
// Truncated pages are never returned.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Fetcher downloads listing pages. Transient failures are retried with
// exponential backoff; requests are spaced by the configured delay.
type Fetcher struct {
	client  *http.Client
	config  FetcherConfig
	limiter *rate.Limiter
	log     logger.Logger
}

// NewFetcher creates a fetcher. Zero-valued config fields fall back to
// DefaultFetcherConfig, except Delay where zero means no delay.
func NewFetcher(config FetcherConfig, log logger.Logger) *Fetcher {
	defaults := DefaultFetcherConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if config.Delay > 0 {
		limit = rate.Every(config.Delay)
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Fetch downloads rawURL and returns its UTF-8 body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.config.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(eb, uint64(f.config.MaxAttempts-1)),
		ctx,
	)

	var page *Page
	attempt := 0
	operation := func() error {
		attempt++
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		p, err := f.fetchOnce(ctx, u.String())
		if err != nil {
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrBodyTooLarge) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			f.log.Debug("page fetch attempt failed",
				logger.String("url", rawURL),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
			return err
		}
		page = p
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	return page, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(raw)) > f.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.config.MaxBodyBytes)
	}

	// Decode to UTF-8 using the declared or sniffed charset
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		ContentType: contentType,
		Body:        body,
	}, nil
}
