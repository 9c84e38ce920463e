// Package scrapers provides the source-type extractors (greenhouse,
// workday, rss, api, generic html) and the politeness-limited HTTP
// fetcher they share.
package scrapers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"golang.org/x/time/rate"
)

// HTTPFetcher applies a per-host token bucket, a shared user agent, and
// a response size cap to every outbound request.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	perHostRPS  float64
	maxBodySize int
	logger      arbor.ILogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPFetcher(config common.ScraperConfig, logger arbor.ILogger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: config.RequestTimeoutDuration(),
		},
		userAgent:   config.UserAgent,
		perHostRPS:  config.PerHostRPS,
		maxBodySize: config.MaxBodySize,
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.perHostRPS), 1)
		f.limiters[host] = limiter
	}
	return limiter
}

// Get fetches one URL. Rate limits, 5xx, and transport failures are
// classified transient; other 4xx are permanent.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid fetch URL %q: %w", rawURL, err)
	}

	if err := f.limiterFor(parsed.Host).Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("politeness wait interrupted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", common.Transient(fmt.Errorf("fetch %s failed: %w", rawURL, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", common.Transient(fmt.Errorf("fetch %s rate limited (429)", rawURL))
	case resp.StatusCode >= 500:
		return nil, "", common.Transient(fmt.Errorf("fetch %s returned %d", rawURL, resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, "", fmt.Errorf("fetch %s returned %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBodySize)))
	if err != nil {
		return nil, "", common.Transient(fmt.Errorf("failed to read response from %s: %w", rawURL, err))
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Fetched URL")
	return body, resp.Header.Get("Content-Type"), nil
}
