// Package fetch provides the retrying, challenge-aware HTTP page client used
// by the crawl pipeline.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rtparts/catalogd/internal/catalog"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// HostQPS caps outbound requests per second. Zero disables the limiter.
	HostQPS float64
}

// Client implements catalog.Fetcher using the Colly collector.
type Client struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	policy        RetryPolicy
	detector      *ChallengeDetector
	limiter       *rate.Limiter
	log           *zap.Logger
}

var _ catalog.Fetcher = (*Client)(nil)

// New builds a Client.
func New(cfg Config, policy RetryPolicy, detector *ChallengeDetector, log *zap.Logger) *Client {
	// colly v2.1.0's Async option sets Async=true regardless of its argument,
	// so assign the field directly to keep the collector synchronous.
	c := colly.NewCollector()
	c.Async = false
	transport := newHTTPTransport()
	c.WithTransport(transport)

	if policy == nil {
		policy = NewExponentialRetryPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.HostQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HostQPS), 1)
	}

	return &Client{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		policy:        policy,
		detector:      detector,
		limiter:       limiter,
		log:           log,
	}
}

// Fetch executes an HTTP GET with retry. Transient errors are retried per the
// policy; a challenge page is returned as catalog.ChallengeError untouched.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !c.policy.ShouldRetry(err, attempt+1) {
			return nil, lastErr
		}

		delay := c.policy.Backoff(attempt)
		c.log.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := c.baseCollector.Clone()
	// colly v2.1.0's Clone shares the visited-URL store with the base
	// collector; each clone performs a single Visit, so allowing revisits
	// keeps retries from being rejected as already-visited URLs.
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(c.transport)

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}

	if c.detector.IsChallenge(body) {
		return nil, &catalog.ChallengeError{URL: url}
	}
	return body, nil
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
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
