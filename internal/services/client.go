package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ProxyRing is a fixed-size round-robin proxy pool. The cursor advances
// monotonically on every attempt regardless of outcome, so a dead proxy hit
// on one attempt is bypassed on the next. Owned by a single worker; not
// safe for concurrent use.
type ProxyRing struct {
	proxies []string
	cursor  int
}

func NewProxyRing(proxies []string) *ProxyRing {
	return &ProxyRing{proxies: proxies}
}

// Next returns the next proxy address, or "" for an empty ring (direct
// connection).
func (r *ProxyRing) Next() string {
	if len(r.proxies) == 0 {
		return ""
	}
	proxy := r.proxies[r.cursor%len(r.proxies)]
	r.cursor++
	return proxy
}

func (r *ProxyRing) Size() int { return len(r.proxies) }

// ClientOptions configures the rate-limited client.
type ClientOptions struct {
	Proxies           []string
	Attempts          int           // total attempts, default 3
	BackoffBase       time.Duration // default 4s
	BackoffCap        time.Duration // default 10s
	RequestsPerSecond float64       // 0 disables pacing
	ScrapingKey       string        // optional upstream scraping-service key
	Timeout           time.Duration // per-request, default 30s
}

// Client issues GET requests through the rotating proxy ring with bounded
// exponential-backoff retry. Stateless except for the ring cursor.
type Client struct {
	http        *resty.Client
	ring        *ProxyRing
	limiter     *rate.Limiter
	attempts    int
	backoffBase time.Duration
	backoffCap  time.Duration
	scrapingKey string

	sleep func(time.Duration) // swapped out in tests
}

func NewClient(opts ClientOptions) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 4 * time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		http:        httpClient,
		ring:        NewProxyRing(opts.Proxies),
		limiter:     limiter,
		attempts:    opts.Attempts,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		scrapingKey: opts.ScrapingKey,
		sleep:       time.Sleep,
	}
}

// Fetch GETs url with the given headers. Each attempt routes through the
// next proxy in the ring; backoff sleeps happen only between attempts,
// never after the last one. After the budget is spent the last failure is
// wrapped in a TransientNetworkError.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		if proxy := c.ring.Next(); proxy != "" {
			c.http.SetProxy("http://" + proxy)
		}

		req := c.http.R().SetContext(ctx).SetHeaders(headers)
		if c.scrapingKey != "" {
			req.SetHeader("X-Api-Key", c.scrapingKey)
		}

		resp, err := req.Get(url)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode() < 200 || resp.StatusCode() > 299:
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode())
		default:
			return resp.Body(), nil
		}

		if attempt < c.attempts {
			c.sleep(c.backoffDelay(attempt))
		}
	}

	return nil, &TransientNetworkError{URL: url, Err: lastErr}
}

// backoffDelay computes base * 2^(attempt-1) plus up to 25% jitter. The
// whole delay, jitter included, never exceeds the cap.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.backoffCap {
			delay = c.backoffCap
			break
		}
	}
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	if delay > c.backoffCap {
		delay = c.backoffCap
	}
	return delay
}
