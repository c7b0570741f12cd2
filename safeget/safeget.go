// Package safeget wraps HTTP GET in retry semantics: transport failures and
// non-2xx statuses are both recoverable until the attempt budget runs out,
// then one final unguarded request decides the outcome.
package safeget

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client performs resilient GET requests.
type Client struct {
	http   *resty.Client
	tries  int
	delay  time.Duration
	sleep  func(time.Duration)
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds a single request. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithTries sets the total attempt budget. Default: 3.
func WithTries(n int) Option { return func(c *Client) { c.tries = n } }

// WithDelay sets the wait between attempts. Default: 2s.
func WithDelay(d time.Duration) Option { return func(c *Client) { c.delay = d } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithSleep replaces time.Sleep between attempts (tests).
func WithSleep(fn func(time.Duration)) Option { return func(c *Client) { c.sleep = fn } }

// New creates a Client with sensible defaults.
func New(opts ...Option) *Client {
	c := &Client{
		http:   resty.New().SetTimeout(10 * time.Second),
		tries:  3,
		delay:  2 * time.Second,
		sleep:  time.Sleep,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get issues a GET to rawURL with the given query parameters. It loops
// tries-1 times treating any transport error or non-2xx status as
// recoverable, then performs one final unguarded request. Repeated keys in
// params (e.g. multiple refine filters) are sent as repeated parameters.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*resty.Response, error) {
	for attempt := c.tries; attempt > 1; attempt-- {
		resp, err := c.do(ctx, rawURL, params)
		if err == nil && resp.IsSuccess() {
			return resp, nil
		}
		reason := describe(resp, err)
		c.logger.Warn("safeget: request failed",
			"url", rawURL, "reason", reason, "attempts_left", attempt-1, "wait", c.delay)
		c.sleep(c.delay)
	}

	resp, err := c.do(ctx, rawURL, params)
	if err != nil {
		return nil, fmt.Errorf("safeget: GET %s: %w", rawURL, err)
	}
	if !resp.IsSuccess() {
		return resp, fmt.Errorf("safeget: GET %s: status %s", rawURL, resp.Status())
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, rawURL string, params url.Values) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	return req.Get(rawURL)
}

func describe(resp *resty.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return "status " + resp.Status()
}
