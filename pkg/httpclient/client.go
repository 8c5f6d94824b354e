// Package httpclient provides the resilient HTTP client used by every
// pipeline worker. Each worker owns one Client (and so one connection
// pool); retry state is never shared across workers.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qianyu2019/firedoor-extractor/pkg/errs"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

// Transient statuses that get another attempt before failing.
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is a retrying HTTP client. Retries apply to GET and POST only,
// on connection-level failures and on the transient status set, with
// exponential backoff between attempts.
type Client struct {
	hc         *http.Client
	maxRetries int
	baseDelay  time.Duration
	log        logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets how many additional attempts follow the first one.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the backoff seed delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.hc.Timeout = d
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New creates a Client with its own connection pool.
func New(opts ...Option) *Client {
	c := &Client{
		hc: &http.Client{
			Timeout: 120 * time.Second,
		},
		maxRetries: 3,
		baseDelay:  5 * time.Second,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one HTTP call.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// Response is the fully-read result of a call that ended with a
// non-transient status.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do sends the request, retrying transient failures, and returns the
// first non-transient response. After the retry budget is exhausted it
// returns a *errs.TransportError wrapping the last cause.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	bo.RandomizationFactor = 0.25
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // attempt count is the only budget

	retryable := req.Method == http.MethodGet || req.Method == http.MethodPost

	var (
		attempts   int
		lastStatus int
		lastErr    error
	)
	for {
		attempts++
		resp, err := c.attempt(ctx, req)
		if err == nil {
			if !retryStatuses[resp.StatusCode] {
				return resp, nil
			}
			lastStatus, lastErr = resp.StatusCode, nil
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastStatus, lastErr = 0, err
		}

		if !retryable || attempts > c.maxRetries {
			return nil, &errs.TransportError{
				Method:   req.Method,
				URL:      req.URL,
				Attempts: attempts,
				Status:   lastStatus,
				Err:      lastErr,
			}
		}

		wait := bo.NextBackOff()
		c.log.Warn("retrying request",
			logger.String("url", req.URL),
			logger.Int("attempt", attempts),
			logger.Int("status", lastStatus),
			logger.Duration("backoff", wait),
			logger.Error(lastErr),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// PostJSON sends a JSON body and returns the response.
func (c *Client) PostJSON(ctx context.Context, url string, header map[string]string, body []byte) (*Response, error) {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range header {
		h[k] = v
	}
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: url, Header: h, Body: body})
}

// Close releases idle connections held by the client's pool.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}
