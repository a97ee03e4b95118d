// Package httpclient performs JSON HTTP calls with bounded retries.
//
// Idempotent reads retry on transport errors and on retryable statuses with
// exponential backoff and jitter, honoring Retry-After. Mutations are sent
// once.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const bodySnippetLimit = 900

// HTTPError carries status and body for non-2xx responses so callers can
// still decode an error envelope.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %s %s: status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body))
}

// RetryConfig controls retry behavior for idempotent requests.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Retry5xx      bool
	RetryStatuses map[int]bool
}

// DefaultRetryConfig retries transient statuses three times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Retry5xx:    true,
		RetryStatuses: map[int]bool{
			http.StatusTooManyRequests:    true,
			http.StatusRequestTimeout:     true,
			http.StatusTooEarly:           true,
			http.StatusServiceUnavailable: true,
			http.StatusBadGateway:         true,
			http.StatusGatewayTimeout:     true,
		},
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.RetryStatuses == nil {
		c.RetryStatuses = def.RetryStatuses
	}
	return c
}

// Client sends JSON requests.
type Client struct {
	http   *http.Client
	retry  RetryConfig
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetry sets the retry policy for reads.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg.normalized() }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Client. The default transport times out after timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: timeout},
		retry:  DefaultRetryConfig(),
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET with retries and decodes the 2xx body into out.
// A non-2xx response returns *HTTPError.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	body, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSON sends in as JSON exactly once and decodes the 2xx body into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	body, _, err := c.do(req)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func (c *Client) doWithRetry(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	cfg := c.retry.normalized()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		body, retryAfter, err := c.do(req)
		if err == nil {
			return body, nil
		}
		if !c.retryable(err, cfg) || attempt == cfg.MaxAttempts {
			return body, err
		}
		lastErr = err
		delay := backoff(attempt, cfg, retryAfter)
		c.logger.Debug("retrying request",
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("httpclient: request failed")
	}
	return nil, lastErr
}

func (c *Client) do(req *http.Request) ([]byte, time.Duration, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, 0, nil
	}
	return body, ParseRetryAfter(resp), &HTTPError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

func (c *Client) retryable(err error, cfg RetryConfig) bool {
	var herr *HTTPError
	if errors.As(err, &herr) {
		if cfg.RetryStatuses[herr.StatusCode] {
			return true
		}
		return cfg.Retry5xx && herr.StatusCode >= 500 && herr.StatusCode <= 599
	}
	return isRetryableNetErr(err)
}

func backoff(attempt int, cfg RetryConfig, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, cfg.MaxDelay)
	}
	delay := cfg.BaseDelay * time.Duration(1<<(attempt-1))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay + time.Duration(rand.IntN(100))*time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof")
}

// ParseRetryAfter parses a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func decode(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w body=%s", err, snippet(body))
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= bodySnippetLimit {
		return s
	}
	return s[:bodySnippetLimit] + "..."
}
