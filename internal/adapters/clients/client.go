// Package clients talks to the other DistriSchool services over HTTP.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/distrischool/grade-service/internal/auth"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
)

// Default client configuration constants.
const (
	defaultTimeout = 5 * time.Second
	defaultRetries = 2
	defaultBackoff = 200 * time.Millisecond
	maxBodyBytes   = 1 << 20
)

// Option applies a configuration option to a Client.
type Option func(*Client)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a failed attempt is repeated.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client performs JSON GETs against one service, unwrapping its response
// envelope.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
	log     logger.Logger
}

// NewClient creates a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: defaultTimeout,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named(service + "-client")
	}
	return c
}

// envelope is the response wrapper shared by every service.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Get fetches path and decodes the envelope data into out. 404 and an
// unsuccessful envelope yield ErrNotFound; transport failures and 5xx are
// retried and end as ErrUnavailable; other statuses are not retried.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	start := time.Now()
	body, err := c.fetch(ctx, path)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordUpstreamRequest(c.service, outcome, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %s: decode %s: %w", ErrUnavailable, c.service, path, err)
	}
	if env.Success != nil && !*env.Success {
		return fmt.Errorf("%w: %s %s: %s", ErrNotFound, c.service, path, env.Message)
	}
	data := env.Data
	if env.Success == nil {
		data = body
	}
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode %s: %w", ErrUnavailable, c.service, path, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.service, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		body, retry, err := c.attempt(ctx, path)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
		c.log.Warn(ctx, "upstream call failed",
			logger.String("path", path), logger.Int("attempt", attempt+1), logger.Error(err))
	}
	return nil, lastErr
}

// attempt performs one request and reports whether a failure is retryable.
func (c *Client) attempt(ctx context.Context, path string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if tok := auth.TokenFrom(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.service, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: read body: %w", ErrUnavailable, c.service, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s %s", ErrNotFound, c.service, path)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("%w: %s answered %d", ErrUnavailable, c.service, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, false, fmt.Errorf("%w: %s answered %d", ErrUnavailable, c.service, resp.StatusCode)
	}
	return body, false, nil
}
