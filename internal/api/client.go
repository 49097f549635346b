// Package api is a typed client for the crowd-control backend's REST API.
// It keeps the Spring session in a cookie jar, scopes requests to the
// operator with the X-User-Email header, retries idempotent reads and stops
// calling a failing backend for a while via a circuit breaker.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/logger"
)

// ErrCircuitOpen is returned when the circuit breaker is open and requests
// are being skipped to avoid hammering a failing backend.
var ErrCircuitOpen = errors.New("circuit breaker open: backend requests temporarily suspended")

// circuitBreaker tracks consecutive failures and backs off when the backend
// keeps failing.
type circuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	cooldownUntil    time.Time
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	cb.consecutiveFails = 0
	cb.cooldownUntil = time.Time{}
	cb.mu.Unlock()
}

// recordFailure opens the breaker after CircuitBreakerThreshold consecutive
// failures, for 30s more per further failure.
func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	if over := cb.consecutiveFails - constants.CircuitBreakerThreshold + 1; over > 0 {
		cooldown := min(time.Duration(over)*30*time.Second, constants.CircuitBreakerMaxCooldown)
		cb.cooldownUntil = time.Now().Add(cooldown)
	}
}

func (cb *circuitBreaker) shouldSkip() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.cooldownUntil)
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
	breaker    *circuitBreaker

	maxRetries int
	retryBase  time.Duration

	mu        sync.RWMutex
	userEmail string
	session   Session
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Its cookie jar, if any,
// is kept.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithUserEmail sets the X-User-Email header sent on every request.
func WithUserEmail(email string) Option {
	return func(c *Client) { c.userEmail = email }
}

// WithRetries sets how often GET requests are retried and the first retry
// delay, which doubles on every further retry.
func WithRetries(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBase = base
	}
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// http://localhost:8080/api.
func NewClient(baseURL string, log *logger.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   constants.DefaultHTTPTimeout,
			Jar:       jar,
		},
		log:        log.With("api"),
		breaker:    &circuitBreaker{},
		maxRetries: constants.DefaultMaxRetries,
		retryBase:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetUserEmail changes the operator identity sent with every request.
func (c *Client) SetUserEmail(email string) {
	c.mu.Lock()
	c.userEmail = email
	c.mu.Unlock()
}

// UserEmail returns the operator identity sent with every request.
func (c *Client) UserEmail() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userEmail
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling %s %s body: %w", method, path, err)
		}
	}

	respBody, err := c.do(ctx, method, path, query, payload)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s %s response: %w", method, path, err)
	}
	return nil
}

// do performs the HTTP request. GETs are retried on transport errors, 429
// and 5xx with exponential backoff. Individual retries are logged at DEBUG;
// only the final failure is logged at WARN.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	if c.breaker.shouldSkip() {
		c.log.Debug("Circuit breaker open, skipping request", "path", path)
		return nil, ErrCircuitOpen
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	maxRetries := 0
	if method == http.MethodGet {
		maxRetries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryBase
			c.log.Debug("Retrying request",
				"path", path,
				"attempt", fmt.Sprintf("%d/%d", attempt, maxRetries),
				"backoff", backoff)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, status, err := c.roundTrip(ctx, method, target, payload)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%s %s: %w", method, path, err)
			continue
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = newStatusError(method, path, status, body)
			continue
		case status < 200 || status > 299:
			c.breaker.recordSuccess()
			return nil, newStatusError(method, path, status, body)
		}

		c.breaker.recordSuccess()
		c.log.Debug("Request completed", "method", method, "path", path, "status", status)
		return body, nil
	}

	c.breaker.recordFailure()
	c.log.Warn("Request failed",
		"method", method,
		"path", path,
		"attempts", maxRetries+1,
		"error", lastErr)
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, image/png;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", constants.UserAgent)
	if email := c.UserEmail(); email != "" {
		req.Header.Set(constants.UserEmailHeader, email)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}
