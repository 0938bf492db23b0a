// Package http provides an HTTP client for upstream APIs with retries, timeouts, rate limiting and logging
package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

// maxErrorBody bounds how much of a failed response body is kept in the error message
const maxErrorBody = 512

// ClientOptions configures the HTTP client behavior
type ClientOptions struct {
	// Service names the upstream in errors and logs
	Service string
	Timeout time.Duration
	// MaxRetries applies to transport errors, 429 and 5xx only
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// RequestsPerSecond <= 0 disables rate limiting
	RequestsPerSecond float64
	Burst             int
	Headers           map[string]string
	RequestLogger     func(method, url string, body []byte)
	ResponseLogger    func(statusCode int, body []byte, err error)
}

// DefaultOptions returns sensible default client options
func DefaultOptions() ClientOptions {
	return ClientOptions{
		Service:        "upstream",
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RequestLogger:  func(_, _ string, _ []byte) {},
		ResponseLogger: func(_ int, _ []byte, _ error) {},
	}
}

// Client is a wrapper around http.Client with additional functionality
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	options ClientOptions
}

// NewClient creates a new HTTP client with the given options
func NewClient(options ClientOptions) *Client {
	if options.RequestLogger == nil {
		options.RequestLogger = func(_, _ string, _ []byte) {}
	}
	if options.ResponseLogger == nil {
		options.ResponseLogger = func(_ int, _ []byte, _ error) {}
	}
	if options.Service == "" {
		options.Service = "upstream"
	}

	c := &Client{
		client:  &http.Client{Timeout: options.Timeout},
		options: options,
	}
	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}
	return c
}

// Service returns the upstream name used in errors
func (c *Client) Service() string {
	return c.options.Service
}

// DoRequest performs an HTTP request with retries and logging.
// A non-2xx final status is returned as a *customErrors.ServiceError together with the body.
func (c *Client) DoRequest(ctx context.Context, method, url string, body interface{}, headers map[string]string) ([]byte, int, error) {
	var bodyBytes []byte
	var err error

	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	c.options.RequestLogger(method, url, bodyBytes)

	return c.performRequestWithRetries(ctx, method, url, bodyBytes, headers)
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) ([]byte, int, error) {
	return c.DoRequest(ctx, http.MethodGet, url, nil, nil)
}

// GetJSON performs a GET request and unmarshals the response into target
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) (int, error) {
	return c.DoJSONRequest(ctx, http.MethodGet, url, nil, target, nil)
}

func (c *Client) performRequestWithRetries(ctx context.Context, method, url string, bodyBytes []byte, headers map[string]string) ([]byte, int, error) {
	var statusCode int
	var responseBytes []byte
	var err error

	backoff := c.options.RetryBackoff

	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if err = c.applyBackoffDelay(ctx, attempt, &backoff); err != nil {
			return nil, 0, err
		}

		if c.limiter != nil {
			if err = c.limiter.Wait(ctx); err != nil {
				return nil, 0, err
			}
		}

		responseBytes, statusCode, err = c.executeRequest(ctx, method, url, bodyBytes, headers)

		if !c.shouldRetryRequest(ctx, statusCode, err) {
			break
		}
	}

	c.options.ResponseLogger(statusCode, responseBytes, err)

	if err != nil {
		return nil, statusCode, err
	}

	if statusCode < 200 || statusCode >= 300 {
		snippet := responseBytes
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return responseBytes, statusCode, customErrors.NewServiceStatusError(c.options.Service, statusCode,
			fmt.Sprintf("request failed with status %d: %s", statusCode, bytes.TrimSpace(snippet)))
	}

	return responseBytes, statusCode, nil
}

// applyBackoffDelay waits an appropriate time between retry attempts
func (c *Client) applyBackoffDelay(ctx context.Context, attempt int, backoff *time.Duration) error {
	if attempt <= 0 || *backoff <= 0 {
		return nil
	}

	// crypto/rand jitter keeps concurrent retries from synchronising
	sleepTime := *backoff
	if maxJitter := int64(*backoff) / 2; maxJitter > 0 {
		randomBig, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			return fmt.Errorf("failed to generate secure random number: %w", err)
		}
		sleepTime += time.Duration(randomBig.Int64())
	}

	timer := time.NewTimer(sleepTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	*backoff *= 2
	if c.options.MaxBackoff > 0 && *backoff > c.options.MaxBackoff {
		*backoff = c.options.MaxBackoff
	}

	return nil
}

// executeRequest performs a single HTTP request
func (c *Client) executeRequest(ctx context.Context, method, url string, bodyBytes []byte, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if len(bodyBytes) > 0 {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}

	for key, value := range c.options.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if len(bodyBytes) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return responseBytes, resp.StatusCode, nil
}

// shouldRetryRequest determines if a request should be retried based on status code and error
func (c *Client) shouldRetryRequest(ctx context.Context, statusCode int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	// Don't retry on 4xx client errors (except 429 - too many requests)
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		return false
	}

	if statusCode >= 200 && statusCode < 300 {
		return false
	}

	return true
}

// DoJSONRequest performs an HTTP request and unmarshals the response into the target
func (c *Client) DoJSONRequest(ctx context.Context, method, url string, requestBody, responseTarget interface{}, headers map[string]string) (int, error) {
	respBody, statusCode, err := c.DoRequest(ctx, method, url, requestBody, headers)
	if err != nil {
		return statusCode, err
	}

	if responseTarget != nil {
		if err := json.Unmarshal(respBody, responseTarget); err != nil {
			return statusCode, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return statusCode, nil
}
