package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/eugene-kirzhanov/vkcup21/pkg/middleware"
	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
	"github.com/eugene-kirzhanov/vkcup21/pkg/tracing"
)

const tracerName = "httpclient"

// Client wraps http.Client with JSON decoding, tracing and optional retries
type Client struct {
	httpClient  *http.Client
	baseURL     string
	name        string
	retryConfig *resilience.RetryConfig
}

// Option configures the HTTP client
type Option func(*Client)

// WithRetry enables retry logic with the given configuration
func WithRetry(config resilience.RetryConfig) Option {
	return func(c *Client) {
		if config.RetryableChecker == nil {
			config.RetryableChecker = isHTTPRetryable
		}
		c.retryConfig = &config
	}
}

// WithDefaultRetry enables the default retry configuration
func WithDefaultRetry() Option {
	return WithRetry(resilience.DefaultRetryConfig())
}

// WithName labels retry metrics for this client
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// WithHTTPClient replaces the underlying transport client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new HTTP client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		name:       "http",
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Get makes a GET request and returns the response body
func (c *Client) Get(ctx context.Context, path string, query url.Values, headers map[string]string) ([]byte, error) {
	if c.retryConfig == nil {
		return c.doGet(ctx, path, query, headers)
	}

	result, err := resilience.RetryWithName(ctx, *c.retryConfig, func(ctx context.Context) (interface{}, error) {
		return c.doGet(ctx, path, query, headers)
	}, c.name)
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// GetJSON makes a GET request and decodes the JSON response into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.Get(ctx, path, query, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, headers map[string]string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	injectCorrelationID(ctx, req)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	var respBody []byte
	// Query strings may carry API keys, so only the path is recorded.
	_, err = tracing.TraceHTTPClient(ctx, tracerName, http.MethodGet, c.baseURL+path, func(ctx context.Context) (int, error) {
		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			return 0, fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return resp.StatusCode, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isHTTPRetryable retries retryable statuses and transport failures
func isHTTPRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return resilience.IsRetryableHTTPStatus(httpErr.StatusCode)
	}
	return true
}

func injectCorrelationID(ctx context.Context, req *http.Request) {
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	}
}
