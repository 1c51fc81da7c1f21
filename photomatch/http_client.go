package photomatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits the response body to 50 MB.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchData and PushData.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// statusError is a non-2xx response. 4xx responses are not retried.
type statusError struct {
	method, url string
	code        int
	body        string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("HTTP %s %s: status %d: %s", e.method, e.url, e.code, e.body)
	}
	return fmt.Sprintf("HTTP %s %s: status %d", e.method, e.url, e.code)
}

func (e *statusError) transient() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// FetchData downloads a data document from another photomatch server's
// /data endpoint. Transient failures are retried with exponential backoff.
func FetchData(ctx context.Context, dataURL string, opts ...FetchOption) (*Data, error) {
	if dataURL == "" {
		return nil, fmt.Errorf("fetch data: URL is empty")
	}

	body, err := withRetry(ctx, opts, func(ctx context.Context, client *http.Client) ([]byte, error) {
		return doRequest(ctx, client, http.MethodGet, dataURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch data: %w", err)
	}

	var d Data
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("fetch data: parsing response: %w", err)
	}
	return &d, nil
}

// PushData posts a data document to a /data endpoint. The server rejects a
// document whose version is not newer than its own.
func PushData(ctx context.Context, dataURL string, d *Data, opts ...FetchOption) error {
	if dataURL == "" {
		return fmt.Errorf("push data: URL is empty")
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("push data: %w", err)
	}

	_, err = withRetry(ctx, opts, func(ctx context.Context, client *http.Client) ([]byte, error) {
		return doRequest(ctx, client, http.MethodPost, dataURL, payload)
	})
	if err != nil {
		return fmt.Errorf("push data: %w", err)
	}
	return nil
}

func withRetry(ctx context.Context, opts []FetchOption, do func(context.Context, *http.Client) ([]byte, error)) ([]byte, error) {
	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := range cfg.maxRetries {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := do(ctx, client)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if se, ok := err.(*statusError); ok && !se.transient() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", cfg.maxRetries, lastErr)
}

// doRequest performs a single HTTP request and returns the response body.
func doRequest(ctx context.Context, client *http.Client, method, url string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP %s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{method: method, url: url, code: resp.StatusCode, body: string(bytes.TrimSpace(body))}
	}
	return body, nil
}
