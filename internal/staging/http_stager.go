package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nathanielparke/cannoli/internal/paths"
)

// HTTPStagerConfig contains HTTP/HTTPS stager settings.
type HTTPStagerConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxRetries is the number of attempts per file.
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// Headers are added to every request.
	Headers map[string]string
}

// HTTPStager downloads staged files, typically from the driver's file server.
type HTTPStager struct {
	config HTTPStagerConfig
	client *http.Client
}

// NewHTTPStager creates an HTTPStager with the given configuration.
func NewHTTPStager(cfg HTTPStagerConfig) *HTTPStager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPStager{
		config: cfg,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// StageIn downloads location to destPath, retrying transient failures with
// exponential backoff. Client errors (4xx) are not retried.
func (s *HTTPStager) StageIn(ctx context.Context, location, destPath string) error {
	scheme, _ := paths.ParseScheme(location)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("http stager: unsupported scheme %q", scheme)
	}

	maxRetries := s.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay(attempt)):
			}
		}

		err := s.download(ctx, location, destPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if isClientError(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("http stager: download failed after %d attempts: %w", maxRetries, lastErr)
}

func (s *HTTPStager) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &httpError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return writeAtomic(destPath, resp.Body)
}

// retryDelay calculates the delay for a retry attempt using exponential backoff.
func (s *HTTPStager) retryDelay(attempt int) time.Duration {
	delay := s.config.RetryDelay
	if delay == 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func isClientError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
