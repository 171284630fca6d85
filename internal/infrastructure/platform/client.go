package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
	"moysklad-sync-layer/internal/ports"
)

// client is the MoySklad JSON API adapter. It decodes every response into a
// generic document and maps non-2xx statuses to *domain.APIError so callers
// can tell 404 from 429 from 5xx.
type client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// CallTimeout bounds every single platform call.
const CallTimeout = 30 * time.Second

// NewClient creates a platform client for one account token.
func NewClient(token string) ports.PlatformClient {
	return NewClientWithOptions(token, nil, DefaultRetryConfig(), nil, zerolog.Nop())
}

// NewClientWithOptions creates a client with rate limiting, retry and metrics.
func NewClientWithOptions(
	token string,
	rateLimiter *RateLimiter,
	retryConfig RetryConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) ports.PlatformClient {
	return &client{
		baseURL:     domain.APIBase,
		token:       token,
		httpClient:  &http.Client{Timeout: CallTimeout},
		rateLimiter: rateLimiter,
		retryConfig: retryConfig,
		metrics:     m,
		logger:      logger,
	}
}

func (c *client) Get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *client) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *client) Put(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

func (c *client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// Download fetches binary content from an absolute href. Image download hrefs
// live outside the API base path, so the href is used as-is.
func (c *client) Download(ctx context.Context, href string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform download failed: %w", err)
	}
	defer resp.Body.Close()

	c.countStatus(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body any) (map[string]any, error) {
	var lastErr error
	attempts := c.retryConfig.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.retryConfig.delay(attempt - 1)
			c.logger.Debug().
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying platform request")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		result, err := c.doOnce(ctx, method, path, query, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *client) doOnce(ctx context.Context, method, path string, query url.Values, body any) (map[string]any, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json;charset=utf-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	c.countStatus(resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if len(respBody) == 0 {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return decoded, nil
}

func (c *client) countStatus(status int) {
	if c.metrics == nil {
		return
	}
	class := fmt.Sprintf("%dxx", status/100)
	c.metrics.PlatformCalls.WithLabelValues(class).Inc()
}
