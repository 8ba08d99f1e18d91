// Package mediawiki talks to a MediaWiki Action API endpoint.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"
)

// PageNotFoundError indicates that a requested page does not exist.
type PageNotFoundError struct {
	Title string
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("page not found: %s", e.Title)
}

// IsPageNotFound checks if an error is a PageNotFoundError.
func IsPageNotFound(err error) bool {
	var notFound *PageNotFoundError
	return errors.As(err, &notFound)
}

// DiffUnavailableError indicates that the wiki could not produce a diff
// between two revisions, usually because one was deleted or suppressed.
type DiffUnavailableError struct {
	From, To int64
	Reason   string
}

func (e *DiffUnavailableError) Error() string {
	return fmt.Sprintf("diff %d..%d unavailable: %s", e.From, e.To, e.Reason)
}

// IsDiffUnavailable checks if an error is a DiffUnavailableError.
func IsDiffUnavailable(err error) bool {
	var unavailable *DiffUnavailableError
	return errors.As(err, &unavailable)
}

// APIError is an error object returned in an API response body.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// transient reports whether the request is worth repeating.
func (e *APIError) transient() bool {
	switch e.Code {
	case "maxlag", "ratelimited", "readonly", "internal_api_error_DBQueryError":
		return true
	}
	return false
}

// Config controls how the client reaches the wiki.
type Config struct {
	APIURL            string
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Attempts          uint
	Delay             time.Duration
}

// Client is a throttled, retrying Action API client.
type Client struct {
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	apiURL    string
	userAgent string
	attempts  uint
	delay     time.Duration
	loggedIn  atomic.Bool
}

// New creates a client. A cookie jar is attached when the HTTP client has
// none, since editing requires a login session.
func New(client *http.Client, cfg Config, logger *slog.Logger) *Client {
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err == nil {
			c := *client
			c.Jar = jar
			client = &c
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 5
	}
	delay := cfg.Delay
	if delay == 0 {
		delay = time.Second
	}

	return &Client{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
		apiURL:    cfg.APIURL,
		userAgent: cfg.UserAgent,
		attempts:  attempts,
		delay:     delay,
	}
}

// call performs one API request and decodes the response into dst.
// POST is used for write actions; the parameters are form encoded.
func (c *Client) call(ctx context.Context, method string, params url.Values, dst any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	action := params.Get("action")

	// Errors that must not be retried are kept here so their type survives.
	var permanent error

	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				permanent = fmt.Errorf("rate limiter: %w", err)
				return retry.Unrecoverable(permanent)
			}

			req, err := c.newRequest(ctx, method, params)
			if err != nil {
				permanent = err
				return retry.Unrecoverable(err)
			}

			c.logger.Debug("API request starting", "method", method, "action", action)
			start := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(start)
			if err != nil {
				c.logger.Warn("API request failed, will retry",
					"action", action,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("API request completed",
				"action", action,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				c.logger.Warn("API request returned retryable status", "action", action, "status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				permanent = fmt.Errorf("HTTP %d for action %s", resp.StatusCode, action)
				return retry.Unrecoverable(permanent)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			var envelope struct {
				Error *APIError `json:"error"`
			}
			if err := json.Unmarshal(body, &envelope); err != nil {
				permanent = fmt.Errorf("decode response: %w", err)
				return retry.Unrecoverable(permanent)
			}
			if envelope.Error != nil {
				if envelope.Error.transient() {
					return envelope.Error
				}
				permanent = envelope.Error
				return retry.Unrecoverable(permanent)
			}

			if err := json.Unmarshal(body, dst); err != nil {
				permanent = fmt.Errorf("decode %s response: %w", action, err)
				return retry.Unrecoverable(permanent)
			}
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying API request after error", "attempt", n, "action", action, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return permanent == nil
		}),
	)

	if permanent != nil {
		return permanent
	}
	if err != nil {
		return fmt.Errorf("%s after retries: %w", action, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, params url.Values) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
