// Package factory fetches per-credential usage from the Factory.ai
// organization usage endpoint. Fetch outcomes are report results, not
// errors: an unreachable or misbehaving upstream yields a failure entry
// for that credential and never aborts a polling round.
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	"github.com/keymeterhq/keymeter/internal/metrics"
	"github.com/keymeterhq/keymeter/internal/version"
)

// Failure messages surfaced in report entries.
const (
	msgFetchFailed     = "fetch failed"
	msgInvalidResponse = "Invalid API response"
)

// maxAttempts bounds the 401 retry loop: one initial request plus two retries.
const maxAttempts = 3

// Client calls the usage endpoint with per-credential bearer auth.
type Client struct {
	httpClient *http.Client
	url        string
	userAgent  string
	sleep      func(time.Duration)
	logger     *zap.Logger
}

// Config holds the upstream endpoint settings.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a usage client.
func NewClient(cfg *Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		userAgent:  version.UserAgent(),
		sleep:      time.Sleep,
		logger:     cfg.Logger,
	}
}

// WithSleep replaces the retry backoff sleeper (used in tests).
func (c *Client) WithSleep(fn func(time.Duration)) *Client {
	c.sleep = fn
	return c
}

// Fetch reports usage for one credential. A 401 is retried up to two
// more times with 1s and 2s backoff; every other failure is final.
func (c *Client) Fetch(ctx context.Context, cred domcred.Credential) domreport.Result {
	for attempt := 1; ; attempt++ {
		status, body, err := c.do(ctx, cred.Secret())
		if err != nil {
			c.logger.Warn("Upstream fetch failed",
				zap.String("id", cred.ID()),
				zap.String("key", cred.Masked()),
				zap.Error(err),
			)
			metrics.UpstreamErrorsTotal.WithLabelValues("fetch_failed").Inc()
			return domreport.NewFailure(cred.ID(), cred.Masked(), msgFetchFailed)
		}

		if status == http.StatusUnauthorized && attempt < maxAttempts {
			metrics.UpstreamRetriesTotal.Inc()
			c.sleep(time.Duration(attempt) * time.Second)
			continue
		}

		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			c.logger.Warn("Upstream returned an error status",
				zap.String("id", cred.ID()),
				zap.String("key", cred.Masked()),
				zap.Int("status", status),
			)
			metrics.UpstreamErrorsTotal.WithLabelValues(errorReason(status)).Inc()
			return domreport.NewFailure(cred.ID(), cred.Masked(), fmt.Sprintf("HTTP %d", status))
		}

		if !json.Valid(body) {
			c.logger.Warn("Upstream returned a non-JSON body",
				zap.String("id", cred.ID()),
				zap.String("key", cred.Masked()),
			)
			metrics.UpstreamErrorsTotal.WithLabelValues("fetch_failed").Inc()
			return domreport.NewFailure(cred.ID(), cred.Masked(), msgFetchFailed)
		}

		result, ok := parseUsage(cred, body)
		if !ok {
			c.logger.Warn("Upstream returned an unusable payload",
				zap.String("id", cred.ID()),
				zap.String("key", cred.Masked()),
			)
			metrics.UpstreamErrorsTotal.WithLabelValues("invalid_response").Inc()
		}
		return result
	}
}

// Reachable reports whether the usage endpoint answers at all. The
// request carries no credentials; any HTTP status counts as reachable
// and only transport failures do not.
func (c *Client) Reachable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach usage endpoint: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// do performs one HTTP attempt. The secret travels only in the
// Authorization header and is never logged.
func (c *Client) do(ctx context.Context, secret string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		metrics.UpstreamRequestDuration.WithLabelValues("error").Observe(duration.Seconds())
		return 0, nil, fmt.Errorf("usage request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		metrics.UpstreamRequestDuration.WithLabelValues("error").Observe(duration.Seconds())
		return 0, nil, fmt.Errorf("read usage response: %w", err)
	}

	status := "success"
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		status = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(status).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(status).Observe(duration.Seconds())

	return resp.StatusCode, body, nil
}

func errorReason(status int) string {
	if status == http.StatusUnauthorized {
		return "http_401"
	}
	return "http_error"
}
