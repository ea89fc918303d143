// Package feed is the HTTP client shared by the source adapters. It bounds
// in-flight requests and request rate across every adapter that holds it, and
// classifies failures into the domain error taxonomy.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
)

const (
	maxBodyBytes  = 32 << 20
	maxErrorBytes = 512
)

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is expected to clear on a later poll.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config bounds the client's use of upstream feeds.
type Config struct {
	Timeout       time.Duration
	Concurrency   int     // maximum in-flight requests
	RatePerSecond float64 // sustained request rate; zero or less disables limiting
	UserAgent     string
}

// DefaultConfig returns conservative limits suitable for public feeds.
func DefaultConfig() Config {
	return Config{
		Timeout:       15 * time.Second,
		Concurrency:   8,
		RatePerSecond: 10,
		UserAgent:     "disaster-alert-service",
	}
}

// Client issues GET requests to feeds.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	slots      chan struct{}
	userAgent  string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		slots:      make(chan struct{}, cfg.Concurrency),
		userAgent:  cfg.UserAgent,
		metrics:    metrics,
		logger:     logger,
	}
}

// GetJSON fetches rawURL with query and decodes the JSON body into dest.
// Failures are *domain.TransientSourceError or *domain.MalformedPayloadError
// attributed to source.
func (c *Client) GetJSON(ctx context.Context, source, rawURL string, query url.Values, dest any) error {
	body, err := c.Get(ctx, source, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return domain.Malformed(source, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Get fetches rawURL with query and returns the raw body.
func (c *Client) Get(ctx context.Context, source, rawURL string, query url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.ConfigurationError{Component: source, Err: fmt.Errorf("parse url: %w", err)}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, domain.Transient(source, ctx.Err())
	}
	defer func() { <-c.slots }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.Transient(source, fmt.Errorf("rate limit wait: %w", err))
	}

	start := time.Now()
	body, err := c.do(ctx, u.String())
	c.metrics.FeedRequestDuration.WithLabelValues(u.Host).Observe(time.Since(start).Seconds())

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			c.metrics.FeedRequests.WithLabelValues(u.Host, "malformed").Inc()
			return nil, domain.Malformed(source, "", err)
		}
		c.metrics.FeedRequests.WithLabelValues(u.Host, "transient").Inc()
		c.logger.Debug("feed request failed", "source", source, "host", u.Host, "error", err)
		return nil, domain.Transient(source, err)
	}
	c.metrics.FeedRequests.WithLabelValues(u.Host, "success").Inc()
	return body, nil
}

func (c *Client) do(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json, application/geo+json, text/csv;q=0.9, */*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
