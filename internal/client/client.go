// Package client implements the authenticated client of the incident service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultPageSize  = 50
	defaultUserAgent = "incident-console"

	// maxPages bounds ListIncidents when the service never reports a last page.
	maxPages = 1000
)

// RequestIDHeader carries the id generated for every outbound request.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the bearer credential of the current session.
// Token returns "" when no session exists. A non-nil error aborts the request
// before it is sent.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds client configuration.
type Config struct {
	BaseURL   string        // e.g. http://localhost:8081/api
	Timeout   time.Duration // transport timeout, default 10s
	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int
	PageSize  int // page size used by ListIncidents, default 50
	UserAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client performs incident service operations on behalf of the current session.
// It never retries: retry policy belongs to the caller.
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	validate   *validator.Validate
}

// New creates a new client. tokens may be nil for a client that never authenticates.
func New(config Config, tokens TokenSource, opts ...Option) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		tokens:     tokens,
		validate:   validator.New(),
	}

	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request describes a single outbound call.
type request struct {
	op            string
	method        string
	path          string
	query         url.Values
	body          any
	authenticated bool
	badRequest    error // kind for a 400 instead of ErrServer, when set
}

// do sends req and decodes the data member of the response into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: wait for rate limiter: %w: %w", req.op, ErrNetwork, err)
		}
	}

	var token string
	if req.authenticated && c.tokens != nil {
		var err error
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", req.op, err)
		}
	}

	var bodyReader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", req.op, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	target := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", req.op, err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set(RequestIDHeader, requestID)
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	logger := ctxlog.FromContext(ctx).With(
		"operation", req.op,
		"upstream_request_id", requestID,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.UpstreamRequestDuration.WithLabelValues(req.op, "error").Observe(time.Since(start).Seconds())
		logger.Debug("upstream request failed", "error", err)
		return fmt.Errorf("%s: %w: %w", req.op, ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w: %w", req.op, ErrNetwork, err)
	}

	duration := time.Since(start)
	metrics.UpstreamRequestDuration.WithLabelValues(req.op, strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())
	logger.Debug("upstream request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := kindForStatus(resp.StatusCode)
		if resp.StatusCode == http.StatusBadRequest && req.badRequest != nil {
			kind = req.badRequest
		}
		return &APIError{
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Kind:       kind,
		}
	}

	data, env := unwrapEnvelope(body)
	if env != nil && env.Success != nil && !*env.Success {
		return &APIError{
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    env.Message,
			Kind:       ErrServer,
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %w", req.op, ErrServer, err)
	}

	return nil
}
