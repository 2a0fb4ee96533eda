package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/observability/metrics"
	"github.com/garyjia/logistics-console/pkg/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

// Config holds backend client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the REST backend on behalf of the stored identity
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	userAgent  string
	httpClient *http.Client
	identity   port.IdentityProvider
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records every call
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a backend client
func New(cfg Config, identity port.IdentityProvider, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := utils.ValidateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if identity == nil {
		return nil, errors.New("identity provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "logistics-console"
	}

	c := &Client{
		baseURL:    base,
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{},
		identity:   identity,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ port.Backend = (*Client)(nil)

func (c *Client) Get(ctx context.Context, resource string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, resource, query, nil)
}

func (c *Client) Post(ctx context.Context, resource string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, resource, nil, body)
}

func (c *Client) Put(ctx context.Context, resource string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, resource, nil, body)
}

func (c *Client) Delete(ctx context.Context, resource string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, resource, nil, nil)
}

func (c *Client) do(ctx context.Context, method, resource string, query url.Values, body any) (json.RawMessage, error) {
	identity, err := c.identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil || identity.Token == "" {
		return nil, apperrors.ErrMissingIdentity
	}

	endpoint := c.baseURL.JoinPath(resource)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, resource, err)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+identity.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded)
		outcome := metrics.OutcomeTransport
		if timedOut {
			outcome = metrics.OutcomeTimeout
		}
		c.metrics.ObserveRequest(method, resource, outcome, time.Since(start))
		c.logger.Warn("Backend call failed",
			zap.String("method", method),
			zap.String("resource", resource),
			zap.Bool("timeout", timedOut),
			zap.Error(err))
		return nil, &apperrors.RequestError{
			Method:    method,
			Resource:  resource,
			Retryable: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.ObserveRequest(method, resource, metrics.OutcomeTransport, time.Since(start))
		return nil, &apperrors.RequestError{Method: method, Resource: resource, Status: resp.StatusCode, Retryable: true, Err: err}
	}

	env, decodeErr := decodeEnvelope(raw)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.metrics.ObserveRequest(method, resource, metrics.OutcomeAuth, time.Since(start))
		return nil, &apperrors.AuthRequiredError{Status: resp.StatusCode, Message: env.Message}
	case resp.StatusCode >= 400:
		outcome := metrics.OutcomeClientError
		if resp.StatusCode >= 500 {
			outcome = metrics.OutcomeServerError
		}
		c.metrics.ObserveRequest(method, resource, outcome, time.Since(start))
		return nil, &apperrors.RequestError{
			Method:    method,
			Resource:  resource,
			Status:    resp.StatusCode,
			Message:   env.Message,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	case decodeErr != nil:
		c.metrics.ObserveRequest(method, resource, metrics.OutcomeTransport, time.Since(start))
		return nil, &apperrors.RequestError{Method: method, Resource: resource, Status: resp.StatusCode, Err: decodeErr}
	case env.failed():
		c.metrics.ObserveRequest(method, resource, metrics.OutcomeRejected, time.Since(start))
		return nil, &apperrors.RequestError{Method: method, Resource: resource, Status: resp.StatusCode, Message: env.Message}
	}

	c.metrics.ObserveRequest(method, resource, metrics.OutcomeOK, time.Since(start))
	c.logger.Debug("Backend call completed",
		zap.String("method", method),
		zap.String("resource", resource),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return env.Data, nil
}
