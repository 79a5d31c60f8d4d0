// Package transport is the HTTP plumbing shared by the token broker, the
// directory resolver and the task orchestrator.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signaccess/internal/access/metrics"
	"signaccess/pkg/requestcontext"
	"signaccess/pkg/secrets"
)

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks HTTPDoer

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client sends requests to one access-service tenant.
type Client struct {
	baseURL string
	host    string
	doer    HTTPDoer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPDoer sets a custom HTTP client (for testing).
func WithHTTPDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithLogger sets the logger used for request/response debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records upstream latency per operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTimeout replaces the default client with one bounded by timeout.
// It has no effect when a custom doer is also supplied after it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.doer = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a Client for baseURL. A trailing slash on baseURL is ignored.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Hostname() == "" {
		return nil, NewError(CategoryInvalidConfig, "transport.new", "base url must be an absolute url", err)
	}

	c := &Client{
		baseURL: trimmed,
		host:    parsed.Hostname(),
		doer:    &http.Client{Timeout: 10 * time.Second},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the tenant URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Host returns the hostname of the tenant URL (the client-assertion audience).
func (c *Client) Host() string {
	return c.host
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// PostJSON sends body as JSON with a bearer token and classifies the response.
// 2xx responses are returned; 401 becomes CategoryAuthentication and any other
// status CategoryAPI, both carrying the status code and raw body.
func (c *Client) PostJSON(ctx context.Context, op, path, token string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(CategoryBadData, op, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(CategoryNetwork, op, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.DebugContext(ctx, "access api request",
		"op", op,
		"method", req.Method,
		"url", req.URL.String(),
		"body", string(payload),
		"request_id", requestcontext.RequestID(ctx),
	)

	resp, err := c.Send(ctx, op, req)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "access api response",
		"op", op,
		"status", resp.StatusCode,
		"body", string(resp.Body),
		"request_id", requestcontext.RequestID(ctx),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, NewStatusError(CategoryAuthentication, op, resp.StatusCode, resp.Body, "authentication failed")
	default:
		return nil, NewStatusError(CategoryAPI, op, resp.StatusCode, resp.Body, "unexpected status")
	}
}

// PostForm sends a URL-encoded form. The response is returned for every
// status; only transport failures become errors. decorate may add headers
// such as Basic credentials.
func (c *Client) PostForm(ctx context.Context, op, path string, form url.Values, decorate func(*http.Request)) (*Response, error) {
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), strings.NewReader(encoded))
	if err != nil {
		return nil, NewError(CategoryNetwork, op, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if decorate != nil {
		decorate(req)
	}

	c.logger.DebugContext(ctx, "token request",
		"op", op,
		"url", req.URL.String(),
		"grant_type", form.Get("grant_type"),
		"client_assertion", form.Has("client_assertion"),
		"request_id", requestcontext.RequestID(ctx),
	)

	resp, err := c.Send(ctx, op, req)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "token response",
		"op", op,
		"status", resp.StatusCode,
		"body", secrets.MaskTokenResponse(string(resp.Body)),
	)
	return resp, nil
}

// Send executes req and reads the whole body.
func (c *Client) Send(ctx context.Context, op string, req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(op, "error", time.Since(start).Seconds())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewError(CategoryNetwork, op, "request timeout", err)
		}
		return nil, NewError(CategoryNetwork, op, "connection failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.ObserveUpstream(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, NewError(CategoryNetwork, op, "failed to read response body", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Decode unmarshals a successful response body into T.
func Decode[T any](op string, resp *Response) (*T, error) {
	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, NewError(CategoryBadData, op, "failed to parse response", err)
	}
	return &out, nil
}
