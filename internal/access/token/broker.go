// Package token brokers access tokens for the access-service API.
//
// The Broker caches one token per instance, refreshes it on demand through a
// single in-flight request and forgets it when told the token was rejected.
package token

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"signaccess/internal/access/metrics"
	"signaccess/internal/access/tracer"
	"signaccess/internal/access/transport"
	"signaccess/pkg/requestcontext"
)

// SafetyMargin is subtracted from the declared lifetime so a token is never
// presented in the last minutes of its validity.
const SafetyMargin = 300 * time.Second

// MinClientIDLength is the shortest client id accepted at construction.
const MinClientIDLength = 20

// Config holds the broker's credentials and endpoint.
type Config struct {
	ClientID string
	Secret   string
	Mode     Mode
	// Endpoint is the token path relative to the tenant URL.
	Endpoint string
}

// Status describes the cached token without revealing it.
type Status struct {
	Mode      Mode      `json:"auth_mode"`
	Cached    bool      `json:"cached"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Broker hands out a usable access token, fetching a new one when the cached
// token is missing or expired. It is safe for concurrent use.
type Broker struct {
	client   *transport.Client
	auth     Authenticator
	endpoint string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	clock    func() time.Time

	mu         sync.RWMutex
	token      string
	expiresAt  time.Time
	generation uint64

	group singleflight.Group
}

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// WithTracer sets the tracer for token fetch spans.
func WithTracer(t tracer.Tracer) Option {
	return func(b *Broker) {
		b.tracer = t
	}
}

// WithClock overrides the time source. Without it the broker honors
// requestcontext.Now.
func WithClock(clock func() time.Time) Option {
	return func(b *Broker) {
		b.clock = clock
	}
}

// WithAuthenticator replaces the strategy derived from Config.Mode.
func WithAuthenticator(auth Authenticator) Option {
	return func(b *Broker) {
		b.auth = auth
	}
}

// New validates cfg and creates a Broker. No broker is returned when the
// credentials are unusable.
func New(client *transport.Client, cfg Config, opts ...Option) (*Broker, error) {
	if client == nil {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "token.new", "transport client is required", nil)
	}
	if len(cfg.ClientID) < MinClientIDLength {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "token.new",
			"client id must be at least "+strconv.Itoa(MinClientIDLength)+" characters", nil)
	}
	if cfg.Secret == "" {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "token.new", "client secret is required", nil)
	}
	if cfg.Endpoint == "" {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "token.new", "token endpoint is required", nil)
	}

	b := &Broker{
		client:   client,
		endpoint: cfg.Endpoint,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.auth == nil {
		auth, err := NewAuthenticator(cfg.Mode, cfg.ClientID, cfg.Secret, client.Host())
		if err != nil {
			return nil, err
		}
		b.auth = auth
	}
	return b, nil
}

// Mode returns the active authentication strategy.
func (b *Broker) Mode() Mode {
	return b.auth.Mode()
}

// GetToken returns a token valid at the current instant.
//
// A cached token is returned without I/O. Otherwise one request is made to
// the token endpoint; concurrent callers of the same generation share it.
func (b *Broker) GetToken(ctx context.Context) (string, error) {
	now := b.now(ctx)

	b.mu.RLock()
	if b.token != "" && now.Before(b.expiresAt) {
		tok := b.token
		b.mu.RUnlock()
		b.metrics.RecordTokenCacheHit()
		return tok, nil
	}
	gen := b.generation
	b.mu.RUnlock()

	ch := b.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return b.fetch(context.WithoutCancel(ctx), gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", transport.NewError(transport.CategoryNetwork, "token.fetch", "request cancelled", ctx.Err())
	}
}

func (b *Broker) fetch(ctx context.Context, gen uint64) (tok string, err error) {
	now := b.now(ctx)

	b.mu.RLock()
	if b.generation == gen && b.token != "" && now.Before(b.expiresAt) {
		tok = b.token
		b.mu.RUnlock()
		return tok, nil
	}
	b.mu.RUnlock()

	ctx, span := b.tracer.Start(ctx, tracer.SpanTokenFetch,
		tracer.String(tracer.AttrAuthMode, string(b.auth.Mode())),
	)
	defer func() {
		b.metrics.RecordTokenFetch(err == nil)
		span.End(err)
	}()

	form := url.Values{"grant_type": {"client_credentials"}}
	decorate, err := b.auth.Apply(now, form)
	if err != nil {
		return "", err
	}

	resp, err := b.client.PostForm(ctx, "token.fetch", b.endpoint, form, decorate)
	if err != nil {
		b.logger.WarnContext(ctx, "token request failed", "error", err)
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		b.logger.WarnContext(ctx, "token endpoint refused request",
			"status", resp.StatusCode,
			"auth_mode", b.auth.Mode(),
		)
		return "", transport.NewStatusError(transport.CategoryTokenFetch, "token.fetch",
			resp.StatusCode, resp.Body, "token endpoint refused request")
	}

	parsed, err := transport.Decode[tokenResponse]("token.fetch", resp)
	if err != nil {
		return "", err
	}
	if parsed.AccessToken == "" {
		return "", transport.NewStatusError(transport.CategoryTokenFetch, "token.fetch",
			resp.StatusCode, nil, "response has no access_token")
	}

	expiresAt := now.Add(time.Duration(parsed.ExpiresIn)*time.Second - SafetyMargin)

	b.mu.Lock()
	cached := b.generation == gen
	if cached {
		b.token = parsed.AccessToken
		b.expiresAt = expiresAt
	}
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "access token refreshed",
		"auth_mode", b.auth.Mode(),
		"expires_at", expiresAt,
		"cached", cached,
	)
	return parsed.AccessToken, nil
}

// Invalidate forgets the cached token. Fetches already in flight complete for
// their callers but their result is not cached. Safe to call repeatedly.
func (b *Broker) Invalidate() {
	b.mu.Lock()
	b.token = ""
	b.expiresAt = time.Time{}
	b.generation++
	b.mu.Unlock()

	b.metrics.RecordInvalidation()
	b.logger.Info("access token invalidated")
}

// Status reports whether a usable token is cached and when it expires.
func (b *Broker) Status(ctx context.Context) Status {
	now := b.now(ctx)
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Status{Mode: b.auth.Mode()}
	if b.token != "" && now.Before(b.expiresAt) {
		st.Cached = true
		st.ExpiresAt = b.expiresAt
	}
	return st
}

func (b *Broker) now(ctx context.Context) time.Time {
	if b.clock != nil {
		return b.clock()
	}
	return requestcontext.Now(ctx)
}
