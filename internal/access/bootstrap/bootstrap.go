// Package bootstrap assembles the access stack from configuration and keeps
// the live instance behind an atomically swapped holder so a reload never
// leaves callers without a working stack.
package bootstrap

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"signaccess/internal/access/directory"
	"signaccess/internal/access/metrics"
	"signaccess/internal/access/tasks"
	"signaccess/internal/access/token"
	"signaccess/internal/access/tracer"
	"signaccess/internal/access/transport"
	"signaccess/internal/platform/config"
	"signaccess/internal/platform/logger"
	dErrors "signaccess/pkg/domain-errors"
	"signaccess/pkg/platform/audit"
)

// Deps are the long-lived collaborators shared by every stack generation.
type Deps struct {
	Logger  *slog.Logger
	Level   *slog.LevelVar
	Metrics *metrics.Metrics
	Tracer  tracer.Tracer
	Audit   *audit.Logger
	// Doer replaces the default HTTP client. Tests point it at a fake tenant.
	Doer transport.HTTPDoer
}

// Loader produces a fresh configuration for Reload.
type Loader func() (config.Config, error)

// Stack is one fully wired generation of the access client.
type Stack struct {
	Config       config.ConductorOne
	Client       *transport.Client
	Broker       *token.Broker
	Resolver     *directory.Resolver
	Orchestrator *tasks.Orchestrator
}

// Build validates cfg and wires transport, broker, resolver and orchestrator.
func Build(cfg config.Config, deps Deps) (*Stack, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	deps = deps.withDefaults()
	c1 := cfg.ConductorOne

	clientOpts := []transport.Option{
		transport.WithLogger(deps.Logger),
		transport.WithMetrics(deps.Metrics),
		transport.WithTimeout(c1.RequestTimeout),
	}
	if deps.Doer != nil {
		clientOpts = append(clientOpts, transport.WithHTTPDoer(deps.Doer))
	}
	client, err := transport.New(c1.BaseURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	broker, err := token.New(client, token.Config{
		ClientID: c1.ClientID,
		Secret:   c1.ClientSecret,
		Mode:     token.Mode(c1.AuthMode),
		Endpoint: c1.TokenEndpoint,
	},
		token.WithLogger(deps.Logger),
		token.WithMetrics(deps.Metrics),
		token.WithTracer(deps.Tracer),
	)
	if err != nil {
		return nil, err
	}

	subjects, err := directory.NewSubjectLookup(directory.SubjectMode(c1.SubjectMode))
	if err != nil {
		return nil, err
	}
	resolver := directory.New(client, subjects,
		directory.WithLogger(deps.Logger),
		directory.WithTracer(deps.Tracer),
	)

	orchestrator, err := tasks.New(client, broker, resolver, tasks.Config{
		GrantEndpoint:  c1.GrantTaskEndpoint,
		RevokeEndpoint: c1.RevokeTaskEndpoint,
		TaskPath:       c1.TaskPath,
	},
		tasks.WithLogger(deps.Logger),
		tasks.WithMetrics(deps.Metrics),
		tasks.WithTracer(deps.Tracer),
		tasks.WithAudit(deps.Audit),
		tasks.WithVerbose(cfg.Debug.Enabled),
	)
	if err != nil {
		return nil, err
	}

	return &Stack{
		Config:       c1,
		Client:       client,
		Broker:       broker,
		Resolver:     resolver,
		Orchestrator: orchestrator,
	}, nil
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Tracer == nil {
		d.Tracer = tracer.NewNoop()
	}
	return d
}

// Holder owns the current Stack and the process-wide debug flag.
type Holder struct {
	deps Deps
	load Loader

	current atomic.Pointer[Stack]
	debug   atomic.Bool

	mu      sync.Mutex // serializes Reload and SetDebug, guards retired
	retired []*Stack
}

// NewHolder builds the first stack from cfg. load is used by Reload and may
// be nil, in which case Reload fails with CodeInvalidConfig.
func NewHolder(cfg config.Config, load Loader, deps Deps) (*Holder, error) {
	deps = deps.withDefaults()
	stack, err := Build(cfg, deps)
	if err != nil {
		return nil, err
	}
	h := &Holder{deps: deps, load: load}
	h.current.Store(stack)
	h.applyDebug(stack, cfg.Debug.Enabled)
	return h, nil
}

// Current returns the live stack.
func (h *Holder) Current() *Stack {
	return h.current.Load()
}

// Reload rebuilds the stack from a fresh configuration and swaps it in. On
// any failure the previous stack stays live and the error is returned.
// Runs already in flight finish on the stack they started with.
func (h *Holder) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.load == nil {
		return dErrors.New(dErrors.CodeInvalidConfig, "reload is not configured")
	}
	cfg, err := h.load()
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "config reload failed, keeping previous configuration", "error", err)
		return err
	}
	stack, err := Build(cfg, h.deps)
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "config reload failed, keeping previous configuration", "error", err)
		return err
	}

	previous := h.current.Swap(stack)
	if previous != nil {
		h.retired = append(h.retired, previous)
	}
	h.applyDebug(stack, cfg.Debug.Enabled)
	h.deps.Logger.InfoContext(ctx, "configuration reloaded", "conductorone", cfg.ConductorOne)
	return nil
}

// SetDebug switches verbose mode: Debug-level logging and raw API error
// bodies in user-facing messages.
func (h *Holder) SetDebug(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applyDebug(h.current.Load(), enabled)
}

// Mode reports the live broker's auth mode, or "" before the first stack.
func (h *Holder) Mode() string {
	stack := h.current.Load()
	if stack == nil {
		return ""
	}
	return string(stack.Broker.Mode())
}

// Debug reports whether verbose mode is on.
func (h *Holder) Debug() bool {
	return h.debug.Load()
}

func (h *Holder) applyDebug(stack *Stack, enabled bool) {
	h.debug.Store(enabled)
	if h.deps.Level != nil {
		logger.SetDebug(h.deps.Level, enabled)
	}
	if stack != nil {
		stack.Orchestrator.SetVerbose(enabled)
	}
}

// Submit starts a workflow on the live stack. The run stays on that stack
// even if a reload swaps it out before it finishes.
func (h *Holder) Submit(ctx context.Context, kind tasks.Kind, requester tasks.Requester, alias string) *tasks.Pending {
	return h.current.Load().Orchestrator.Submit(ctx, kind, requester, alias)
}

// TokenStatus reports the live broker's cache state.
func (h *Holder) TokenStatus(ctx context.Context) token.Status {
	return h.current.Load().Broker.Status(ctx)
}

// InvalidateToken drops the live broker's cached token.
func (h *Holder) InvalidateToken() {
	h.current.Load().Broker.Invalidate()
}

// Ready reports whether a stack is installed. It backs the readiness probe.
func (h *Holder) Ready() error {
	if h.current.Load() == nil {
		return dErrors.New(dErrors.CodeInvalidConfig, "access client is not configured")
	}
	return nil
}

// Drain waits for submitted workflows on the current and every retired
// stack, or for ctx to end.
func (h *Holder) Drain(ctx context.Context) error {
	h.mu.Lock()
	stacks := append([]*Stack{h.current.Load()}, h.retired...)
	h.retired = nil
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range stacks {
		if s == nil {
			continue
		}
		g.Go(func() error {
			return s.Orchestrator.Drain(gctx)
		})
	}
	return g.Wait()
}
