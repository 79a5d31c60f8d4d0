// Package handler exposes the access client over HTTP for the game-server
// plugin: workflow submission, sign handling, token and debug controls,
// config reload and the audit trail.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"signaccess/internal/access/signs"
	"signaccess/internal/access/tasks"
	"signaccess/internal/access/token"
	dErrors "signaccess/pkg/domain-errors"
	"signaccess/pkg/platform/audit"
	"signaccess/pkg/platform/httputil"
	"signaccess/pkg/platform/validation"
	"signaccess/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Access,AuditReader

// Access is the live access stack as seen by the HTTP surface.
type Access interface {
	Submit(ctx context.Context, kind tasks.Kind, requester tasks.Requester, alias string) *tasks.Pending
	TokenStatus(ctx context.Context) token.Status
	InvalidateToken()
	Debug() bool
	SetDebug(enabled bool)
	Reload(ctx context.Context) error
}

// AuditReader lists recorded workflow outcomes.
type AuditReader interface {
	List(ctx context.Context, username string) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// DefaultAuditLimit is used when /v1/audit has neither username nor limit.
const DefaultAuditLimit = 50

// Handler serves the access endpoints.
type Handler struct {
	access Access
	audit  AuditReader
	logger *slog.Logger
	guard  func(http.Handler) http.Handler
}

// New creates a Handler. audit may be nil, in which case /v1/audit is not mounted.
func New(access Access, audit AuditReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{access: access, audit: audit, logger: logger}
}

// WithGuard wraps the control routes (token invalidation, debug toggle,
// reload) in mw.
func (h *Handler) WithGuard(mw func(http.Handler) http.Handler) *Handler {
	h.guard = mw
	return h
}

// Register mounts the access routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/requests", h.handleSubmit)
		r.Post("/signs/use", h.handleUseSign)
		r.Post("/signs/validate", h.handleValidateSign)

		r.Get("/token", h.handleTokenStatus)
		r.Get("/debug", h.handleGetDebug)

		r.Group(func(r chi.Router) {
			if h.guard != nil {
				r.Use(h.guard)
			}
			r.Post("/token/invalidate", h.handleTokenInvalidate)
			r.Put("/debug", h.handleSetDebug)
			r.Post("/reload", h.handleReload)
		})

		if h.audit != nil {
			r.Get("/audit", h.handleAudit)
		}
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	kind, _ := tasks.ParseKind(req.Kind)

	result, err := h.run(ctx, kind, req.requester(), req.Alias)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, statusForOutcome(result.Outcome), result)
}

func (h *Handler) handleUseSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[UseSignRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	sign, err := signs.Parse(req.Lines)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.run(ctx, sign.Kind, newRequester(req.Player.Name, req.Player.ID), sign.Alias)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, statusForOutcome(result.Outcome), UseSignResponse{
		WorkflowResult: result,
		Feedback:       signs.Feedback(result),
	})
}

func (h *Handler) handleValidateSign(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ValidateSignRequest](r.Context(), w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signs.Validate(req.Lines))
}

// run submits a workflow and waits for it. If the caller goes away first the
// workflow still completes and is audited; the caller gets a timeout.
func (h *Handler) run(ctx context.Context, kind tasks.Kind, requester tasks.Requester, alias string) (tasks.WorkflowResult, error) {
	pending := h.access.Submit(ctx, kind, requester, alias)
	result, err := pending.Wait(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "caller stopped waiting for workflow",
			"kind", kind,
			"alias", alias,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return tasks.WorkflowResult{}, dErrors.Wrap(err, dErrors.CodeTimeout, "request is still being processed")
	}
	return result, nil
}

func (h *Handler) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toTokenStatusResponse(h.access.TokenStatus(r.Context())))
}

func (h *Handler) handleTokenInvalidate(w http.ResponseWriter, r *http.Request) {
	h.access.InvalidateToken()
	h.logger.InfoContext(r.Context(), "token invalidated via api",
		"request_id", requestcontext.RequestID(r.Context()),
	)
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Cached token cleared"})
}

func (h *Handler) handleGetDebug(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, DebugResponse{Enabled: h.access.Debug()})
}

func (h *Handler) handleSetDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DebugRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	h.access.SetDebug(*req.Enabled)
	h.logger.InfoContext(ctx, "debug mode changed",
		"enabled", *req.Enabled,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, DebugResponse{Enabled: h.access.Debug()})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.access.Reload(ctx); err != nil {
		h.logger.ErrorContext(ctx, "reload failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, domainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Configuration reloaded"})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := r.URL.Query().Get("username")

	var (
		events []audit.Event
		err    error
	)
	if username != "" {
		events, err = h.audit.List(ctx, username)
	} else {
		limit, perr := parseLimit(r.URL.Query().Get("limit"))
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		events, err = h.audit.Recent(ctx, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, AuditResponse{Events: events, Count: len(events)})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultAuditLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
	}
	return min(limit, validation.MaxAuditLimit), nil
}
