// Package admin guards the operator control routes (reload, debug toggle,
// token invalidation) with a shared token.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "signaccess/pkg/domain-errors"
	"signaccess/pkg/platform/httputil"
	"signaccess/pkg/requestcontext"
)

const (
	HeaderAdminToken = "X-Admin-Token"
	HeaderActorID    = "X-Admin-Actor-ID"
)

type contextKeyActorID struct{}

// ActorID returns the operator identifier captured by RequireToken, or "".
func ActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(contextKeyActorID{}).(string); ok {
		return actorID
	}
	return ""
}

// RequireToken rejects requests whose X-Admin-Token does not match expected.
// An empty expected token disables the check.
func RequireToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			if actorID := r.Header.Get(HeaderActorID); actorID != "" {
				ctx = context.WithValue(ctx, contextKeyActorID{}, actorID)
				logger.InfoContext(ctx, "admin action",
					"request_id", requestcontext.RequestID(ctx),
					"actor_id", actorID,
					"path", r.URL.Path,
				)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
