// Package requestcontext carries per-request values (request ID, clock) through context.
package requestcontext

import (
	"context"
	"time"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	nowKey
)

// WithRequestID stores the correlation ID for the current request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the correlation ID, or "" when none was set.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTime pins the clock for everything downstream of ctx. Tests use it to
// make expiry math deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowKey, t)
}

// Now returns the pinned time from ctx, or time.Now().
func Now(ctx context.Context) time.Time {
	if ctx != nil {
		if t, ok := ctx.Value(nowKey).(time.Time); ok {
			return t
		}
	}
	return time.Now()
}
