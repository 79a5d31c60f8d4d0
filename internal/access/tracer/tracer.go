// Package tracer provides a lightweight tracing abstraction for access workflows.
//
// Workflow code depends on the Tracer interface only. NoopTracer is used in
// tests; OTelTracer adapts OpenTelemetry for production.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span; the returned context carries it to child operations.
	//
	// Example:
	//   ctx, span := t.Start(ctx, tracer.SpanWorkflow,
	//       tracer.String(tracer.AttrKind, "grant"),
	//   )
	//   defer span.End(nil)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashUsername returns a short SHA-256 of a username so traces can be
// correlated without carrying the name itself.
func HashUsername(username string) string {
	if username == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(username))
	return hex.EncodeToString(hash[:8])
}

// Span names used by access workflows.
const (
	SpanWorkflow           = "access.workflow"
	SpanTokenFetch         = "access.token.fetch"
	SpanResolveEntitlement = "access.resolve.entitlement"
	SpanResolveSubject     = "access.resolve.subject"
	SpanSearchTasks        = "access.tasks.search"
	SpanCreateTask         = "access.tasks.create"
)

// Attribute keys used by access workflows.
const (
	AttrKind         = "task.kind"
	AttrAlias        = "entitlement.alias"
	AttrUserHash     = "user.hash"
	AttrOutcome      = "workflow.outcome"
	AttrOpenTasks    = "tasks.open_count"
	AttrAuthMode     = "token.auth_mode"
	AttrSubjectField = "subject.field"
)

// Event names used by access workflows.
const (
	EventTokenInvalidated = "token.invalidated"
	EventAuditEmitted     = "audit.emitted"
)
