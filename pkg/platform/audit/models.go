package audit

import (
	"context"
	"time"
)

// Event is emitted when an access workflow reaches a terminal state. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Username  string    `json:"username"`
	PlayerID  string    `json:"player_id,omitempty"`
	Kind      string    `json:"kind"`
	Alias     string    `json:"alias"`
	TaskURL   string    `json:"task_url,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventTaskCreated    AuditEvent = "task_created"
	EventDuplicateFound AuditEvent = "duplicate_found"
	EventNotFound       AuditEvent = "not_found"
	EventAuthFailed     AuditEvent = "auth_failed"
	EventRequestFailed  AuditEvent = "request_failed"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, username string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
