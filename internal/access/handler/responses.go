package handler

import (
	"time"

	"signaccess/internal/access/tasks"
	"signaccess/internal/access/token"
	"signaccess/pkg/platform/audit"
)

// UseSignResponse is a workflow result plus the chat lines shown to the player.
type UseSignResponse struct {
	tasks.WorkflowResult
	Feedback []string `json:"feedback"`
}

// TokenStatusResponse reports the broker's cache. It never carries the token.
type TokenStatusResponse struct {
	Mode      token.Mode `json:"mode"`
	Cached    bool       `json:"cached"`
	ExpiresAt string     `json:"expiresAt,omitempty"`
}

func toTokenStatusResponse(st token.Status) TokenStatusResponse {
	resp := TokenStatusResponse{Mode: st.Mode, Cached: st.Cached}
	if !st.ExpiresAt.IsZero() {
		resp.ExpiresAt = st.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type DebugResponse struct {
	Enabled bool `json:"enabled"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type AuditResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
}
