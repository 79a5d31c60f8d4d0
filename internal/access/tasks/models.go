package tasks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"signaccess/internal/access/directory"
)

// Kind is the type of access task.
type Kind string

const (
	KindGrant   Kind = "grant"
	KindRevoke  Kind = "revoke"
	KindUnknown Kind = "unknown"
)

// ParseKind accepts "grant" or "revoke", case-insensitively.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindGrant:
		return KindGrant, true
	case KindRevoke:
		return KindRevoke, true
	default:
		return KindUnknown, false
	}
}

// Outcome is the terminal state of one workflow run.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeAuthFailed Outcome = "auth_failed"
	OutcomeFailed     Outcome = "failed"
)

// User-facing messages.
const (
	MessageSubmitted     = "Request submitted"
	MessageAuthFailed    = "Authentication failed. Please contact an admin."
	MessageNetworkFailed = "Network connection failed"
	MessageMisconfigured = "Access requests are not configured correctly. Please contact an admin."
	MessageBadResponse   = "Unexpected response from the access service"
)

// TaskDescriptor describes an open task.
type TaskDescriptor struct {
	URL         string `json:"taskUrl"`
	DisplayName string `json:"displayName"`
	Kind        Kind   `json:"taskKind"`
}

// Requester is the player on whose behalf a task is requested.
type Requester struct {
	Username string    `json:"username"`
	PlayerID uuid.UUID `json:"playerId"`
}

// TaskRequest is everything CreateTask needs.
type TaskRequest struct {
	Kind        Kind
	Entitlement directory.EntitlementRef
	Subject     directory.SubjectRef
	Requester   Requester
}

// WorkflowResult is the single result shape returned to callers.
// Success=false with ExistingTasks set means a duplicate, not a failure.
type WorkflowResult struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	TaskURL       string           `json:"taskUrl,omitempty"`
	ExistingTasks []TaskDescriptor `json:"existingTasks,omitempty"`
	Outcome       Outcome          `json:"outcome"`
}

// Description returns the task description for kind on behalf of playerName.
func Description(kind Kind, playerName string) string {
	if kind == KindRevoke {
		return "Revoke request from Minecraft player: " + playerName
	}
	return "Access request from Minecraft player: " + playerName
}

type requestData struct {
	Source     string `json:"source"`
	PlayerName string `json:"playerName"`
	PlayerUUID string `json:"playerUUID,omitempty"`
}

const requestSource = "minecraft-sign"

type taskSearchRequest struct {
	SubjectIDs        []string `json:"subjectIds"`
	AppEntitlementIDs []string `json:"appEntitlementIds"`
	TaskStates        []string `json:"taskStates"`
	PageSize          int      `json:"pageSize"`
}

const (
	taskStateOpen  = "TASK_STATE_OPEN"
	searchPageSize = 10
)

type taskRecord struct {
	ID          flexString                 `json:"id"`
	NumericID   flexString                 `json:"numericId"`
	DisplayName string                     `json:"displayName"`
	Type        map[string]json.RawMessage `json:"type"`
}

func (t taskRecord) kind() Kind {
	if _, ok := t.Type["grant"]; ok {
		return KindGrant
	}
	if _, ok := t.Type["revoke"]; ok {
		return KindRevoke
	}
	return KindUnknown
}

type taskSearchResponse struct {
	List []struct {
		Task taskRecord `json:"task"`
	} `json:"list"`
}

type createTaskResponse struct {
	TaskView struct {
		Task taskRecord `json:"task"`
	} `json:"taskView"`
	ID     flexString `json:"id"`
	TaskID flexString `json:"taskId"`
	Task   struct {
		ID flexString `json:"id"`
	} `json:"task"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
