package handler

import (
	"strings"

	"github.com/google/uuid"

	"signaccess/internal/access/tasks"
	"signaccess/pkg/platform/validation"
	s "signaccess/pkg/string"
)

// SubmitRequest asks for one grant or revoke workflow.
type SubmitRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=grant revoke"`
	Username string `json:"username" validate:"required,notblank"`
	PlayerID string `json:"playerId" validate:"omitempty,uuid"`
	Alias    string `json:"alias" validate:"required,notblank"`
}

func (r *SubmitRequest) Normalize() {
	s.TrimStrings(&r.Kind, &r.Username, &r.PlayerID, &r.Alias)
	r.Kind = strings.ToLower(r.Kind)
}

func (r *SubmitRequest) Validate() error {
	if err := validation.CheckStringLength("username", r.Username, validation.MaxUsernameLength); err != nil {
		return err
	}
	return validation.CheckStringLength("alias", r.Alias, validation.MaxAliasLength)
}

func (r *SubmitRequest) requester() tasks.Requester {
	return newRequester(r.Username, r.PlayerID)
}

// Player identifies the player who used a sign.
type Player struct {
	Name string `json:"name" validate:"required,notblank"`
	ID   string `json:"id" validate:"omitempty,uuid"`
}

// UseSignRequest carries the text of a used sign and who used it.
type UseSignRequest struct {
	Lines  []string `json:"lines" validate:"required"`
	Player Player   `json:"player" validate:"required"`
}

func (r *UseSignRequest) Normalize() {
	s.TrimStrings(&r.Player.Name, &r.Player.ID)
}

func (r *UseSignRequest) Validate() error {
	return checkLines(r.Lines)
}

// ValidateSignRequest carries the text of a sign being written.
type ValidateSignRequest struct {
	Lines []string `json:"lines" validate:"required"`
}

func (r *ValidateSignRequest) Validate() error {
	return checkLines(r.Lines)
}

// DebugRequest toggles verbose mode.
type DebugRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func checkLines(lines []string) error {
	if err := validation.CheckSliceCount("lines", len(lines), validation.MaxSignLines); err != nil {
		return err
	}
	return validation.CheckEachStringLength("line", lines, validation.MaxSignLineLength)
}

// newRequester builds a Requester. id has already passed uuid validation,
// so a parse failure only happens for the empty string.
func newRequester(name, id string) tasks.Requester {
	requester := tasks.Requester{Username: name}
	if parsed, err := uuid.Parse(id); err == nil {
		requester.PlayerID = parsed
	}
	return requester
}
