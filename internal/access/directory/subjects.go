package directory

import (
	"context"

	"signaccess/internal/access/transport"
)

// SubjectMode selects where usernames are looked up.
type SubjectMode string

const (
	// SubjectModeApp resolves usernames among the app's own users.
	SubjectModeApp SubjectMode = "app"
	// SubjectModeIdentity resolves usernames among global identity users.
	SubjectModeIdentity SubjectMode = "identity"
)

// Request fields that carry the subject identifier on task creation.
const (
	FieldAppUser      = "appUserId"
	FieldIdentityUser = "identityUserId"
)

// SubjectLookup resolves a username to a subject identifier.
type SubjectLookup interface {
	Mode() SubjectMode
	// Field is the task-creation field that carries the identifier.
	Field() string
	// Lookup returns the identifier, or a CategoryNotFound error.
	Lookup(ctx context.Context, client *transport.Client, token, appID, username string) (string, error)
}

// AppUserLookup searches app users scoped to the entitlement's app.
type AppUserLookup struct{}

func (AppUserLookup) Mode() SubjectMode { return SubjectModeApp }
func (AppUserLookup) Field() string     { return FieldAppUser }

func (AppUserLookup) Lookup(ctx context.Context, client *transport.Client, token, appID, username string) (string, error) {
	const op = "search.app_users"
	resp, err := client.PostJSON(ctx, op, AppUsersPath, token, appUserSearchRequest{
		AppID:    appID,
		Query:    username,
		PageSize: 1,
	})
	if err != nil {
		return "", err
	}
	out, err := transport.Decode[appUserSearchResponse](op, resp)
	if err != nil {
		return "", err
	}
	if len(out.List) == 0 || out.List[0].AppUser.ID == "" {
		return "", transport.NewError(transport.CategoryNotFound, op, "no app user matches", nil)
	}
	return out.List[0].AppUser.ID, nil
}

// IdentityLookup searches the tenant's identity users.
type IdentityLookup struct{}

func (IdentityLookup) Mode() SubjectMode { return SubjectModeIdentity }
func (IdentityLookup) Field() string     { return FieldIdentityUser }

func (IdentityLookup) Lookup(ctx context.Context, client *transport.Client, token, _, username string) (string, error) {
	const op = "search.users"
	resp, err := client.PostJSON(ctx, op, UsersPath, token, userSearchRequest{
		Query:    username,
		PageSize: 1,
	})
	if err != nil {
		return "", err
	}
	out, err := transport.Decode[userSearchResponse](op, resp)
	if err != nil {
		return "", err
	}
	if len(out.List) == 0 || out.List[0].User.ID == "" {
		return "", transport.NewError(transport.CategoryNotFound, op, "no user matches", nil)
	}
	return out.List[0].User.ID, nil
}

// NewSubjectLookup returns the strategy for mode.
func NewSubjectLookup(mode SubjectMode) (SubjectLookup, error) {
	switch mode {
	case SubjectModeApp, "":
		return AppUserLookup{}, nil
	case SubjectModeIdentity:
		return IdentityLookup{}, nil
	default:
		return nil, transport.NewError(transport.CategoryInvalidConfig, "directory.subject_mode",
			"unknown subject mode "+string(mode), nil)
	}
}
