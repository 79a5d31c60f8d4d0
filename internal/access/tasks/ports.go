package tasks

import (
	"context"

	"signaccess/internal/access/directory"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks TokenSource,Resolver

// TokenSource hands out bearer tokens and forgets them on rejection.
// Satisfied by token.Broker.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate()
}

// Resolver turns aliases and usernames into identifiers.
// Satisfied by directory.Resolver.
type Resolver interface {
	ResolveEntitlement(ctx context.Context, token, alias string) (directory.EntitlementRef, error)
	ResolveSubject(ctx context.Context, token, appID, username string) (directory.SubjectRef, error)
}
