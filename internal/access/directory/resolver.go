// Package directory resolves entitlement aliases and usernames into the
// identifiers the task endpoints expect.
package directory

import (
	"context"
	"log/slog"

	"signaccess/internal/access/tracer"
	"signaccess/internal/access/transport"
)

// Search endpoints, relative to the tenant URL.
const (
	EntitlementsPath = "api/v1/search/entitlements"
	AppUsersPath     = "api/v1/search/app_users"
	UsersPath        = "api/v1/search/users"
)

// Resolver looks up entitlements and subjects. It never retries and never
// touches the token cache; a 401 is returned as CategoryAuthentication.
type Resolver struct {
	client   *transport.Client
	subjects SubjectLookup
	logger   *slog.Logger
	tracer   tracer.Tracer
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithTracer sets the tracer for lookup spans.
func WithTracer(t tracer.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = t
	}
}

// New creates a Resolver using subjects for username lookups.
func New(client *transport.Client, subjects SubjectLookup, opts ...Option) *Resolver {
	r := &Resolver{
		client:   client,
		subjects: subjects,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubjectField returns the task-creation field for resolved subjects.
func (r *Resolver) SubjectField() string {
	return r.subjects.Field()
}

// ResolveEntitlement finds the entitlement whose alias is alias.
func (r *Resolver) ResolveEntitlement(ctx context.Context, token, alias string) (ref EntitlementRef, err error) {
	const op = "search.entitlements"
	ctx, span := r.tracer.Start(ctx, tracer.SpanResolveEntitlement, tracer.String(tracer.AttrAlias, alias))
	defer func() { span.End(err) }()

	resp, err := r.client.PostJSON(ctx, op, EntitlementsPath, token, entitlementSearchRequest{
		Alias:    alias,
		PageSize: 1,
	})
	if err != nil {
		return EntitlementRef{}, err
	}
	out, err := transport.Decode[entitlementSearchResponse](op, resp)
	if err != nil {
		return EntitlementRef{}, err
	}
	if len(out.List) == 0 {
		return EntitlementRef{}, transport.NewError(transport.CategoryNotFound, op, "no entitlement matches alias", nil)
	}
	ent := out.List[0].AppEntitlement
	if ent.ID == "" || ent.AppID == "" {
		return EntitlementRef{}, transport.NewError(transport.CategoryNotFound, op, "entitlement record has no id or appId", nil)
	}

	r.logger.DebugContext(ctx, "entitlement resolved", "alias", alias, "app_id", ent.AppID, "entitlement_id", ent.ID)
	return EntitlementRef{
		AppID:         ent.AppID,
		EntitlementID: ent.ID,
		Alias:         alias,
		DisplayName:   ent.DisplayName,
	}, nil
}

// ResolveSubject finds username with the configured SubjectLookup.
func (r *Resolver) ResolveSubject(ctx context.Context, token, appID, username string) (ref SubjectRef, err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanResolveSubject,
		tracer.String(tracer.AttrUserHash, tracer.HashUsername(username)),
		tracer.String(tracer.AttrSubjectField, r.subjects.Field()),
	)
	defer func() { span.End(err) }()

	id, err := r.subjects.Lookup(ctx, r.client, token, appID, username)
	if err != nil {
		return SubjectRef{}, err
	}
	r.logger.DebugContext(ctx, "subject resolved", "subject_field", r.subjects.Field(), "subject_id", id)
	return SubjectRef{ID: id, Field: r.subjects.Field(), Username: username}, nil
}
