package handler

import (
	"context"
	"errors"
	"net/http"

	"signaccess/internal/access/tasks"
	"signaccess/internal/access/transport"
	dErrors "signaccess/pkg/domain-errors"
	"signaccess/pkg/platform/httputil"
)

// domainError maps an access-client failure onto a domain code for the HTTP
// surface. Raw response bodies never reach the client.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "access service did not respond in time")
	}

	switch transport.CategoryOf(err) {
	case transport.CategoryInvalidConfig, transport.CategoryMalformedCredential,
		transport.CategoryDecode, transport.CategoryKeyFormat:
		return dErrors.Wrap(err, dErrors.CodeInvalidConfig, tasks.MessageMisconfigured)
	case transport.CategoryTokenFetch, transport.CategoryAuthentication:
		return dErrors.Wrap(err, dErrors.CodeUpstreamAuth, tasks.MessageAuthFailed)
	case transport.CategoryNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case transport.CategoryBadData:
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, tasks.MessageBadResponse)
	case transport.CategoryAPI:
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "access service returned an error")
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, tasks.MessageNetworkFailed)
	}
}

// statusForOutcome picks the HTTP status for a workflow result. The body is
// always the WorkflowResult so the plugin can show its message.
func statusForOutcome(outcome tasks.Outcome) int {
	switch outcome {
	case tasks.OutcomeCreated:
		return http.StatusCreated
	case tasks.OutcomeDuplicate:
		return httputil.DomainCodeToHTTPStatus(dErrors.CodeConflict)
	case tasks.OutcomeNotFound:
		return httputil.DomainCodeToHTTPStatus(dErrors.CodeNotFound)
	case tasks.OutcomeAuthFailed:
		return httputil.DomainCodeToHTTPStatus(dErrors.CodeUpstreamAuth)
	default:
		return http.StatusBadGateway
	}
}
