package transport

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy shared by every access component.
//
// Components classify failures with these categories so the orchestrator can
// turn any failure into a user-facing message without inspecting raw errors.
type Category string

const (
	// CategoryInvalidConfig means credentials or endpoints are unusable at startup.
	CategoryInvalidConfig Category = "invalid_config"

	// CategoryMalformedCredential means the structured secret has the wrong shape or version.
	CategoryMalformedCredential Category = "malformed_credential"

	// CategoryDecode means the key segment of the secret is not valid base64url.
	CategoryDecode Category = "decode"

	// CategoryKeyFormat means the decoded key is not a usable private key.
	CategoryKeyFormat Category = "key_format"

	// CategoryTokenFetch means the token endpoint refused to issue a token.
	CategoryTokenFetch Category = "token_fetch"

	// CategoryNotFound means a search returned no usable record.
	CategoryNotFound Category = "not_found"

	// CategoryAuthentication means an authenticated call returned 401.
	CategoryAuthentication Category = "authentication"

	// CategoryAPI means the remote API returned any other non-2xx status.
	CategoryAPI Category = "api"

	// CategoryNetwork means the request never produced an HTTP response.
	CategoryNetwork Category = "network"

	// CategoryBadData means a 2xx response could not be decoded.
	CategoryBadData Category = "bad_data"
)

// Error wraps access-service failures with a category and, when the failure
// came from an HTTP response, its status code and raw body.
//
// Body is kept on the error but must only be rendered to users in verbose mode.
type Error struct {
	Category   Category
	Op         string
	StatusCode int
	Body       string
	Message    string
	Err        error
}

// Error implements the error interface. The body is deliberately left out.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Category, msg, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Category, msg)
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a categorized error without an HTTP status.
func NewError(category Category, op, message string, err error) *Error {
	return &Error{
		Category: category,
		Op:       op,
		Message:  message,
		Err:      err,
	}
}

// NewStatusError creates a categorized error for an HTTP response.
func NewStatusError(category Category, op string, status int, body []byte, message string) *Error {
	return &Error{
		Category:   category,
		Op:         op,
		StatusCode: status,
		Body:       string(body),
		Message:    message,
	}
}

// CategoryOf extracts the category from an error chain.
// Errors that were never classified are reported as network failures.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryNetwork
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// AsError returns the categorized error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
