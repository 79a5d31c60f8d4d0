package token

import (
	"net/http"
	"net/url"
	"time"

	"signaccess/internal/access/credential"
	"signaccess/internal/access/transport"
)

// Mode selects how the broker authenticates to the token endpoint.
type Mode string

const (
	// ModeBasic sends clientID:secret as HTTP Basic credentials.
	ModeBasic Mode = "basic"
	// ModeAssertion sends a signed client assertion as form fields.
	ModeAssertion Mode = "assertion"
	// ModeAuto picks ModeAssertion for structured secrets and ModeBasic otherwise.
	ModeAuto Mode = "auto"
)

// AssertionType is the client_assertion_type for JWT-bearer assertions.
const AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Authenticator adds client authentication to a token request.
type Authenticator interface {
	// Mode names the strategy for logs and diagnostics.
	Mode() Mode

	// Apply adds fields to form and may return a decorator for request headers.
	Apply(now time.Time, form url.Values) (func(*http.Request), error)
}

// BasicAuth authenticates with an opaque shared secret.
type BasicAuth struct {
	clientID string
	secret   string
}

// NewBasicAuth creates a BasicAuth strategy.
func NewBasicAuth(clientID, secret string) *BasicAuth {
	return &BasicAuth{clientID: clientID, secret: secret}
}

func (a *BasicAuth) Mode() Mode { return ModeBasic }

func (a *BasicAuth) Apply(_ time.Time, _ url.Values) (func(*http.Request), error) {
	return func(req *http.Request) {
		req.SetBasicAuth(a.clientID, a.secret)
	}, nil
}

// ClientAssertion authenticates with a fresh EdDSA assertion per request.
type ClientAssertion struct {
	signer *credential.Signer
}

// NewClientAssertion creates a ClientAssertion strategy from a signer.
func NewClientAssertion(signer *credential.Signer) *ClientAssertion {
	return &ClientAssertion{signer: signer}
}

func (a *ClientAssertion) Mode() Mode { return ModeAssertion }

func (a *ClientAssertion) Apply(now time.Time, form url.Values) (func(*http.Request), error) {
	assertion, err := a.signer.Assertion(now)
	if err != nil {
		return nil, err
	}
	form.Set("client_id", a.signer.ClientID())
	form.Set("client_assertion_type", AssertionType)
	form.Set("client_assertion", assertion)
	return nil, nil
}

// ResolveMode turns ModeAuto into a concrete mode for secret.
func ResolveMode(mode Mode, secret string) Mode {
	if mode == ModeAuto || mode == "" {
		if credential.IsStructured(secret) {
			return ModeAssertion
		}
		return ModeBasic
	}
	return mode
}

// NewAuthenticator builds the strategy for mode. In assertion mode the secret
// is parsed here, so a broken key fails construction rather than the first fetch.
func NewAuthenticator(mode Mode, clientID, secret, audience string) (Authenticator, error) {
	switch ResolveMode(mode, secret) {
	case ModeBasic:
		return NewBasicAuth(clientID, secret), nil
	case ModeAssertion:
		signer, err := credential.NewSigner(secret, clientID, audience)
		if err != nil {
			return nil, err
		}
		return NewClientAssertion(signer), nil
	default:
		return nil, transport.NewError(transport.CategoryInvalidConfig, "token.auth",
			"unknown auth mode "+string(mode), nil)
	}
}
