package credential

import (
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"signaccess/internal/access/transport"
)

// AssertionWindow is how far notBefore and expiresAt sit from issuedAt.
const AssertionWindow = 120 * time.Second

// AssertionClaims is the client-assertion payload. Field order is the
// serialization order, so the signing input is stable for a given instant.
type AssertionClaims struct {
	Issuer    string           `json:"iss"`
	Subject   string           `json:"sub"`
	Audience  string           `json:"aud"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	NotBefore *jwt.NumericDate `json:"nbf"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

// NewAssertionClaims builds the claims for clientID against audience at now.
func NewAssertionClaims(clientID, audience string, now time.Time) AssertionClaims {
	return AssertionClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  audience,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-AssertionWindow)),
		ExpiresAt: jwt.NewNumericDate(now.Add(AssertionWindow)),
	}
}

func (c AssertionClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c AssertionClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c AssertionClaims) GetNotBefore() (*jwt.NumericDate, error)      { return c.NotBefore, nil }
func (c AssertionClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c AssertionClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c AssertionClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

var _ jwt.Claims = AssertionClaims{}

// Signer signs client assertions with one Ed25519 key.
type Signer struct {
	key      ed25519.PrivateKey
	clientID string
	audience string
}

// NewSigner parses secret and binds the resulting key to clientID and audience
// (the hostname of the tenant URL).
func NewSigner(secret, clientID, audience string) (*Signer, error) {
	key, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}
	if audience == "" {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "credential.signer", "audience is required", nil)
	}
	return &Signer{key: key, clientID: clientID, audience: audience}, nil
}

// Sign returns header.payload.signature for claims, EdDSA over Ed25519,
// with header {"alg":"EdDSA","typ":"JWT"}.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", transport.NewError(transport.CategoryKeyFormat, "credential.sign", "failed to sign assertion", err)
	}
	return signed, nil
}

// Assertion signs a fresh assertion for now. Assertions are never cached.
func (s *Signer) Assertion(now time.Time) (string, error) {
	return s.Sign(NewAssertionClaims(s.clientID, s.audience, now))
}

// PublicKey returns the verification key, for diagnostics and tests.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// ClientID returns the issuer and subject used in assertions.
func (s *Signer) ClientID() string {
	return s.clientID
}
