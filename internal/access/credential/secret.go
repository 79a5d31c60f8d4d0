// Package credential turns a structured client secret into an Ed25519 key and
// signs the short-lived client assertions presented to the token endpoint.
package credential

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"

	"signaccess/internal/access/transport"
)

// SecretVersion is the only structured secret layout this client understands.
const SecretVersion = "v1"

const secretParts = 4

// IsStructured reports whether raw looks like a structured secret: exactly
// four colon-delimited parts, or at least three parts whose third is a
// version tag ("v1", "v2", ...). Secrets that match but are malformed are
// rejected by ParseSecret instead of being sent as Basic credentials.
func IsStructured(raw string) bool {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) == secretParts {
		return true
	}
	return len(parts) >= 3 && isVersionTag(parts[2])
}

func isVersionTag(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseSecret extracts the Ed25519 private key from a secret of the form
// prefix:data:v1:base64url(JWK).
//
// Error categories: MalformedCredential for a wrong part count or version,
// Decode for a bad base64url segment, KeyFormat for anything that is not an
// Ed25519 private JWK. Errors never include the secret itself.
func ParseSecret(raw string) (ed25519.PrivateKey, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != secretParts {
		return nil, transport.NewError(transport.CategoryMalformedCredential, "credential.parse",
			fmt.Sprintf("expected %d colon-delimited parts, got %d", secretParts, len(parts)), nil)
	}
	if parts[2] != SecretVersion {
		return nil, transport.NewError(transport.CategoryMalformedCredential, "credential.parse",
			fmt.Sprintf("unsupported secret version %q", parts[2]), nil)
	}

	decoded, err := decodeSegment(parts[3])
	if err != nil {
		return nil, transport.NewError(transport.CategoryDecode, "credential.parse",
			"key segment is not valid base64url", err)
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(decoded); err != nil {
		return nil, transport.NewError(transport.CategoryKeyFormat, "credential.parse",
			"key segment is not a valid JWK", err)
	}

	switch key := jwk.Key.(type) {
	case ed25519.PrivateKey:
		return key, nil
	case ed25519.PublicKey:
		return nil, transport.NewError(transport.CategoryKeyFormat, "credential.parse",
			"JWK has no private key component", nil)
	default:
		return nil, transport.NewError(transport.CategoryKeyFormat, "credential.parse",
			fmt.Sprintf("unsupported key type %T, want Ed25519", key), nil)
	}
}

// decodeSegment accepts unpadded and padded base64url.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
