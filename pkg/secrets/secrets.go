// Package secrets keeps credential material out of logs and diagnostics.
package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Redact returns a display-safe rendering of a secret: a short prefix and the
// length, never enough to reconstruct it.
func Redact(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	if len(secret) <= 8 {
		return fmt.Sprintf("*** (%d chars)", len(secret))
	}
	return fmt.Sprintf("%s*** (%d chars)", secret[:4], len(secret))
}

// Fingerprint returns a stable short hash so two log lines can be correlated
// to the same credential without exposing it.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}

var accessTokenField = regexp.MustCompile(`"access_token"\s*:\s*"[^"]+"`)

// MaskTokenResponse hides the access token inside a raw token-endpoint body.
func MaskTokenResponse(body string) string {
	return accessTokenField.ReplaceAllString(body, `"access_token":"***MASKED***"`)
}
