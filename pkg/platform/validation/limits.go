package validation

import (
	"fmt"

	dErrors "signaccess/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize caps adapter request bodies (16 KB). Sign and request
	// payloads are a few hundred bytes.
	MaxBodySize = 16 * 1024
)

// Sign limits
const (
	// MaxSignLines is the number of lines on a sign.
	MaxSignLines = 4

	// MaxSignLineLength bounds one sign line in bytes. Formatting codes make
	// lines longer than what a player sees.
	MaxSignLineLength = 384
)

// Field length limits
const (
	// MaxUsernameLength is the longest player name the game allows.
	MaxUsernameLength = 16

	// MaxAliasLength bounds an entitlement alias.
	MaxAliasLength = 128

	// MaxAuditLimit bounds the number of audit events returned at once.
	MaxAuditLimit = 500
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if err := CheckStringLength(fieldName, v, max); err != nil {
			return err
		}
	}
	return nil
}
