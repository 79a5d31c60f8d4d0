package string

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimStrings(t *testing.T) {
	kind, user := "  grant ", "\talice\n"
	TrimStrings(&kind, &user)
	assert.Equal(t, "grant", kind)
	assert.Equal(t, "alice", user)
}

func TestTrimSlice(t *testing.T) {
	lines := []string{" [c1-req] ", "prod-admin-access  ", ""}
	TrimSlice(lines)
	assert.Equal(t, []string{"[c1-req]", "prod-admin-access", ""}, lines)
}
