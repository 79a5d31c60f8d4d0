package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "signaccess/pkg/domain-errors"
)

type sample struct {
	BaseURL  string `validate:"required,url"`
	ClientID string `validate:"required,min=20"`
	Mode     string `validate:"oneof=basic assertion"`
	Alias    string `validate:"notblank"`
}

func valid() sample {
	return sample{
		BaseURL:  "https://example.conductor.one",
		ClientID: "abcdefghijklmnopqrstuvwxyz",
		Mode:     "basic",
		Alias:    "prod-admin-access",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*sample)
		wantMsg string
	}{
		{"missing base url", func(s *sample) { s.BaseURL = "" }, "base_url is required"},
		{"bad url", func(s *sample) { s.BaseURL = "not a url" }, "base_url must be a valid url"},
		{"short client id", func(s *sample) { s.ClientID = "short" }, "client_id must be at least 20 characters"},
		{"unknown mode", func(s *sample) { s.Mode = "magic" }, "mode must be one of [basic assertion]"},
		{"blank alias", func(s *sample) { s.Alias = "   " }, "alias must not be blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := Validate(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}

	t.Run("valid struct passes", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})
}

func TestValidateAs(t *testing.T) {
	s := valid()
	s.ClientID = ""
	err := ValidateAs(dErrors.CodeInvalidConfig, s)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfig))
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "base_url", toSnakeCase("BaseURL"))
	assert.Equal(t, "client_id", toSnakeCase("ClientID"))
	assert.Equal(t, "alias", toSnakeCase("Alias"))
}
