package config

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	dErrors "signaccess/pkg/domain-errors"
	"signaccess/pkg/secrets"
	"signaccess/pkg/validation"
)

// Placeholder values shipped in the sample config. They count as unset.
const (
	PlaceholderBaseURL      = "https://your-tenant.conductor.one"
	PlaceholderClientID     = "your-client-id-here"
	PlaceholderClientSecret = "your-client-secret-here"
)

// Config is the full service configuration.
type Config struct {
	ConductorOne ConductorOne `yaml:"conductorone"`
	Debug        Debug        `yaml:"debug"`
	Server       Server       `yaml:"server"`
	Audit        Audit        `yaml:"audit"`
}

// ConductorOne holds the tenant, credentials and endpoints.
type ConductorOne struct {
	BaseURL            string        `yaml:"base-url" validate:"required,ne=https://your-tenant.conductor.one,http_url"`
	ClientID           string        `yaml:"client-id" validate:"required,ne=your-client-id-here,min=20"`
	ClientSecret       string        `yaml:"client-secret" validate:"required,ne=your-client-secret-here"`
	TokenEndpoint      string        `yaml:"token-endpoint" validate:"notblank"`
	GrantTaskEndpoint  string        `yaml:"grant-task-endpoint" validate:"notblank"`
	RevokeTaskEndpoint string        `yaml:"revoke-task-endpoint" validate:"notblank"`
	SubjectMode        string        `yaml:"subject-mode" validate:"oneof=app identity"`
	AuthMode           string        `yaml:"auth-mode" validate:"oneof=auto basic assertion"`
	TaskPath           string        `yaml:"task-path" validate:"notblank"`
	RequestTimeout     time.Duration `yaml:"request-timeout" validate:"min=0"`
}

// LogValue keeps the client secret out of logs.
func (c ConductorOne) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.Int("client_id_length", len(c.ClientID)),
		slog.String("client_secret", secrets.Redact(c.ClientSecret)),
		slog.String("token_endpoint", c.TokenEndpoint),
		slog.String("grant_task_endpoint", c.GrantTaskEndpoint),
		slog.String("revoke_task_endpoint", c.RevokeTaskEndpoint),
		slog.String("subject_mode", c.SubjectMode),
		slog.String("auth_mode", c.AuthMode),
		slog.Duration("request_timeout", c.RequestTimeout),
	)
}

// Debug toggles verbose logging and raw error bodies in user messages.
type Debug struct {
	Enabled bool `yaml:"enabled"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr" validate:"notblank"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	// AdminToken guards reload, debug toggle and token invalidation. Empty
	// leaves those routes open. Read once at startup.
	AdminToken string `yaml:"admin-token"`
}

// Audit sizes the audit trail.
type Audit struct {
	BufferSize int `yaml:"buffer-size" validate:"min=0"`
	Capacity   int `yaml:"capacity" validate:"min=0"`
}

// Default returns the configuration used for anything the file and
// environment leave unset.
func Default() Config {
	return Config{
		ConductorOne: ConductorOne{
			TokenEndpoint:      "auth/v1/token",
			GrantTaskEndpoint:  "api/v1/task/grant",
			RevokeTaskEndpoint: "api/v1/task/revoke",
			SubjectMode:        "app",
			AuthMode:           "auto",
			TaskPath:           "task",
			RequestTimeout:     10 * time.Second,
		},
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Audit: Audit{
			BufferSize: 256,
			Capacity:   1000,
		},
	}
}

// Load reads path (optional), applies environment overrides and validates.
// Errors carry dErrors.CodeInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, dErrors.Wrap(err, dErrors.CodeInvalidConfig, "failed to read config file")
		}
		if err := Decode(raw, &cfg); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges YAML from raw into cfg. Unknown keys are rejected.
func Decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return dErrors.Wrap(err, dErrors.CodeInvalidConfig, "failed to parse config file")
	}
	return nil
}

// ApplyEnv overrides cfg from SIGNACCESS_* variables, looked up with lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("SIGNACCESS_BASE_URL"); ok && v != "" {
		cfg.ConductorOne.BaseURL = v
	}
	if v, ok := lookup("SIGNACCESS_CLIENT_ID"); ok && v != "" {
		cfg.ConductorOne.ClientID = v
	}
	if v, ok := lookup("SIGNACCESS_CLIENT_SECRET"); ok && v != "" {
		cfg.ConductorOne.ClientSecret = v
	}
	if v, ok := lookup("SIGNACCESS_AUTH_MODE"); ok && v != "" {
		cfg.ConductorOne.AuthMode = v
	}
	if v, ok := lookup("SIGNACCESS_SUBJECT_MODE"); ok && v != "" {
		cfg.ConductorOne.SubjectMode = v
	}
	if v, ok := lookup("SIGNACCESS_REQUEST_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConductorOne.RequestTimeout = d
		}
	}
	if v, ok := lookup("SIGNACCESS_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug.Enabled = b
		}
	}
	if v, ok := lookup("SIGNACCESS_ADDR"); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup("SIGNACCESS_ADMIN_TOKEN"); ok && v != "" {
		cfg.Server.AdminToken = v
	}
}

// Validate checks cfg. Placeholder credentials count as missing.
func Validate(cfg Config) error {
	return validation.ValidateAs(dErrors.CodeInvalidConfig, cfg)
}
