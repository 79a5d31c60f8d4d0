// Command c1token is a diagnostics tool for the access client. It signs a
// client assertion, fetches an access token or runs one workflow using the
// same configuration as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"signaccess/internal/access/bootstrap"
	"signaccess/internal/access/credential"
	"signaccess/internal/access/signs"
	"signaccess/internal/access/tasks"
	"signaccess/internal/access/transport"
	"signaccess/internal/platform/config"
	"signaccess/pkg/secrets"
)

// errReported signals a failure that has already been written to out.
var errReported = errors.New("reported")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return errReported
	}

	var err error
	switch args[0] {
	case "assert":
		err = runAssert(args[1:], out)
	case "token":
		err = runToken(ctx, args[1:], out)
	case "request":
		err = runRequest(ctx, args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n", args[0])
		printUsage(out)
		err = errReported
	}
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `c1token - access client diagnostics

Reads the same config file and SIGNACCESS_* environment as the server.

Usage:
  c1token <command> [flags]

Commands:
  assert    Sign a client assertion and show its header and claims
  token     Fetch an access token and show its masked form and expiry
  request   Run one grant or revoke workflow

Examples:
  # Check that a structured secret parses and signs
  c1token assert -c config.yml

  # Confirm the tenant accepts the credentials
  c1token token -c config.yml --json

  # Request an entitlement for a player
  c1token request -c config.yml --kind grant --user Steve --alias prod-admin-access

Use "c1token <command> -h" for more information about a command.`)
}

type commonFlags struct {
	configPath string
	jsonOutput bool
}

func newFlagSet(name string, common *commonFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&common.configPath, "config", "c", "", "Path to the YAML config file")
	fs.BoolVar(&common.jsonOutput, "json", false, "Output as JSON")
	return fs
}

type assertOutput struct {
	Assertion string         `json:"assertion"`
	Header    map[string]any `json:"header"`
	Claims    map[string]any `json:"claims"`
	Verified  bool           `json:"verified"`
}

func runAssert(args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("assert", &common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(common.configPath)
	if err != nil {
		return err
	}
	if !credential.IsStructured(cfg.ConductorOne.ClientSecret) {
		return errors.New("client secret is not a structured credential; assertions need one")
	}

	client, err := transport.New(cfg.ConductorOne.BaseURL)
	if err != nil {
		return err
	}
	signer, err := credential.NewSigner(cfg.ConductorOne.ClientSecret, cfg.ConductorOne.ClientID, client.Host())
	if err != nil {
		return err
	}
	assertion, err := signer.Assertion(time.Now())
	if err != nil {
		return err
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(assertion, claims, func(*jwt.Token) (any, error) {
		return signer.PublicKey(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return fmt.Errorf("assertion does not verify against its own key: %w", err)
	}

	result := assertOutput{
		Assertion: assertion,
		Header:    parsed.Header,
		Claims:    claims,
		Verified:  parsed.Valid,
	}
	if common.jsonOutput {
		return printJSON(out, result)
	}

	fmt.Fprintln(out, "Client Assertion")
	fmt.Fprintln(out, "================")
	fmt.Fprintf(out, "Algorithm:  %v\n", parsed.Header["alg"])
	fmt.Fprintf(out, "Type:       %v\n", parsed.Header["typ"])
	fmt.Fprintf(out, "Issuer:     %v\n", claims["iss"])
	fmt.Fprintf(out, "Audience:   %v\n", claims["aud"])
	fmt.Fprintf(out, "Verified:   %t\n", parsed.Valid)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Assertion:")
	fmt.Fprintln(out, assertion)
	return nil
}

type tokenOutput struct {
	Token     string `json:"token"`
	Mode      string `json:"mode"`
	Cached    bool   `json:"cached"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func runToken(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("token", &common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	stack, err := buildStack(common.configPath)
	if err != nil {
		return err
	}

	tok, err := stack.Broker.GetToken(ctx)
	if err != nil {
		return err
	}
	status := stack.Broker.Status(ctx)

	result := tokenOutput{
		Token:  secrets.Redact(tok),
		Mode:   string(status.Mode),
		Cached: status.Cached,
	}
	if !status.ExpiresAt.IsZero() {
		result.ExpiresAt = status.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if common.jsonOutput {
		return printJSON(out, result)
	}

	fmt.Fprintln(out, "Access Token")
	fmt.Fprintln(out, "============")
	fmt.Fprintf(out, "Auth Mode:  %s\n", result.Mode)
	fmt.Fprintf(out, "Token:      %s\n", result.Token)
	if result.Cached {
		fmt.Fprintf(out, "Cached Until: %s\n", result.ExpiresAt)
	} else {
		fmt.Fprintln(out, "Cached:     no (lifetime shorter than the safety margin)")
	}
	return nil
}

type requestOutput struct {
	tasks.WorkflowResult
	Feedback []string `json:"feedback"`
}

func runRequest(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := newFlagSet("request", &common)
	kindFlag := fs.String("kind", "grant", "Request kind: grant or revoke")
	user := fs.String("user", "", "Player name to request for")
	playerID := fs.String("player-id", "", "Player UUID (optional)")
	alias := fs.String("alias", "", "Entitlement alias")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind, ok := tasks.ParseKind(*kindFlag)
	if !ok {
		return fmt.Errorf("invalid kind %q: want grant or revoke", *kindFlag)
	}
	requester := tasks.Requester{Username: *user}
	if *playerID != "" {
		id, err := uuid.Parse(*playerID)
		if err != nil {
			return fmt.Errorf("invalid player id %q: %w", *playerID, err)
		}
		requester.PlayerID = id
	}

	stack, err := buildStack(common.configPath)
	if err != nil {
		return err
	}
	result := stack.Orchestrator.RunWorkflow(ctx, kind, requester, *alias)
	feedback := signs.Feedback(result)

	if common.jsonOutput {
		if err := printJSON(out, requestOutput{WorkflowResult: result, Feedback: feedback}); err != nil {
			return err
		}
	} else {
		for _, line := range feedback {
			fmt.Fprintln(out, line)
		}
	}
	if !result.Success {
		return errReported
	}
	return nil
}

func buildStack(configPath string) (*bootstrap.Stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cfg, bootstrap.Deps{})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
