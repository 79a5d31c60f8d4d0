// Package signs reads access-request signs: line 1 carries a prefix naming
// the kind of request and line 2 the entitlement alias.
package signs

import (
	"strings"

	dErrors "signaccess/pkg/domain-errors"

	"signaccess/internal/access/tasks"
)

// Sign prefixes on line 1, matched case-insensitively.
const (
	GrantPrefix  = "[c1-req]"
	RevokePrefix = "[c1-drop]"
)

// Messages shown to the sign author.
const (
	MessageNotAccessSign = "Line 1 must contain " + GrantPrefix + " or " + RevokePrefix + "."
	MessageMissingAlias  = "Line 2 must contain the entitlement alias."
	ExampleAlias         = "prod-admin-access"
)

// Sign is a parsed access-request sign.
type Sign struct {
	Kind  tasks.Kind `json:"kind"`
	Alias string     `json:"alias"`
}

// Validation is the outcome of checking a sign as it is written.
type Validation struct {
	Kind    tasks.Kind `json:"kind"`
	Alias   string     `json:"alias,omitempty"`
	Prefix  string     `json:"prefix,omitempty"`
	Valid   bool       `json:"valid"`
	Message string     `json:"message"`
}

// KindOf returns the request kind named on line 1, or KindUnknown.
func KindOf(line string) tasks.Kind {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, GrantPrefix):
		return tasks.KindGrant
	case strings.Contains(lower, RevokePrefix):
		return tasks.KindRevoke
	default:
		return tasks.KindUnknown
	}
}

// PrefixFor returns the canonical line 1 text for kind.
func PrefixFor(kind tasks.Kind) string {
	if kind == tasks.KindRevoke {
		return RevokePrefix
	}
	return GrantPrefix
}

// Parse reads a sign. It fails with CodeNotFound when line 1 has no access
// prefix, so callers can ignore ordinary signs, and with CodeValidation
// when the alias is missing.
func Parse(lines []string) (Sign, error) {
	kind := KindOf(line(lines, 0))
	if kind == tasks.KindUnknown {
		return Sign{}, dErrors.New(dErrors.CodeNotFound, MessageNotAccessSign)
	}
	alias := line(lines, 1)
	if alias == "" {
		return Sign{Kind: kind}, dErrors.New(dErrors.CodeValidation, MessageMissingAlias)
	}
	return Sign{Kind: kind, Alias: alias}, nil
}

// Validate checks a sign as written and returns author feedback.
func Validate(lines []string) Validation {
	s, err := Parse(lines)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return Validation{Kind: tasks.KindUnknown, Message: MessageNotAccessSign}
	case err != nil:
		return Validation{Kind: s.Kind, Prefix: PrefixFor(s.Kind), Message: MessageMissingAlias}
	}
	return Validation{
		Kind:    s.Kind,
		Alias:   s.Alias,
		Prefix:  PrefixFor(s.Kind),
		Valid:   true,
		Message: "C1 " + string(s.Kind) + " sign created successfully!",
	}
}

// Feedback renders a workflow result as the lines shown to the player.
func Feedback(result tasks.WorkflowResult) []string {
	if result.Success {
		out := []string{"✓ Access request submitted successfully!"}
		if result.TaskURL != "" {
			out = append(out, "   View your request: "+result.TaskURL)
		}
		return out
	}
	out := []string{"✗ Failed to submit access request", "   " + result.Message}
	for _, t := range result.ExistingTasks {
		out = append(out, "   "+t.URL)
	}
	return out
}

func line(lines []string, i int) string {
	if i >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[i])
}
