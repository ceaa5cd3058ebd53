package policy

import (
	"fmt"
	"strings"
)

// Intent declares what an action will do to a path.
type Intent string

const (
	IntentRead            Intent = "read"
	IntentWriteNew        Intent = "write_new"
	IntentWriteOverwrite  Intent = "write_overwrite"
	IntentWriteIdempotent Intent = "write_idempotent"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentRead, IntentWriteNew, IntentWriteOverwrite, IntentWriteIdempotent:
		return true
	default:
		return false
	}
}

// ParseIntent accepts the canonical names plus dashed and camel variants
// ("write-new", "WriteNew").
func ParseIntent(raw string) (Intent, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "read":
		return IntentRead, nil
	case "write_new", "writenew":
		return IntentWriteNew, nil
	case "write_overwrite", "writeoverwrite":
		return IntentWriteOverwrite, nil
	case "write_idempotent", "writeidempotent":
		return IntentWriteIdempotent, nil
	default:
		return "", fmt.Errorf("unknown intent %q", raw)
	}
}

// Rule names the sandbox rule a decision was made under.
type Rule string

const (
	RuleInvalidPath   Rule = "invalid_path"
	RuleContainment   Rule = "containment"
	RuleExistence     Rule = "existence"
	RuleUnknownIntent Rule = "unknown_intent"
)

// Decision is the deterministic gate result. Path is the resolved form of
// the checked path when resolution succeeded.
type Decision struct {
	Allowed bool
	Rule    Rule
	Reason  string
	Path    string
}
