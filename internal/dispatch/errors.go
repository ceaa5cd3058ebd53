package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MEKXH/taskgate/internal/policy"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	KindPolicyViolation   Kind = "policy_violation"
	KindUnknownAction     Kind = "unknown_action"
	KindInvalidParameters Kind = "invalid_parameters"
	KindActionError       Kind = "action_error"
)

// Sentinels for errors.Is checks against an *Error of the same kind.
var (
	ErrPolicyViolation   = &Error{Kind: KindPolicyViolation}
	ErrUnknownAction     = &Error{Kind: KindUnknownAction}
	ErrInvalidParameters = &Error{Kind: KindInvalidParameters}
	ErrActionError       = &Error{Kind: KindActionError}
)

// Error is the failure variant of a dispatch. Action, Param, Path and Rule
// are filled when known.
type Error struct {
	Kind    Kind
	Action  string
	Param   string
	Path    string
	Rule    policy.Rule
	Message string
	Timeout bool
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Action != "" {
		fmt.Fprintf(&b, " [%s]", e.Action)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors that carry only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Action == "" && t.Message == "" && t.Cause == nil
}

// TimedOut reports whether the failure was caused by a deadline.
func (e *Error) TimedOut() bool {
	return e.Timeout
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindActionError for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return KindActionError
}

// Failf builds an action_error for use inside effect functions when a step
// should be named explicitly.
func Failf(cause error, format string, args ...any) error {
	return &Error{Kind: KindActionError, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Invalidf builds an invalid_parameters error for parameters that can only be
// judged once the effect has read its inputs.
func Invalidf(param, format string, args ...any) error {
	return &Error{Kind: KindInvalidParameters, Param: param, Message: fmt.Sprintf(format, args...)}
}

func invalidParams(action, param, format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidParameters,
		Action:  action,
		Param:   param,
		Message: fmt.Sprintf(format, args...),
	}
}

func policyViolation(action, param string, d policy.Decision) *Error {
	return &Error{
		Kind:    KindPolicyViolation,
		Action:  action,
		Param:   param,
		Path:    d.Path,
		Rule:    d.Rule,
		Message: fmt.Sprintf("%s rule: %s", d.Rule, d.Reason),
	}
}
