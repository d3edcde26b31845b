package dao

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a failure the engine surfaces to callers. The engine never
// retries; every mutating failure has rolled back its savepoint by the time
// the caller sees it.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation that failed ("create", "update", ...).
	Op string

	// Type is the name of the type the operation addressed.
	Type string

	// ID identifies the affected instance, when there is one.
	ID string

	// Rule names the violated rule ("required", "upper-bound", ...).
	Rule string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes DAO errors.
type ErrorCode string

const (
	// CodeValidation marks a malformed payload: missing required field,
	// unknown field, bad value, misplaced identifier.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeArgument marks a cardinality violation.
	CodeArgument ErrorCode = "ARGUMENT"

	// CodeConflict marks a stale version precondition.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeState marks a mode violation, an integrity veto or a navigation
	// create the relation filter rejects.
	CodeState ErrorCode = "STATE"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its code.
var (
	ErrValidation = errors.New("validation error")
	ErrArgument   = errors.New("argument error")
	ErrConflict   = errors.New("conflict error")
	ErrState      = errors.New("state error")
)

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Op != "" {
		sb.WriteString(" " + e.Op)
	}
	if e.Type != "" {
		sb.WriteString(" " + e.Type)
		if e.ID != "" {
			sb.WriteString("(" + e.ID + ")")
		}
	}
	sb.WriteString(": " + e.Message)
	if e.Rule != "" {
		sb.WriteString(" [" + e.Rule + "]")
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Code == CodeValidation
	case ErrArgument:
		return e.Code == CodeArgument
	case ErrConflict:
		return e.Code == CodeConflict
	case ErrState:
		return e.Code == CodeState
	}
	return false
}

// IsValidation reports whether err is or wraps a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsArgument reports whether err is or wraps an argument error.
func IsArgument(err error) bool {
	return errors.Is(err, ErrArgument)
}

// IsConflict reports whether err is or wraps a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsState reports whether err is or wraps a state error.
func IsState(err error) bool {
	return errors.Is(err, ErrState)
}

// Rules named by errors.
const (
	RuleRequired     = "required"
	RuleUnknownField = "unknown-field"
	RuleValue        = "value"
	RuleIdentifier   = "identifier"
	RuleCreateable   = "createable"
	RuleUpperBound   = "upper-bound"
	RuleLowerBound   = "lower-bound"
	RulePartner      = "partner"
	RuleVersion      = "version"
	RuleStateless    = "stateless"
	RuleNotFound     = "not-found"
	RuleIntegrity    = "integrity"
	RuleFilter       = "filter"
	RuleReadOnly     = "read-only"
	RuleUnmapped     = "unmapped"
	RuleAbstract     = "abstract"
)

// failure carries the operation context errors are reported against.
type failure struct {
	op  string
	typ string
	id  string
}

func (f failure) with(id string) failure {
	f.id = id
	return f
}

func (f failure) errorf(code ErrorCode, rule, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      f.op,
		Type:    f.typ,
		ID:      f.id,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}
}

func (f failure) validation(rule, format string, args ...any) *Error {
	return f.errorf(CodeValidation, rule, format, args...)
}

func (f failure) argument(rule, format string, args ...any) *Error {
	return f.errorf(CodeArgument, rule, format, args...)
}

func (f failure) state(rule, format string, args ...any) *Error {
	return f.errorf(CodeState, rule, format, args...)
}

func (f failure) conflict(expected, stored int64) *Error {
	return f.errorf(CodeConflict, RuleVersion, "expected version %d, stored version %d", expected, stored)
}
