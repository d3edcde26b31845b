package expr

import (
	"errors"
	"fmt"
)

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Expr    string
	Pos     int // rune offset
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d in %q: %s", e.Pos, e.Expr, e.Message)
}

// EvalError reports a type or resolution error during evaluation.
// Undefined operands are never errors; they evaluate to undefined.
type EvalError struct {
	Expr    string
	Message string
	Err     error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluate %q: %s: %v", e.Expr, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluate %q: %s", e.Expr, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// IsSyntaxError reports whether err is or wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// IsEvalError reports whether err is or wraps an *EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// evalErrorf builds an EvalError without an expression; the evaluator fills
// Expr in at the top level.
func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}
