package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation rejected, validation or scenario failure
	ExitCommandError = 2 // Command error (invalid paths, unreadable config, ...)
)

// Error codes for failures that are not DAO errors. DAO errors keep their
// own codes (VALIDATION, ARGUMENT, CONFLICT, STATE).
const (
	ErrCodeGeneric     = "E001"
	ErrCodeConfig      = "E008"
	ErrCodeDatabase    = "E009"
	ErrCodeBadArgument = "E010"
	ErrCodeWriteFailed = "E011"
	ErrCodeTestFailed  = "E012"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Value outputs a DAO result. Payloads and collections print as indented
// JSON in text mode; scalars print formatted. A nil value prints nothing
// in text mode.
func (f *OutputFormatter) Value(v ir.Value) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: ir.ToJSON(v)})
	}
	switch v.(type) {
	case nil:
		return nil
	case *ir.Payload, ir.Collection:
		b, err := json.MarshalIndent(ir.ToJSON(v), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(f.Writer, string(b))
		return nil
	}
	fmt.Fprintln(f.Writer, ir.Format(v))
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and converts it into an ExitError. DAO errors are
// operation failures (exit 1) reported with their code and rule; anything
// else is a command error (exit 2).
func (f *OutputFormatter) Fail(err error) error {
	var de *dao.Error
	if errors.As(err, &de) {
		details := map[string]string{"op": de.Op, "type": de.Type}
		if de.ID != "" {
			details["id"] = de.ID
		}
		if de.Rule != "" {
			details["rule"] = de.Rule
		}
		_ = f.Error(string(de.Code), de.Message, details)
		return WrapExitError(ExitFailure, string(de.Code), err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(ErrCodeGeneric, exitErr.Error(), nil)
		return exitErr
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// In JSON mode the message goes to ErrWriter so stdout stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
