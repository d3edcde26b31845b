package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Files    int                        `json:"files"`
	Types    int                        `json:"types"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [model-dir]",
		Short: "Validate a model",
		Long: `Compile and validate the CUE model in a directory.

Reports every validation error with its code and line, and warns about
reverse-cascade cycles: they terminate but one delete can remove many
instances. Without an argument the configured model directory is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, err := rootOpts.Config()
				if err != nil {
					return outputValidateError(newFormatter(rootOpts, cmd), ErrCodeConfig, err.Error())
				}
				dir = cfg.Model
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	if modelDir == "" {
		return outputValidateError(formatter, compiler.ErrCodeNotFound, "no model directory given")
	}

	res, errs := compiler.LoadModel(modelDir)

	// Directory problems come back without a result.
	if res == nil {
		var loadErr *compiler.LoadError
		if len(errs) > 0 && errors.As(errs[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, errors.Join(errs...).Error())
	}

	result := ValidationResult{Valid: len(errs) == 0, Files: res.FileCount, Warnings: res.Warnings}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, modelDir)
	if res.Graph != nil {
		result.Types = len(res.Graph.Types())
	}
	for _, err := range errs {
		var ve compiler.ValidationError
		var le *compiler.LoadError
		switch {
		case errors.As(err, &ve):
			result.Errors = append(result.Errors, ve)
		case errors.As(err, &le):
			result.Errors = append(result.Errors, compiler.ValidationError{Field: "model", Code: le.Code, Message: le.Message})
		default:
			result.Errors = append(result.Errors, compiler.ValidationError{Field: "model", Code: ErrCodeGeneric, Message: err.Error()})
		}
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w.Message)
	}
	fmt.Fprintf(formatter.Writer, "✓ Model valid: %d type(s) in %d file(s)\n", result.Types, result.Files)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Load errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputValidationErrors outputs all validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %d validation error(s):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
		}
	}
	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
}
