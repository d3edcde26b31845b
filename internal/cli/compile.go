package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/compiler"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// ModelDescription is the linked schema graph in a serializable form.
type ModelDescription struct {
	Types        []TypeDescription   `json:"types"`
	Enumerations map[string][]string `json:"enumerations,omitempty"`
}

// TypeDescription describes one type with its own members.
type TypeDescription struct {
	Name       string                `json:"name"`
	Kind       string                `json:"kind"`
	Abstract   bool                  `json:"abstract,omitempty"`
	Extends    []string              `json:"extends,omitempty"`
	MapsTo     string                `json:"mapsTo,omitempty"`
	Attributes []MemberDescription   `json:"attributes,omitempty"`
	Relations  []RelationDescription `json:"relations,omitempty"`
}

// MemberDescription describes an attribute.
type MemberDescription struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Member   string `json:"member"`
	Required bool   `json:"required,omitempty"`
}

// RelationDescription describes a relation.
type RelationDescription struct {
	Name    string `json:"name"`
	Target  string `json:"target"`
	Kind    string `json:"kind"`
	Member  string `json:"member"`
	Bounds  string `json:"bounds"`
	Partner string `json:"partner,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model-dir>",
		Short: "Compile a model and describe its schema graph",
		Long: `Compile the CUE model in a directory, link the schema graph and
print every type with its own attributes and relations. With --output the
description is also written to a JSON file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	res, errs := compiler.LoadModel(modelDir)
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, modelDir)

	desc := Describe(res.Graph)
	if opts.Output != "" {
		if err := writeDescription(desc, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}
	return outputCompileSuccess(formatter, desc, opts.Output)
}

// Describe converts a schema graph into a ModelDescription.
func Describe(g *schema.Graph) ModelDescription {
	var desc ModelDescription
	for _, t := range g.Types() {
		td := TypeDescription{Name: t.Name, Kind: t.Kind.String(), Abstract: t.Abstract}
		for _, sup := range t.Generalizations {
			td.Extends = append(td.Extends, g.Type(sup).Name)
		}
		if t.IsMapped() {
			td.MapsTo = g.Type(t.MappingTarget).Name
		}
		for _, a := range t.Attributes {
			td.Attributes = append(td.Attributes, MemberDescription{
				Name:     a.Name,
				Type:     a.Type.Name,
				Member:   a.Member.String(),
				Required: a.Required,
			})
		}
		for _, id := range t.Relations {
			r := g.Relation(id)
			rd := RelationDescription{
				Name:   r.Name,
				Target: g.Type(r.Target).Name,
				Kind:   r.Kind.String(),
				Member: r.Member.String(),
				Bounds: bounds(r),
			}
			if p := g.Partner(r); p != nil {
				rd.Partner = p.Name
			}
			td.Relations = append(td.Relations, rd)
		}
		desc.Types = append(desc.Types, td)
	}
	if enums := g.Enumerations(); len(enums) > 0 {
		desc.Enumerations = make(map[string][]string, len(enums))
		for name, e := range enums {
			desc.Enumerations[name] = e.Literals
		}
	}
	return desc
}

func bounds(r *schema.Relation) string {
	upper := "*"
	if r.Upper >= 0 {
		upper = strconv.Itoa(r.Upper)
	}
	return fmt.Sprintf("%d..%s", r.Lower, upper)
}

// outputCompileSuccess outputs the model description.
func outputCompileSuccess(formatter *OutputFormatter, desc ModelDescription, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(desc)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d type(s)\n\n", len(desc.Types))
	for _, t := range desc.Types {
		header := t.Name + " (" + t.Kind
		if t.Abstract {
			header += ", abstract"
		}
		if t.MapsTo != "" {
			header += " of " + t.MapsTo
		}
		fmt.Fprintln(formatter.Writer, header+")")
		for _, a := range t.Attributes {
			req := ""
			if a.Required {
				req = " required"
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s [%s%s]\n", a.Name, a.Type, a.Member, req)
		}
		for _, r := range t.Relations {
			fmt.Fprintf(formatter.Writer, "  %s → %s %s [%s, %s]\n", r.Name, r.Target, r.Bounds, r.Kind, r.Member)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote model description to %s\n", outputFile)
	}
	return nil
}

// outputCompileErrors outputs load and validation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		code, message := parseCompileError(err)
		cliErrors[i] = CLIError{Code: code, Message: message}
	}

	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		for _, e := range cliErrors {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Code, e.Message)
		}
	}
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve.Code, ve.Message
	}
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeDescription writes the description as indented JSON.
func writeDescription(desc ModelDescription, filename string) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling model description: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
