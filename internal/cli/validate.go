package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/plan"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool            `json:"valid"`
	Types  []string        `json:"types,omitempty"`
	Tables []string        `json:"tables,omitempty"`
	Errors []SchemaProblem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate a CUE schema",
		Long: `Validate the tables and record types of a CUE schema package.

Checks column kinds, foreign keys and every binding against the registry and
builds the join plan of each record type. Without an argument the schema
directory of the config file is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	schemaDir := cfg.Schema
	if len(args) == 1 {
		schemaDir = args[0]
	}
	if schemaDir == "" {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no schema directory given and none configured", nil)
	}

	reg, err := loadRegistry(formatter, schemaDir)
	if err != nil {
		return err
	}

	var problems []SchemaProblem
	result := ValidationResult{Valid: true}
	for _, t := range reg.Tables() {
		result.Tables = append(result.Tables, t.Name)
	}
	for _, rt := range reg.Types() {
		p, err := plan.Build(reg, rt)
		if err != nil {
			problems = append(problems, problemsOf(err)...)
			continue
		}
		formatter.VerboseLog("Type %s: table %s, %d binding(s), %d join(s)", rt.Name, rt.Table.Name, len(rt.Bindings), len(p.Joins))
		result.Types = append(result.Types, rt.Name)
	}
	if len(problems) > 0 {
		return outputValidationErrors(formatter, problems)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid: %d type(s), %d table(s)\n", len(result.Types), len(result.Tables))
	return nil
}

// outputValidationErrors outputs multiple schema problems.
func outputValidationErrors(formatter *OutputFormatter, problems []SchemaProblem) error {
	// Validation failures = exit code 1
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: problems},
			Error: &CLIError{
				Code:    problems[0].Code,
				Message: problems[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, p := range problems {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", p.Line)
		}
		switch {
		case p.Property != "":
			fmt.Fprintf(formatter.Writer, "  %s: %s.%s: %s\n\n", p.Code, p.Type, p.Property, p.Message)
		case p.Type != "":
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", p.Code, p.Type, p.Message)
		default:
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", p.Code, p.Message)
		}
	}

	return exitErr
}
