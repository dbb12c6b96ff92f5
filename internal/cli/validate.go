package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/simloom/internal/compiler"
	"github.com/roach88/simloom/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Components int                        `json:"components"`
	Systems    int                        `json:"systems"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate CUE component and system definitions",
		Long: `Validate CUE component and system definitions without registering them.

Every definition is compiled and checked as one batch against an empty
registry: names, property types, defaults, blank logic and whether each
system's required components are defined.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadDefinitions(dir, LoadModeCollectAll)
	if loadResult == nil {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr.Pos),
			})
		}
	}
	validationErrors = append(validationErrors, validateBatch(loadResult, formatter)...)

	result := ValidationResult{
		Valid:      len(validationErrors) == 0,
		Components: len(loadResult.Components),
		Systems:    len(loadResult.Systems),
		Errors:     validationErrors,
	}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ All definitions valid (%d components, %d systems)\n", result.Components, result.Systems)
	return nil
}

// validateBatch checks the loaded definitions as one registration batch.
func validateBatch(res *LoadResult, formatter *OutputFormatter) []compiler.ValidationError {
	batch := compiler.ValidateBatch(ir.RegistrySnapshot{}, res.Components, res.Systems)

	var out []compiler.ValidationError
	for i, errs := range batch.Components {
		formatter.VerboseLog("Validating component: %s", res.Components[i].Name)
		out = append(out, prefixed("component."+res.Components[i].Name, errs)...)
	}
	for i, errs := range batch.Systems {
		formatter.VerboseLog("Validating system: %s", res.Systems[i].Name)
		out = append(out, prefixed("system."+res.Systems[i].Name, errs)...)
	}
	return out
}

func prefixed(prefix string, errs []compiler.ValidationError) []compiler.ValidationError {
	out := make([]compiler.ValidationError, len(errs))
	for i, e := range errs {
		e.Field = prefix + "." + e.Field
		out[i] = e
	}
	return out
}

func lineOf(pos interface {
	IsValid() bool
	Line() int
}) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateError outputs a command-level failure (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs definition errors (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Envelope(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failure
}
