package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nucleus/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program-dir>",
		Short: "Validate a program",
		Long: `Validate the CUE program in a directory.

Reports every problem found: unknown getter references, getter cycles,
params that do not match deps, unknown compute languages, and reducer or
compute sources that do not compile.

Exit codes:
  0 - Program is valid
  1 - Validation errors
  2 - Command error (directory not found, no CUE files, CUE syntax)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, verrs, err := loadProgram(dir)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	if len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)
	if len(loaded.Spec.Stores) == 0 {
		return outputValidationErrors(formatter, []compiler.ValidationError{{
			Field:   "store",
			Message: "program declares no stores",
			Code:    compiler.ErrCodeGeneric,
		}})
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Program valid")
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	// Validation failures = exit code 1
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{Errors: errs}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}

// ValidateProgramDir validates the program in dir.
// This is a helper function for external callers.
func ValidateProgramDir(dir string) ([]compiler.ValidationError, error) {
	_, verrs, err := loadProgram(dir)
	return verrs, err
}
