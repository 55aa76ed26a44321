package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/jpegconform/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	Path     string `json:"path"`
	Scenario string `json:"scenario,omitempty"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenario files without running them",
		Long: `Validate YAML scenario files against the scenario schema.

Each path is a scenario file or a directory searched for .yaml/.yml
files. Every file is checked; all problems are reported. Nothing is
executed.

Examples:
  jpegconform validate ./scenarios
  jpegconform validate lossy.yaml broken.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	files, err := collectScenarioFiles(paths)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "validate", err)
	}
	if len(files) == 0 {
		_ = formatter.Error(ErrCodeNotFound, "no scenario files found", paths)
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	seen := make(map[string]string)
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)

		fv := FileValidation{Path: file, Valid: true}
		s, err := harness.LoadScenario(file)
		switch {
		case err != nil:
			fv.Valid = false
			fv.Error = err.Error()
		case seen[s.Name] != "":
			fv.Scenario = s.Name
			fv.Valid = false
			fv.Error = fmt.Sprintf("duplicate scenario name %q (also in %s)", s.Name, seen[s.Name])
		default:
			fv.Scenario = s.Name
			seen[s.Name] = file
		}

		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if result.Valid {
		return outputValidateSuccess(formatter, result)
	}
	return outputValidationErrors(formatter, result)
}

// collectScenarioFiles expands directories into the scenario files they
// contain. Explicit file paths are kept as given.
func collectScenarioFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("path not found: %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := harness.FindScenarioFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	for _, f := range result.Files {
		fmt.Fprintf(formatter.Writer, "%s %s (%s)\n", marker(true), f.Path, f.Scenario)
	}
	fmt.Fprintf(formatter.Writer, "✓ All %d scenario file(s) valid\n", len(result.Files))
	return nil
}

// outputValidationErrors outputs per-file validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	invalid := 0
	for _, f := range result.Files {
		if !f.Valid {
			invalid++
		}
	}
	message := fmt.Sprintf("%d of %d scenario file(s) invalid", invalid, len(result.Files))

	if formatter.IsJSON() {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeInvalidFile,
				Message: message,
			},
		}
		if err := formatter.Response(response); err != nil {
			return err
		}
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, message)
	}

	for _, f := range result.Files {
		if f.Valid {
			fmt.Fprintf(formatter.Writer, "%s %s (%s)\n", marker(true), f.Path, f.Scenario)
			continue
		}
		fmt.Fprintf(formatter.Writer, "%s %s\n", marker(false), f.Path)
		fmt.Fprintf(formatter.Writer, "  %s\n", indent(f.Error, "  "))
	}
	fmt.Fprintf(formatter.Writer, "✗ Validation failed: %s\n", message)

	return NewExitError(ExitFailure, message)
}
