// Package cli implements the jpegconform command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jpegconform/internal/config"
	"github.com/roach88/jpegconform/internal/harness"
)

// Version is the jpegconform release, set at build time with
// -ldflags "-X github.com/roach88/jpegconform/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the jpegconform CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jpegconform",
		Short: "jpegconform - black-box conformance tests for jpegoptim",
		Long: `Run black-box conformance scenarios against a jpegoptim executable.

Each scenario invokes the tool with controlled arguments and checks its
exit status, its output and the files it writes. The program under test
is taken from --program, then the JPEGOPTIM environment variable, then
` + config.DefaultProgram + `. Set DEBUG (or pass --verbose) to log every
invocation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags. The names double as config keys, see config.Load.
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, config.KeyVerbose, "v", false, "log every invocation (same as DEBUG=1)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.String(config.KeyProgram, config.DefaultProgram, "path to the jpegoptim executable (env "+config.EnvProgram+")")
	pf.String(config.KeyFixtures, ".", "directory holding the fixture images, relative to --workdir")
	pf.String(config.KeyWorkDir, ".", "directory the tool runs in; outputs go to <workdir>/"+harness.OutputRoot)
	pf.String(config.KeyDB, "", "path to the SQLite run history database")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newFormatter builds the formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadConfig resolves the configuration from the command's flags and the
// environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}
