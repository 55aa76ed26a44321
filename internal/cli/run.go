package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/jpegconform/internal/config"
	"github.com/roach88/jpegconform/internal/harness"
	"github.com/roach88/jpegconform/internal/invoke"
	"github.com/roach88/jpegconform/internal/store"
)

// SelectOptions chooses which scenarios a command works on.
type SelectOptions struct {
	Filter       string // scenario filter (glob pattern)
	ScenariosDir string // directory of YAML scenario files
	SkipBuiltin  bool   // leave out the built-in suite
}

func (o *SelectOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Filter, "filter", "", "filter scenarios by name (glob pattern)")
	fs.StringVar(&o.ScenariosDir, "scenarios", "", "directory of YAML scenario files to add")
	fs.BoolVar(&o.SkipBuiltin, "skip-builtin", false, "do not include the built-in suite")
}

// load returns the selected scenarios in definition order: the built-in
// suite first, then scenario files sorted by path.
func (o *SelectOptions) load(minVersion string) ([]*harness.Scenario, error) {
	var scenarios []*harness.Scenario
	if !o.SkipBuiltin {
		scenarios = append(scenarios, harness.BuiltinSuite(minVersion)...)
	}

	if o.ScenariosDir != "" {
		if _, err := os.Stat(o.ScenariosDir); os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", o.ScenariosDir))
		}
		loaded, err := harness.LoadScenarios(o.ScenariosDir)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to load scenarios", err)
		}
		seen := make(map[string]bool, len(scenarios))
		for _, s := range scenarios {
			seen[s.Name] = true
		}
		for _, s := range loaded {
			if seen[s.Name] {
				return nil, NewExitError(ExitFailure, fmt.Sprintf("scenario %q in %s clashes with a built-in scenario", s.Name, o.ScenariosDir))
			}
		}
		scenarios = append(scenarios, loaded...)
	}

	selected, err := harness.Filter(scenarios, o.Filter)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --filter", err)
	}
	return selected, nil
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SelectOptions
}

// RunReport is the outcome of a run command.
type RunReport struct {
	RunID           string            `json:"run_id,omitempty"`
	ContractVersion int               `json:"contract_version"`
	Scenarios       []*harness.Result `json:"scenarios"`
	Passed          int               `json:"passed"`
	Failed          int               `json:"failed"`
	Total           int               `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run conformance scenarios against jpegoptim",
		Long: `Run the built-in conformance suite, plus any scenario files, against
the jpegoptim executable.

Every scenario writes into its own <workdir>/tmp/<scenario> directory.
Existing files there are tolerated, so runs can be repeated without
cleanup.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid flags, paths, etc.)

Examples:
  jpegconform run
  JPEGOPTIM=/usr/bin/jpegoptim jpegconform run --fixtures ./testdata
  jpegconform run --filter "lossy*" --format json
  jpegconform run --scenarios ./scenarios --parallel 4 --db ./history.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, cmd)
		},
	}

	opts.addFlags(cmd.Flags())
	cmd.Flags().Int(config.KeyParallel, 1, "number of scenarios to run at once")
	cmd.Flags().String(config.KeyMinVersion, "", "lowest acceptable jpegoptim version (X.Y.Z)")

	return cmd
}

func runScenarios(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logger(formatter.GetErrWriter())

	scenarios, err := opts.load(cfg.MinVersion)
	if err != nil {
		return err
	}

	if len(scenarios) == 0 {
		if formatter.IsJSON() {
			return formatter.Success(RunReport{
				ContractVersion: harness.StatusLineContractVersion,
				Scenarios:       []*harness.Result{},
			})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("running scenarios",
		"program", cfg.Program,
		"workdir", cfg.WorkDir,
		"fixtures", cfg.FixtureDir,
		"count", len(scenarios),
		"parallel", cfg.Parallel,
	)

	runner := invoke.NewRunner(cfg, logger)
	h := harness.New(runner, cfg.FixtureDir, logger)
	results := h.RunAll(ctx, scenarios, cfg.Parallel)

	report := RunReport{
		ContractVersion: harness.StatusLineContractVersion,
		Scenarios:       results,
		Total:           len(results),
	}
	report.Passed, report.Failed = harness.Summary(results)

	if cfg.DBPath != "" {
		run, err := recordRun(ctx, cfg, results)
		if err != nil {
			return err
		}
		report.RunID = run.ID
		formatter.VerboseLog("Recorded run %s (#%d) in %s", run.ID, run.Seq, cfg.DBPath)
	}

	if formatter.IsJSON() {
		return outputRunJSON(formatter, report)
	}
	return outputRunText(formatter, report)
}

// recordRun stores the run in the history database.
func recordRun(ctx context.Context, cfg config.Config, results []*harness.Result) (store.Run, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.WriteRun(ctx, store.Run{
		Program:     cfg.Program,
		ToolVersion: reportedVersion(results),
	}, results)
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to record run", err)
	}
	return run, nil
}

// reportedVersion returns the version printed by the tool during the run,
// or "" when no step printed a version banner.
func reportedVersion(results []*harness.Result) string {
	for _, r := range results {
		for _, step := range r.Steps {
			if m := harness.VersionPattern.FindStringSubmatch(step.Output); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func outputRunJSON(formatter *OutputFormatter, report RunReport) error {
	response := CLIResponse{
		Status: "ok",
		Data:   report,
	}
	if report.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", report.Failed),
		}
	}

	if err := formatter.Response(response); err != nil {
		return err
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}

func outputRunText(formatter *OutputFormatter, report RunReport) error {
	w := formatter.Writer

	for _, r := range report.Scenarios {
		fmt.Fprintf(w, "%s %s\n", marker(r.Pass), r.Scenario)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", indent(e, "  "))
		}
	}

	fmt.Fprintln(w)
	table := formatter.Table("Scenario", "Result", "Steps", "Exit codes")
	for _, r := range report.Scenarios {
		result := verdict(r.Pass)
		if r.ExecutionFailed {
			result += " (execution)"
		}
		table.Append([]string{r.Scenario, result, strconv.Itoa(len(r.Steps)), exitCodes(r)})
	}
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total (status-line contract v%d)\n",
		report.Passed, report.Failed, report.Total, report.ContractVersion)
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

func exitCodes(r *harness.Result) string {
	codes := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		codes[i] = strconv.Itoa(s.ExitCode)
	}
	return strings.Join(codes, ",")
}

// indent prefixes every line after the first.
func indent(s, prefix string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}
