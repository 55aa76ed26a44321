package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/jpegconform/internal/config"
	"github.com/roach88/jpegconform/internal/harness"
	"github.com/roach88/jpegconform/internal/store"
)

// latestRun selects the most recent run in --run.
const latestRun = "latest"

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit    int
	Scenario string
	RunID    string
	Delete   string
}

// RunDetail is a stored run together with its scenario results.
type RunDetail struct {
	Run       store.Run         `json:"run"`
	Scenarios []*harness.Result `json:"scenarios"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded with "run --db".

Without flags the most recent runs are listed. --scenario shows the
outcomes of one scenario across runs; --run shows every scenario result
of a single run ("latest" selects the newest). --delete removes a run
and its results.

Examples:
  jpegconform history --db ./history.db
  jpegconform history --db ./history.db --scenario lossy
  jpegconform history --db ./history.db --run latest --format json
  jpegconform history --db ./history.db --delete <run-id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries (0 = all)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "show the history of one scenario")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the results of one run (ID or \"latest\")")
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete one run and its results")
	cmd.MarkFlagsMutuallyExclusive("scenario", "run", "delete")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DBPath == "" {
		_ = formatter.Error(ErrCodeConfig, "--db is required", nil)
		return NewExitError(ExitCommandError, "--db is required")
	}
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", cfg.DBPath), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.DBPath))
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case opts.Delete != "":
		return deleteRun(cmd, formatter, st, opts.Delete)
	case opts.RunID != "":
		return showRun(cmd, formatter, st, opts.RunID)
	case opts.Scenario != "":
		return showScenarioHistory(cmd, formatter, st, opts.Scenario, opts.Limit)
	default:
		return listRuns(cmd, formatter, st, opts.Limit, cfg)
	}
}

func listRuns(cmd *cobra.Command, formatter *OutputFormatter, st *store.Store, limit int, cfg config.Config) error {
	runs, err := st.ListRuns(cmd.Context(), limit)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintf(formatter.Writer, "No runs recorded in %s.\n", cfg.DBPath)
		return nil
	}

	table := formatter.Table("Seq", "Run", "Started", "Program", "Version", "Passed", "Failed")
	for _, r := range runs {
		table.Append([]string{
			strconv.FormatInt(r.Seq, 10),
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Program,
			r.ToolVersion,
			strconv.Itoa(r.Passed),
			strconv.Itoa(r.Failed),
		})
	}
	table.Render()
	return nil
}

func showScenarioHistory(cmd *cobra.Command, formatter *OutputFormatter, st *store.Store, scenario string, limit int) error {
	records, err := st.ScenarioHistory(cmd.Context(), scenario, limit)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintf(formatter.Writer, "No recorded results for scenario %q.\n", scenario)
		return nil
	}

	table := formatter.Table("Seq", "Run", "Started", "Result", "Errors")
	for _, r := range records {
		result := verdict(r.Pass)
		if r.ExecutionFailed {
			result += " (execution)"
		}
		table.Append([]string{
			strconv.FormatInt(r.Seq, 10),
			r.RunID,
			r.StartedAt.Format(time.RFC3339),
			result,
			strconv.Itoa(len(r.Errors)),
		})
	}
	table.Render()
	return nil
}

func showRun(cmd *cobra.Command, formatter *OutputFormatter, st *store.Store, id string) error {
	ctx := cmd.Context()

	var (
		run store.Run
		err error
	)
	if id == latestRun {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", id), nil)
		return WrapExitError(ExitCommandError, "history", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	results, err := st.ReadResults(ctx, run.ID)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(RunDetail{Run: run, Scenarios: results})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (#%d) started %s\n", run.ID, run.Seq, run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Program: %s", run.Program)
	if run.ToolVersion != "" {
		fmt.Fprintf(w, " (jpegoptim v%s)", run.ToolVersion)
	}
	fmt.Fprintf(w, "\nStatus-line contract: v%d\n\n", run.ContractVersion)

	for _, r := range results {
		fmt.Fprintf(w, "%s %s\n", marker(r.Pass), r.Scenario)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", indent(e, "  "))
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", run.Passed, run.Failed, run.Passed+run.Failed)
	return nil
}

func deleteRun(cmd *cobra.Command, formatter *OutputFormatter, st *store.Store, id string) error {
	err := st.DeleteRun(cmd.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", id), nil)
		return WrapExitError(ExitCommandError, "history", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to delete run", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(map[string]string{"deleted": id})
	}
	fmt.Fprintf(formatter.Writer, "Deleted run %s\n", id)
	return nil
}
