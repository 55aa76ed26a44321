package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/jpegconform/internal/harness"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	SelectOptions
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scenarios a run would execute",
		Long: `List the selected scenarios without running them.

Examples:
  jpegconform list
  jpegconform list --scenarios ./scenarios --filter "lossy*"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	opts.addFlags(cmd.Flags())

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenarios, err := opts.load("")
	if err != nil {
		return err
	}

	if formatter.IsJSON() {
		if scenarios == nil {
			scenarios = []*harness.Scenario{}
		}
		return formatter.Success(scenarios)
	}

	if len(scenarios) == 0 {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	table := formatter.Table("Name", "Steps", "Description")
	for _, s := range scenarios {
		table.Append([]string{s.Name, strconv.Itoa(len(s.Steps)), s.Description})
	}
	table.Render()
	return nil
}
