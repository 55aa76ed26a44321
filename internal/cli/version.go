package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jpegconform/internal/harness"
)

// VersionInfo describes this build.
type VersionInfo struct {
	Version         string `json:"version"`
	ContractVersion int    `json:"contract_version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the jpegconform version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			info := VersionInfo{Version: Version, ContractVersion: harness.StatusLineContractVersion}
			if formatter.IsJSON() {
				return formatter.Success(info)
			}
			fmt.Fprintf(formatter.Writer, "jpegconform %s (status-line contract v%d)\n", info.Version, info.ContractVersion)
			return nil
		},
	}
}
