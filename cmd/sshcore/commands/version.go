package commands

import (
	"sshcore/presentation/runners/version"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return version.NewRunner(cmd.OutOrStdout()).Run()
		},
	}
}
