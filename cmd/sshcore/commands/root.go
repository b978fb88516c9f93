package commands

import (
	"io"
	"log"
	"sshcore/application/logging"
	"sshcore/domain/app"
	infraLogging "sshcore/infrastructure/logging"

	"github.com/spf13/cobra"
)

var (
	quiet  bool
	logger logging.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          app.Name,
		Short:        "SSH2 transport server and probe",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if quiet {
				log.SetOutput(io.Discard)
			}
			logger = infraLogging.NewLogLogger()
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")

	root.AddCommand(serveCmd(), dialCmd(), versionCmd())
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}
