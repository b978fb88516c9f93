package commands

import (
	"os"
	"path/filepath"
	"sshcore/infrastructure/settings"
	"sshcore/presentation/runners/client"
	"time"

	"github.com/spf13/cobra"
)

func dialCmd() *cobra.Command {
	var (
		protocol string
		opts     client.Options
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dial <host:port | ws://host:port/path>",
		Short: "Run a key exchange against a server and print what was negotiated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := settings.ParseProtocol(protocol)
			if err != nil {
				return err
			}
			opts.Address = args[0]
			opts.Protocol = p
			opts.Timeout = timeout
			if len(opts.KnownHosts) == 0 && !opts.Insecure {
				home, homeErr := os.UserHomeDir()
				if homeErr != nil {
					return homeErr
				}
				opts.KnownHosts = []string{filepath.Join(home, ".ssh", "known_hosts")}
			}

			report, err := client.NewRunner(opts, logger).Run(cmd.Context())
			if err != nil {
				return err
			}
			return report.Print(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&protocol, "protocol", "tcp", "transport: tcp or ws")
	cmd.Flags().StringVar(&opts.WSPath, "path", "", "WebSocket path for bare host:port addresses (default /ssh)")
	cmd.Flags().BoolVar(&opts.Secure, "secure", false, "use wss:// for bare host:port addresses")
	cmd.Flags().StringSliceVar(&opts.KnownHosts, "known-hosts", nil, "known_hosts files (default ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&opts.Insecure, "insecure", false, "accept any host key")
	cmd.Flags().StringVar(&opts.PolicyFile, "policy", "", "ssh_config file with per-host algorithm overrides")
	cmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "dial plus key exchange deadline")
	return cmd
}
