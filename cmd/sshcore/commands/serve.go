package commands

import (
	"context"
	"fmt"
	"sshcore/application/network/connection"
	serverConfiguration "sshcore/infrastructure/configuration/server"
	infraSignal "sshcore/infrastructure/signal"
	serverRunner "sshcore/presentation/runners/server"
	"sshcore/presentation/signals"
	"sshcore/presentation/signals/reload"
	"sshcore/presentation/signals/shutdown"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept SSH connections on the configured TCP and WebSocket listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resolver serverConfiguration.Resolver = serverConfiguration.NewServerResolver()
			if configPath != "" {
				resolver = serverConfiguration.PathResolver(configPath)
			}
			manager, err := serverConfiguration.NewManager(resolver)
			if err != nil {
				return err
			}
			conf, err := manager.Configuration()
			if err != nil {
				return fmt.Errorf("failed to read server configuration: %w", err)
			}

			appCtx, appCtxCancel := context.WithCancel(cmd.Context())
			defer appCtxCancel()

			deps := serverRunner.NewDependencies(
				*conf,
				serverConfiguration.NewHostKeyManager(manager),
				manager,
				connection.Registry{},
				logger,
			)
			runner := serverRunner.NewRunner(deps, serverRunner.NewListenerFactory())

			provider := infraSignal.NewDefaultProvider()
			notifier := signals.NewOSNotifier()
			shutdown.NewHandler(appCtx, appCtxCancel, provider, notifier, logger).Handle()
			reload.NewHandler(appCtx, runner.Reload, provider, notifier, logger).Handle()

			return runner.Run(appCtx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "server configuration file (default /etc/sshcore/server_configuration.json)")
	return cmd
}
