package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/service/server"
	"github.com/oshokin/kiosk-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// reportFile path where run reports are persisted.
	reportFile string

	// rootCmd represents the base command for running the update agent.
	rootCmd = &cobra.Command{
		Use:   "kiosk-agent [listen-address]",
		Short: "Run the periodic kiosk update agent.",
		Long: `Starts the long-running update agent.

The agent runs an update at start-up and then every check_interval. The outcome
of the latest run is published through the standard gRPC health service under
the name "kiosk.updater" on the listen address from the configuration file.
A listen address argument overrides the configuration (e.g., 127.0.0.1:7443).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			defer logger.Sync()

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				ReportFile:    reportFile,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the kiosk-agent CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&reportFile, "report-file", "r", "", "path to persist run reports (overrides settings)")
}
