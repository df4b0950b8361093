package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/service/checker"
	"github.com/oshokin/kiosk-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// watch keeps polling the agent.
	watch bool
	// interval between polls in watch mode.
	interval time.Duration

	// rootCmd represents the base command for reporting update status.
	rootCmd = &cobra.Command{
		Use:   "kiosk-status [agent-address]",
		Short: "Show the kiosk update status",
		Long: `Prints the installed kiosk version, the last run report and the health of the update agent.

Exits with a non-zero status when the agent reports that its last run failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var agentAddress string
			if len(args) > 0 {
				agentAddress = args[0]
			}

			options := &checker.Options{
				ConfigPath:   configPath,
				AgentAddress: agentAddress,
				Watch:        watch,
				PollInterval: interval,
				Out:          cmd.OutOrStdout(),
			}

			return checker.Run(ctx, options)
		},
	}
)

// Execute runs the kiosk-status CLI and exits with non-zero status on error.
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
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling the agent health")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", checker.DefaultPollInterval, "poll interval in watch mode")
}
