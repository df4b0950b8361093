package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/service/updater"
	"github.com/oshokin/kiosk-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// trigger names what started this run.
	trigger string
	// reportFile overrides the report location from settings.
	reportFile string

	// rootCmd represents the base command for a single update run.
	rootCmd = &cobra.Command{
		Use:   "kiosk-updater",
		Short: "Update the kiosk application and enforce device policy",
		Long: `Runs one unattended update of the kiosk application.

The updater probes the installed package, resolves the latest published release,
installs it through an atomic install session when it is newer, and always
finishes by protecting the package from removal and granting its permissions.

Use --trigger boot from the device boot hook: the run is then bounded by boot_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			defer logger.Sync()

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.Options{
				ConfigPath: configPath,
				Trigger:    trigger,
				ReportFile: reportFile,
			}

			return updater.Run(ctx, options)
		},
	}
)

// Execute runs the kiosk-updater CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&trigger, "trigger", "t", string(updater.TriggerStart), "what started the run: start or boot")
	rootCmd.Flags().StringVarP(&reportFile, "report-file", "r", "", "path to write the run report (overrides settings)")
}
