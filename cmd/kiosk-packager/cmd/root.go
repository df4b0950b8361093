package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/kiosk-updater/internal/service/packager"
	"github.com/oshokin/kiosk-updater/internal/version"
)

var (
	// configPath to an optional configuration YAML file.
	configPath string
	// packageID overrides the package id from settings.
	packageID string
	// tag is the release tag the archive is published under.
	tag string
	// versionCode overrides the code derived from the tag.
	versionCode int64
	// versionName overrides the name derived from the tag.
	versionName string
	// output is the archive path.
	output string

	// rootCmd represents the base command for building package archives.
	rootCmd = &cobra.Command{
		Use:   "kiosk-packager <payload-dir>",
		Short: "Build a kiosk package archive for publishing",
		Long: `Packs the payload folder into a package archive with an embedded manifest.

The manifest version code is derived from --tag with the configured tag encoding
unless --version-code is given. Upload the archive as an asset of that release.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			options := &packager.Options{
				ConfigPath:  configPath,
				PackageID:   packageID,
				PayloadDir:  args[0],
				Tag:         tag,
				VersionCode: versionCode,
				VersionName: versionName,
				Output:      output,
			}

			_, err := packager.Run(context.Background(), options)

			return err
		},
	}
)

// Execute runs the kiosk-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVarP(&packageID, "package", "p", "", "package identifier (overrides settings)")
	rootCmd.Flags().StringVarP(&tag, "tag", "t", "", "release tag, e.g. v1.4.2")
	rootCmd.Flags().Int64Var(&versionCode, "version-code", 0, "explicit version code")
	rootCmd.Flags().StringVar(&versionName, "version-name", "", "explicit version name")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "archive path")
}
