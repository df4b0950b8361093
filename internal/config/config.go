package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/versioncode"
)

// Config holds the settings shared by the kiosk binaries.
type Config struct {
	// PackageID identifies the kiosk application on the device.
	PackageID string `yaml:"package_id"`
	// ReleaseOwner is the owner of the repository that publishes releases.
	ReleaseOwner string `yaml:"release_owner"`
	// ReleaseRepo is the repository that publishes releases.
	ReleaseRepo string `yaml:"release_repo"`
	// APIBaseURL is the release index API root.
	APIBaseURL string `yaml:"api_base_url"`
	// ArchiveExtension is the suffix of installable assets.
	ArchiveExtension string `yaml:"archive_extension"`
	// ManifestEntry is the archive entry holding the package manifest.
	ManifestEntry string `yaml:"manifest_entry"`
	// Permissions are granted to the package after every run.
	Permissions []string `yaml:"permissions"`
	// DeviceRoot is the root folder of the local managed device.
	DeviceRoot string `yaml:"device_root"`
	// ScratchDir holds transient downloads.
	ScratchDir string `yaml:"scratch_dir"`
	// ReportFile is where the last run report is persisted.
	ReportFile string `yaml:"report_file"`
	// ListenAddress is the agent's gRPC health endpoint.
	ListenAddress string `yaml:"listen_address"`
	// RequestTimeout bounds release index queries.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DownloadTimeout bounds a single artifact download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// CheckInterval is the agent's periodic trigger interval.
	CheckInterval time.Duration `yaml:"check_interval"`
	// BootTimeout bounds a boot-triggered run.
	BootTimeout time.Duration `yaml:"boot_timeout"`
	// InstallConfirmTimeout bounds the wait for install confirmation before policy enforcement.
	InstallConfirmTimeout time.Duration `yaml:"install_confirm_timeout"`
	// TagEncoding selects the tag-to-code encoding: legacy or wide.
	TagEncoding string `yaml:"tag_encoding"`
	// ReuseProbeDownload reuses the probe download for the install within a run.
	ReuseProbeDownload bool `yaml:"reuse_probe_download"`
	// SkipPolicyOnAbort ends the run without policy enforcement when no release could be resolved.
	SkipPolicyOnAbort bool `yaml:"skip_policy_on_abort"`
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "kiosk-updater-settings.yaml"

	// DefaultReportFilename is the default filename for the last run report.
	DefaultReportFilename = "kiosk-updater-report.json"

	// DefaultAPIBaseURL is the public release index.
	DefaultAPIBaseURL = "https://api.github.com/"

	// DefaultArchiveExtension is the installable asset suffix.
	DefaultArchiveExtension = ".kpkg"

	// DefaultManifestEntry is the manifest entry name inside a package archive.
	DefaultManifestEntry = "manifest.yaml"

	// DefaultDeviceRoot is the local device root folder.
	DefaultDeviceRoot = "device"

	// DefaultRequestTimeout bounds release index queries.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultDownloadTimeout bounds a single download.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultCheckInterval is the periodic trigger interval.
	DefaultCheckInterval = 6 * time.Hour

	// DefaultBootTimeout bounds a boot-triggered run.
	DefaultBootTimeout = 30 * time.Minute

	// DefaultInstallConfirmTimeout bounds the wait for install confirmation.
	DefaultInstallConfirmTimeout = 2 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPackageIDRequired is returned when the package id is missing.
	errPackageIDRequired = errors.New("package id must be provided")
	// errRepositoryRequired is returned when the release repository is missing.
	errRepositoryRequired = errors.New("release owner and repository must be provided")
	// errNegativeDuration is returned for negative durations.
	errNegativeDuration = errors.New("duration must not be negative")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	settings.PackageID = strings.TrimSpace(settings.PackageID)
	if settings.PackageID == "" {
		return errPackageIDRequired
	}

	if settings.ReleaseOwner == "" || settings.ReleaseRepo == "" {
		return errRepositoryRequired
	}

	if settings.APIBaseURL == "" {
		settings.APIBaseURL = DefaultAPIBaseURL
	}

	if _, err := url.ParseRequestURI(settings.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api base URL: %w", err)
	}

	if !strings.HasSuffix(settings.APIBaseURL, "/") {
		settings.APIBaseURL += "/"
	}

	if settings.ArchiveExtension == "" {
		settings.ArchiveExtension = DefaultArchiveExtension
	}

	if !strings.HasPrefix(settings.ArchiveExtension, ".") {
		settings.ArchiveExtension = "." + settings.ArchiveExtension
	}

	if settings.ManifestEntry == "" {
		settings.ManifestEntry = DefaultManifestEntry
	}

	if settings.DeviceRoot == "" {
		settings.DeviceRoot = DefaultDeviceRoot
	}

	if settings.ScratchDir == "" {
		settings.ScratchDir = filepath.Join(os.TempDir(), "kiosk-updater")
	}

	if settings.ReportFile == "" {
		settings.ReportFile = DefaultReportFilename
	}

	if settings.ListenAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.ListenAddress); err != nil {
			return fmt.Errorf("invalid listen address: %w", err)
		}
	}

	if err := applyDurationDefaults(settings); err != nil {
		return err
	}

	encoding, err := versioncode.ParseEncoding(settings.TagEncoding)
	if err != nil {
		return err
	}

	settings.TagEncoding = string(encoding)

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	return nil
}

// applyDurationDefaults fills zero durations and rejects negative ones.
func applyDurationDefaults(settings *Config) error {
	durations := []struct {
		name  string
		value *time.Duration
		def   time.Duration
	}{
		{"request_timeout", &settings.RequestTimeout, DefaultRequestTimeout},
		{"download_timeout", &settings.DownloadTimeout, DefaultDownloadTimeout},
		{"check_interval", &settings.CheckInterval, DefaultCheckInterval},
		{"boot_timeout", &settings.BootTimeout, DefaultBootTimeout},
		{"install_confirm_timeout", &settings.InstallConfirmTimeout, DefaultInstallConfirmTimeout},
	}

	for _, d := range durations {
		if *d.value < 0 {
			return fmt.Errorf("%s: %w", d.name, errNegativeDuration)
		}

		if *d.value == 0 {
			*d.value = d.def
		}
	}

	return nil
}
