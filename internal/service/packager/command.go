package packager

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/platform/local"
	"github.com/oshokin/kiosk-updater/internal/versioncode"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is an optional settings file supplying the package id, extension and encoding.
	ConfigPath string
	// PackageID overrides the package identifier from settings.
	PackageID string
	// PayloadDir is the folder packed into the archive.
	PayloadDir string
	// Tag is the release tag the archive will be published under.
	Tag string
	// VersionCode overrides the code derived from Tag when positive.
	VersionCode int64
	// VersionName overrides the name derived from Tag.
	VersionName string
	// Output is the archive path; defaults to <package>-<tag><extension>.
	Output string
}

// ChecksumFunction is used to fingerprint produced archives.
const ChecksumFunction = crypto.SHA512

// archiveFileMode is the mode of produced archives.
const archiveFileMode = 0o644

var (
	// errPackageIDRequired is returned when no package id is known.
	errPackageIDRequired = errors.New("package id must be provided")
	// errTagRequired is returned when neither a tag nor a version code is given.
	errTagRequired = errors.New("release tag or version code must be provided")
	// errZeroVersionCode is returned when the tag yields no usable code.
	errZeroVersionCode = errors.New("tag does not yield a positive version code")
	// errPayloadNotDir is returned when the payload path is not a folder.
	errPayloadNotDir = errors.New("payload is not a folder")
)

// Result describes a produced archive.
type Result struct {
	// Path is the archive location.
	Path string
	// Manifest is what the archive declares.
	Manifest local.Manifest
	// Size is the archive size in bytes.
	Size int64
	// Checksum is the base64 SHA-512 of the archive.
	Checksum string
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "kiosk-packager")

	settings, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}

	manifest, err := buildManifest(opts, settings)
	if err != nil {
		return nil, err
	}

	if err = ensureDir(opts.PayloadDir); err != nil {
		return nil, err
	}

	output := opts.Output
	if output == "" {
		output = manifest.Package + "-" + strings.TrimPrefix(manifest.VersionName, "v") + settings.ArchiveExtension
	}

	logger.InfoKV(ctx, "Packing archive",
		"payload", opts.PayloadDir,
		"output", output,
		"version_code", manifest.VersionCode,
		"version_name", manifest.VersionName)

	if err = writeArchive(output, settings.ManifestEntry, manifest, opts.PayloadDir); err != nil {
		return nil, err
	}

	result, err := describe(output, manifest)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Archive ready",
		"path", result.Path,
		"size", humanize.Bytes(uint64(result.Size)), //nolint:gosec // File sizes are never negative.
		"sha512", result.Checksum)

	logger.Infof(ctx, "Publish %s as an asset of release %s", filepath.Base(result.Path), opts.Tag)

	return result, nil
}

// loadSettings reads the optional settings file; without one only flags are used.
func loadSettings(opts *Options) (*config.Config, error) {
	settings := &config.Config{
		ArchiveExtension: config.DefaultArchiveExtension,
		ManifestEntry:    config.DefaultManifestEntry,
		TagEncoding:      string(versioncode.EncodingLegacy),
	}

	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}

		settings = loaded
	}

	if opts.PackageID != "" {
		settings.PackageID = strings.TrimSpace(opts.PackageID)
	}

	if settings.PackageID == "" {
		return nil, errPackageIDRequired
	}

	return settings, nil
}

// buildManifest derives the manifest from the tag and explicit overrides.
func buildManifest(opts *Options, settings *config.Config) (*local.Manifest, error) {
	if opts.Tag == "" && opts.VersionCode <= 0 {
		return nil, errTagRequired
	}

	encoding, err := versioncode.ParseEncoding(settings.TagEncoding)
	if err != nil {
		return nil, err
	}

	manifest := &local.Manifest{
		Package:     settings.PackageID,
		VersionCode: opts.VersionCode,
		VersionName: opts.VersionName,
	}

	if manifest.VersionCode <= 0 {
		manifest.VersionCode = versioncode.New(encoding).ParseTag(opts.Tag)
	}

	if manifest.VersionCode <= 0 {
		return nil, fmt.Errorf("%q: %w", opts.Tag, errZeroVersionCode)
	}

	if manifest.VersionName == "" {
		manifest.VersionName = opts.Tag
	}

	if manifest.VersionName == "" {
		manifest.VersionName = versioncode.New(encoding).Format(manifest.VersionCode)
	}

	return manifest, nil
}

// ensureDir checks that the payload is an existing folder.
func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat payload: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", path, errPayloadNotDir)
	}

	return nil
}

// writeArchive writes the archive through a temporary file so a failed run leaves nothing behind.
func writeArchive(output, manifestEntry string, manifest *local.Manifest, payloadDir string) error {
	dir := filepath.Dir(filepath.Clean(output))

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(output)+".*")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	writeErr := local.WriteArchive(tmp, manifestEntry, manifest, os.DirFS(payloadDir))
	closeErr := tmp.Close()

	if err = errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	if err = os.Chmod(tmpName, archiveFileMode); err != nil {
		return fmt.Errorf("chmod archive: %w", err)
	}

	if err = os.Rename(tmpName, output); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}

	return nil
}

// describe computes the size and checksum of a produced archive.
func describe(path string, manifest *local.Manifest) (*Result, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := ChecksumFunction.New()

	size, err := io.Copy(hasher, file)
	if err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return &Result{
		Path:     path,
		Manifest: *manifest,
		Size:     size,
		Checksum: base64.StdEncoding.EncodeToString(hasher.Sum(nil)),
	}, nil
}
