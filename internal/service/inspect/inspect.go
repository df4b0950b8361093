package inspect

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/platform"
)

var (
	// errNoManifest is returned when the archive lacks the manifest entry.
	errNoManifest = errors.New("manifest entry not found")
	// errEmptyMetadata is returned when the reader yields no usable version.
	errEmptyMetadata = errors.New("archive reader returned no version")
)

// Inspector reads the embedded version of package archives.
type Inspector struct {
	// reader is the platform's package metadata reader.
	reader platform.ArchiveReader
	// manifestEntry must be present in every inspected archive.
	manifestEntry string
}

// New returns an inspector delegating to reader.
func New(reader platform.ArchiveReader, manifestEntry string) *Inspector {
	return &Inspector{
		reader:        reader,
		manifestEntry: manifestEntry,
	}
}

// Inspect returns the version code and name embedded in the archive at path.
func (i *Inspector) Inspect(ctx context.Context, path string) (version *update.PackageVersion, err error) {
	defer func() {
		if r := recover(); r != nil {
			version = nil
			err = update.Wrap(update.ErrUnreadable, fmt.Errorf("archive reader panicked: %v", r))
		}
	}()

	if err = i.ensureManifest(path); err != nil {
		return nil, update.Wrap(update.ErrUnreadable, err)
	}

	version, err = i.reader.ReadArchive(ctx, path)
	if err != nil {
		return nil, update.Wrap(update.ErrUnreadable, err)
	}

	if version == nil || version.VersionCode <= 0 {
		return nil, update.Wrap(update.ErrUnreadable, errEmptyMetadata)
	}

	return version, nil
}

// ensureManifest checks that the archive opens and lists the manifest entry.
func (i *Inspector) ensureManifest(path string) error {
	archive, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = archive.Close()
	}()

	for _, file := range archive.File {
		if file.Name == i.manifestEntry {
			return nil
		}
	}

	return fmt.Errorf("%s: %w", i.manifestEntry, errNoManifest)
}
