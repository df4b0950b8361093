package local

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

var (
	// errManifestMissing is returned when an archive has no manifest entry.
	errManifestMissing = errors.New("manifest entry missing")
	// errManifestInvalid is returned when a manifest lacks required fields.
	errManifestInvalid = errors.New("manifest invalid")
)

// Manifest is the package description stored inside an archive.
type Manifest struct {
	// Package is the package identifier.
	Package string `yaml:"package"`
	// VersionCode is the monotonic build number.
	VersionCode int64 `yaml:"version_code"`
	// VersionName is the human-readable version.
	VersionName string `yaml:"version_name"`
}

// validate checks the manifest's required fields.
func (m *Manifest) validate() error {
	if m.Package == "" {
		return fmt.Errorf("package is empty: %w", errManifestInvalid)
	}

	if m.VersionCode <= 0 {
		return fmt.Errorf("version code %d: %w", m.VersionCode, errManifestInvalid)
	}

	return nil
}

// WriteArchive writes a package archive to w: every regular file of payload
// (which may be nil) followed by the manifest under manifestEntry.
func WriteArchive(w io.Writer, manifestEntry string, manifest *Manifest, payload fs.FS) error {
	if err := manifest.validate(); err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	if payload != nil {
		err := fs.WalkDir(payload, ".", func(name string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !entry.Type().IsRegular() || name == manifestEntry {
				return nil
			}

			return copyToArchive(zw, payload, name)
		})
		if err != nil {
			_ = zw.Close()

			return fmt.Errorf("add payload: %w", err)
		}
	}

	contents, err := yaml.Marshal(manifest)
	if err != nil {
		_ = zw.Close()

		return fmt.Errorf("encode manifest: %w", err)
	}

	entry, err := zw.Create(manifestEntry)
	if err != nil {
		_ = zw.Close()

		return fmt.Errorf("create manifest entry: %w", err)
	}

	if _, err = entry.Write(contents); err != nil {
		_ = zw.Close()

		return fmt.Errorf("write manifest entry: %w", err)
	}

	if err = zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	return nil
}

// copyToArchive adds one payload file to zw.
func copyToArchive(zw *zip.Writer, payload fs.FS, name string) error {
	src, err := payload.Open(name)
	if err != nil {
		return err
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := zw.Create(filepath.ToSlash(name))
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, src)

	return err
}

// ReadArchive returns the package version declared by the archive at path.
func (d *Device) ReadArchive(_ context.Context, path string) (*update.PackageVersion, error) {
	manifest, err := readManifest(path, d.manifestEntry)
	if err != nil {
		return nil, err
	}

	return &update.PackageVersion{
		PackageID:   manifest.Package,
		VersionCode: manifest.VersionCode,
		VersionName: manifest.VersionName,
	}, nil
}

// readManifest decodes and validates the manifest entry of the archive at path.
func readManifest(path, manifestEntry string) (*Manifest, error) {
	reader, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	entry, err := reader.Open(manifestEntry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", manifestEntry, errManifestMissing)
	}

	defer func() {
		_ = entry.Close()
	}()

	var manifest Manifest
	if err = yaml.NewDecoder(entry).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if err = manifest.validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}
