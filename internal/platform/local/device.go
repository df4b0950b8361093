package local

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/kiosk-updater/internal/platform"
)

const (
	// deviceFilename holds the device capabilities.
	deviceFilename = "device.yaml"
	// recordFilename holds a package record inside its folder.
	recordFilename = "package.yaml"
	// packagesFolder holds installed packages.
	packagesFolder = "packages"
	// sessionsFolder holds staged sessions.
	sessionsFolder = "sessions"
	// installedBaseName is the installed archive name without extension.
	installedBaseName = "base"

	// dirMode is used for every folder the device creates.
	dirMode os.FileMode = 0o755
	// fileMode is used for records and installed archives.
	fileMode os.FileMode = 0o644
)

var (
	// errInvalidPackageID is returned for ids that cannot name a folder.
	errInvalidPackageID = errors.New("invalid package id")
	// compile-time checks.
	_ platform.PackageRegistry  = (*Device)(nil)
	_ platform.ArchiveReader    = (*Device)(nil)
	_ platform.SessionInstaller = (*Device)(nil)
	_ platform.DevicePolicy     = (*Device)(nil)
)

// DeviceState describes the device's capabilities.
type DeviceState struct {
	// DeviceOwner grants the privileged policy calls.
	DeviceOwner bool `yaml:"device_owner"`
	// SupportedPermissions limits grantable permissions; empty means all are supported.
	SupportedPermissions []string `yaml:"supported_permissions,omitempty"`
}

// PackageRecord is the registry entry of an installed package.
type PackageRecord struct {
	// PackageID is the package identifier.
	PackageID string `yaml:"package"`
	// VersionCode is nil when the version cannot be read.
	VersionCode *int64 `yaml:"version_code"`
	// VersionName is the installed version name.
	VersionName string `yaml:"version_name"`
	// InstalledAt is the time of the last committed install.
	InstalledAt time.Time `yaml:"installed_at"`
	// UninstallBlocked protects the package from removal.
	UninstallBlocked bool `yaml:"uninstall_blocked"`
	// GrantedPermissions are sorted permission names.
	GrantedPermissions []string `yaml:"granted_permissions,omitempty"`
}

// Device is a managed device rooted at a folder.
type Device struct {
	// root is the device folder.
	root string
	// extension is the package archive suffix.
	extension string
	// manifestEntry is the manifest entry name inside archives.
	manifestEntry string
	// mu serializes record updates and installs.
	mu sync.Mutex
	// apply swaps the installed archive; replaced in tests.
	apply func(src io.Reader, opts goupdate.Options) error
}

// New returns a device rooted at root.
func New(root, extension, manifestEntry string) *Device {
	return &Device{
		root:          filepath.Clean(root),
		extension:     extension,
		manifestEntry: manifestEntry,
		apply:         goupdate.Apply,
	}
}

// Root returns the device folder.
func (d *Device) Root() string {
	return d.root
}

// Provision writes the device capabilities, creating the device folder if needed.
func (d *Device) Provision(state *DeviceState) error {
	if err := os.MkdirAll(d.root, dirMode); err != nil {
		return fmt.Errorf("create device folder: %w", err)
	}

	return writeYAML(filepath.Join(d.root, deviceFilename), state)
}

// State returns the device capabilities. A missing device file yields an unprivileged device.
func (d *Device) State() (*DeviceState, error) {
	var state DeviceState

	contents, err := os.ReadFile(filepath.Join(d.root, deviceFilename))
	if errors.Is(err, os.ErrNotExist) {
		return &state, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read device state: %w", err)
	}

	if err = yaml.Unmarshal(contents, &state); err != nil {
		return nil, fmt.Errorf("decode device state: %w", err)
	}

	return &state, nil
}

// supportsPermission reports whether permission can be granted on this device.
func (s *DeviceState) supportsPermission(permission string) bool {
	return len(s.SupportedPermissions) == 0 || slices.Contains(s.SupportedPermissions, permission)
}

// packageDir returns the folder of an installed package.
func (d *Device) packageDir(packageID string) (string, error) {
	if packageID == "" ||
		packageID == "." ||
		strings.Contains(packageID, "..") ||
		strings.ContainsAny(packageID, `/\`) {
		return "", fmt.Errorf("%q: %w", packageID, errInvalidPackageID)
	}

	return filepath.Join(d.root, packagesFolder, packageID), nil
}

// installedPath returns the path of the installed archive.
func (d *Device) installedPath(dir string) string {
	return filepath.Join(dir, installedBaseName+d.extension)
}

// loadRecord reads a package record. Callers hold d.mu.
func (d *Device) loadRecord(packageID string) (*PackageRecord, error) {
	dir, err := d.packageDir(packageID)
	if err != nil {
		return nil, err
	}

	if _, err = os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, platform.ErrPackageNotFound
	} else if err != nil {
		return nil, fmt.Errorf("stat package folder: %w", err)
	}

	record := &PackageRecord{PackageID: packageID}

	contents, err := os.ReadFile(filepath.Join(dir, recordFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record, nil
		}

		return nil, fmt.Errorf("read package record: %w", err)
	}

	if err = yaml.Unmarshal(contents, record); err != nil {
		// A damaged record still means the package is present.
		return &PackageRecord{PackageID: packageID}, nil //nolint:nilerr // Version stays unknown.
	}

	return record, nil
}

// saveRecord writes a package record atomically. Callers hold d.mu.
func (d *Device) saveRecord(record *PackageRecord) error {
	dir, err := d.packageDir(record.PackageID)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create package folder: %w", err)
	}

	return writeYAML(filepath.Join(dir, recordFilename), record)
}

// writeYAML marshals v to path through a temporary file and a rename.
func writeYAML(path string, v any) error {
	tmpName, err := stageYAML(path, v)
	if err != nil {
		return err
	}

	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

// stageYAML writes v to a synced temporary file next to path and returns its name.
// The caller renames it into place or removes it.
func stageYAML(path string, v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}

	if err = errors.Join(err, tmp.Close()); err == nil {
		err = os.Chmod(tmpName, fileMode)
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	return tmpName, nil
}
