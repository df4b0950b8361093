package local

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/platform"
)

// InstalledPackage returns the installed version of packageID.
func (d *Device) InstalledPackage(_ context.Context, packageID string) (*update.PackageVersion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, err := d.loadRecord(packageID)
	if err != nil {
		return nil, err
	}

	if record.VersionCode == nil {
		return nil, fmt.Errorf("%s: %w", packageID, platform.ErrVersionUnavailable)
	}

	return &update.PackageVersion{
		PackageID:   record.PackageID,
		VersionCode: *record.VersionCode,
		VersionName: record.VersionName,
	}, nil
}

// Record returns a copy of the registry entry of packageID.
func (d *Device) Record(_ context.Context, packageID string) (*PackageRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.loadRecord(packageID)
}

// Uninstall removes packageID unless it is protected from uninstallation.
func (d *Device) Uninstall(_ context.Context, packageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, err := d.loadRecord(packageID)
	if err != nil {
		return err
	}

	if record.UninstallBlocked {
		return fmt.Errorf("%s: %w", packageID, platform.ErrUninstallBlocked)
	}

	dir, err := d.packageDir(packageID)
	if err != nil {
		return err
	}

	if err = os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove package folder: %w", err)
	}

	return nil
}
