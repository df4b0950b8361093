package local

import (
	"context"
	"fmt"
	"slices"

	"github.com/oshokin/kiosk-updater/internal/platform"
)

// IsDeviceOwner reports whether the device grants privileged policy calls.
func (d *Device) IsDeviceOwner(_ context.Context) bool {
	state, err := d.State()
	if err != nil {
		return false
	}

	return state.DeviceOwner
}

// SetUninstallBlocked protects or unprotects packageID from uninstallation.
func (d *Device) SetUninstallBlocked(ctx context.Context, packageID string, blocked bool) error {
	if !d.IsDeviceOwner(ctx) {
		return platform.ErrNotDeviceOwner
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	record, err := d.loadRecord(packageID)
	if err != nil {
		return err
	}

	if record.UninstallBlocked == blocked {
		return nil
	}

	record.UninstallBlocked = blocked

	return d.saveRecord(record)
}

// GrantPermission records permission as granted to packageID.
func (d *Device) GrantPermission(_ context.Context, packageID, permission string) error {
	state, err := d.State()
	if err != nil {
		return err
	}

	if !state.DeviceOwner {
		return platform.ErrNotDeviceOwner
	}

	if !state.supportsPermission(permission) {
		return fmt.Errorf("%s: %w", permission, platform.ErrPermissionUnsupported)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	record, err := d.loadRecord(packageID)
	if err != nil {
		return err
	}

	if slices.Contains(record.GrantedPermissions, permission) {
		return nil
	}

	record.GrantedPermissions = append(record.GrantedPermissions, permission)
	slices.Sort(record.GrantedPermissions)

	return d.saveRecord(record)
}
