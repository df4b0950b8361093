// Package policy applies device-policy lockdown to the kiosk package.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/platform"
)

// Enforcer drives the device-policy primitives.
type Enforcer struct {
	policy platform.DevicePolicy
}

// New returns an enforcer backed by policy.
func New(policy platform.DevicePolicy) *Enforcer {
	return &Enforcer{policy: policy}
}

// LockInstalled protects packageID from uninstallation.
// Without device-owner capability it only logs.
func (e *Enforcer) LockInstalled(ctx context.Context, packageID string) error {
	if !e.policy.IsDeviceOwner(ctx) {
		logger.WarnKV(ctx, "Not a device owner, uninstall block skipped", "package", packageID)

		return nil
	}

	if err := e.policy.SetUninstallBlocked(ctx, packageID, true); err != nil {
		return update.Wrap(update.ErrPolicyFailed, fmt.Errorf("block uninstall of %s: %w", packageID, err))
	}

	logger.InfoKV(ctx, "Package protected from uninstallation", "package", packageID)

	return nil
}

// GrantRuntimePermissions grants each permission to packageID.
// Unsupported permissions are skipped; other failures are logged and the loop goes on.
// It returns the number of permissions granted.
func (e *Enforcer) GrantRuntimePermissions(ctx context.Context, packageID string, permissions []string) int {
	if len(permissions) == 0 {
		return 0
	}

	if !e.policy.IsDeviceOwner(ctx) {
		logger.WarnKV(ctx, "Not a device owner, permission grants skipped", "package", packageID)

		return 0
	}

	granted := 0

	for _, permission := range permissions {
		err := e.policy.GrantPermission(ctx, packageID, permission)

		switch {
		case err == nil:
			granted++

			logger.DebugKV(ctx, "Permission granted", "permission", permission)
		case errors.Is(err, platform.ErrPermissionUnsupported):
			logger.DebugKV(ctx, "Permission unsupported on this device", "permission", permission)
		default:
			logger.ErrorKV(ctx, "Failed to grant permission", "permission", permission, "error", err)
		}
	}

	logger.InfoKV(ctx, "Runtime permissions granted", "package", packageID, "granted", granted, "requested", len(permissions))

	return granted
}
