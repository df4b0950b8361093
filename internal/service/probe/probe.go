// Package probe reports whether the kiosk package is installed and at which version code.
package probe

import (
	"context"
	"errors"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/platform"
)

// Prober queries the package registry.
type Prober struct {
	registry platform.PackageRegistry
}

// New returns a prober backed by registry.
func New(registry platform.PackageRegistry) *Prober {
	return &Prober{registry: registry}
}

// Probe never fails: every registry problem collapses into an unknown version,
// which always makes the package eligible for an update.
func (p *Prober) Probe(ctx context.Context, packageID string) update.InstalledState {
	installed, err := p.registry.InstalledPackage(ctx, packageID)

	switch {
	case err == nil && installed != nil:
		return update.InstalledState{
			IsInstalled: true,
			VersionCode: installed.VersionCode,
		}
	case errors.Is(err, platform.ErrPackageNotFound):
		logger.InfoKV(ctx, "Package is not installed", "package", packageID)

		return update.NotInstalled()
	case errors.Is(err, platform.ErrVersionUnavailable):
		logger.ErrorKV(ctx, "Installed version is unavailable", "package", packageID, "error", err)

		return update.InstalledState{
			IsInstalled: true,
			VersionCode: update.UnknownVersionCode,
		}
	default:
		logger.ErrorKV(ctx, "Failed to query installed package", "package", packageID, "error", err)

		return update.NotInstalled()
	}
}
