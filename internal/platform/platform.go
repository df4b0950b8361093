package platform

import (
	"context"
	"errors"
	"io"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

var (
	// ErrPackageNotFound is returned when a package is not installed.
	ErrPackageNotFound = errors.New("package not installed")
	// ErrVersionUnavailable is returned when a package is installed but its version cannot be read.
	ErrVersionUnavailable = errors.New("installed version unavailable")
	// ErrNotDeviceOwner is returned by privileged calls made without device-owner capability.
	ErrNotDeviceOwner = errors.New("device owner capability required")
	// ErrPermissionUnsupported is returned for permissions the device does not know.
	ErrPermissionUnsupported = errors.New("permission unsupported on this device")
	// ErrUninstallBlocked is returned when removing a package protected from uninstallation.
	ErrUninstallBlocked = errors.New("package is protected from uninstallation")
)

// PackageRegistry answers queries about installed packages.
type PackageRegistry interface {
	// InstalledPackage returns the installed version of packageID.
	// It fails with ErrPackageNotFound or ErrVersionUnavailable.
	InstalledPackage(ctx context.Context, packageID string) (*update.PackageVersion, error)
}

// ArchiveReader reads the metadata of an uninstalled package archive.
type ArchiveReader interface {
	// ReadArchive returns what the archive at path declares about itself.
	ReadArchive(ctx context.Context, path string) (*update.PackageVersion, error)
}

// InstallResult is the asynchronous confirmation of a committed session.
type InstallResult struct {
	// SessionID identifies the committed session.
	SessionID string
	// Package is the version that became active; nil on failure.
	Package *update.PackageVersion
	// Err is set when the platform rejected the install.
	Err error
}

// InstallSession is a staged, transactional package write.
// Nothing written becomes visible until Commit succeeds.
type InstallSession interface {
	io.Writer

	// ID returns the session identifier.
	ID() string
	// Sync flushes written bytes to stable storage.
	Sync() error
	// Commit submits the staged package. The returned channel delivers exactly one result.
	Commit(ctx context.Context) (<-chan InstallResult, error)
	// Close abandons an uncommitted session and releases its resources.
	Close() error
}

// SessionInstaller opens install sessions.
type SessionInstaller interface {
	// CreateSession opens a session for installing packageID.
	CreateSession(ctx context.Context, packageID string) (InstallSession, error)
}

// DevicePolicy exposes the privileged device-policy primitives.
type DevicePolicy interface {
	// IsDeviceOwner reports whether the caller holds device-owner capability.
	IsDeviceOwner(ctx context.Context) bool
	// SetUninstallBlocked protects or unprotects packageID from uninstallation.
	SetUninstallBlocked(ctx context.Context, packageID string, blocked bool) error
	// GrantPermission sets the grant state of permission for packageID to granted.
	GrantPermission(ctx context.Context, packageID, permission string) error
}
