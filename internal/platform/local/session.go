package local

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/google/uuid"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/platform"

	// Ensure SHA512 is available for commit verification.
	_ "crypto/sha512"
)

// checksumFunction verifies staged bytes when they replace the installed archive.
const checksumFunction = crypto.SHA512

var (
	// errSessionClosed is returned when using a closed or committed session.
	errSessionClosed = errors.New("install session is closed")
	// errPackageMismatch is returned when the staged archive is for another package.
	errPackageMismatch = errors.New("staged archive belongs to another package")
	// errVersionDowngrade is returned when the staged archive is older than the installed one.
	errVersionDowngrade = errors.New("staged version is older than the installed one")
)

// session stages a package archive in the sessions folder.
type session struct {
	// device owns the session.
	device *Device
	// id is the session identifier.
	id string
	// packageID is the package the session installs.
	packageID string
	// path is the staged file.
	path string
	// file is the open staged file; nil once committed or closed.
	file *os.File
	// mu guards file.
	mu sync.Mutex
}

// CreateSession opens a staged install session for packageID.
func (d *Device) CreateSession(_ context.Context, packageID string) (platform.InstallSession, error) {
	if _, err := d.packageDir(packageID); err != nil {
		return nil, err
	}

	dir := filepath.Join(d.root, sessionsFolder)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create sessions folder: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(dir, id+d.extension)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	return &session{
		device:    d,
		id:        id,
		packageID: packageID,
		path:      path,
		file:      file,
	}, nil
}

// ID returns the session identifier.
func (s *session) ID() string {
	return s.id
}

// Write appends to the staged file.
func (s *session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, errSessionClosed
	}

	return s.file.Write(p)
}

// Sync flushes the staged file to disk.
func (s *session) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errSessionClosed
	}

	return s.file.Sync()
}

// Commit closes the staged file and installs it in the background.
// The result channel is buffered and receives exactly one value.
func (s *session) Commit(_ context.Context) (<-chan platform.InstallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil, errSessionClosed
	}

	if err := s.file.Close(); err != nil {
		return nil, fmt.Errorf("close staged file: %w", err)
	}

	s.file = nil

	results := make(chan platform.InstallResult, 1)

	go func() {
		defer close(results)

		installed, err := s.device.install(s.packageID, s.path)

		_ = os.Remove(s.path)

		results <- platform.InstallResult{
			SessionID: s.id,
			Package:   installed,
			Err:       err,
		}
	}()

	return results, nil
}

// Close abandons an uncommitted session. It is a no-op after Commit.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	return errors.Join(err, removeIfExists(s.path))
}

// install verifies the staged archive and atomically replaces the installed one.
// On failure the device is left as it was: a first install removes its folder,
// an upgrade restores the previous archive.
func (d *Device) install(packageID, stagedPath string) (*update.PackageVersion, error) {
	manifest, err := readManifest(stagedPath, d.manifestEntry)
	if err != nil {
		return nil, fmt.Errorf("verify staged archive: %w", err)
	}

	if manifest.Package != packageID {
		return nil, fmt.Errorf("%s != %s: %w", manifest.Package, packageID, errPackageMismatch)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	record, err := d.loadRecord(packageID)
	fresh := errors.Is(err, platform.ErrPackageNotFound)

	switch {
	case fresh:
		record = &PackageRecord{PackageID: packageID}
	case err != nil:
		return nil, err
	case record.VersionCode != nil && *record.VersionCode > manifest.VersionCode:
		return nil, fmt.Errorf("%d < %d: %w", manifest.VersionCode, *record.VersionCode, errVersionDowngrade)
	}

	dir, err := d.packageDir(packageID)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create package folder: %w", err)
	}

	versionCode := manifest.VersionCode
	next := *record
	next.VersionCode = &versionCode
	next.VersionName = manifest.VersionName
	next.InstalledAt = time.Now().UTC()

	if err = d.commit(dir, stagedPath, &next, fresh); err != nil {
		if fresh {
			err = errors.Join(err, os.RemoveAll(dir))
		}

		return nil, err
	}

	return &update.PackageVersion{
		PackageID:   packageID,
		VersionCode: manifest.VersionCode,
		VersionName: manifest.VersionName,
	}, nil
}

// commit stages the new record, swaps the archive, then moves the record into place.
// When the record cannot be moved the previous archive is restored.
func (d *Device) commit(dir, stagedPath string, record *PackageRecord, fresh bool) error {
	recordPath := filepath.Join(dir, recordFilename)

	pendingRecord, err := stageYAML(recordPath, record)
	if err != nil {
		return err
	}

	defer func() {
		_ = removeIfExists(pendingRecord)
	}()

	target := d.installedPath(dir)
	backup := backupPath(target)

	if err = d.replaceArchive(stagedPath, target, backup); err != nil {
		return err
	}

	if err = os.Rename(pendingRecord, recordPath); err != nil {
		err = fmt.Errorf("commit package record: %w", err)

		if !fresh {
			err = errors.Join(err, os.Rename(backup, target))
		}

		return err
	}

	// The install is committed; a leftover backup is replaced by the next swap.
	_ = removeIfExists(backup)

	return nil
}

// backupPath returns where the previous archive is kept during a swap.
func backupPath(target string) string {
	dir, base := filepath.Split(target)

	return filepath.Join(dir, "."+base+".old")
}

// replaceArchive swaps target for the staged file with a checksum-verified rename,
// keeping the previous archive at backup.
func (d *Device) replaceArchive(stagedPath, target, backup string) error {
	data, err := os.ReadFile(filepath.Clean(stagedPath))
	if err != nil {
		return fmt.Errorf("read staged archive: %w", err)
	}

	hasher := checksumFunction.New()
	_, _ = hasher.Write(data)

	// go-update renames the existing target aside, so it must exist.
	if _, err = os.Stat(target); errors.Is(err, os.ErrNotExist) {
		placeholder, createErr := os.Create(target)
		if createErr != nil {
			return fmt.Errorf("create install target: %w", createErr)
		}

		_ = placeholder.Close()
	}

	options := goupdate.Options{
		TargetPath:  target,
		TargetMode:  fileMode,
		Checksum:    hasher.Sum(nil),
		Hash:        checksumFunction,
		OldSavePath: backup,
	}

	if err = d.apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("apply staged archive: %w", err)
	}

	return nil
}

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
