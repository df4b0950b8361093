package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/platform"
)

// errNoResult is returned when the platform closes the result channel without a result.
var errNoResult = errors.New("install session finished without a result")

// Installer commits package archives through install sessions.
type Installer struct {
	sessions  platform.SessionInstaller
	packageID string
}

// New returns an installer for packageID.
func New(sessions platform.SessionInstaller, packageID string) *Installer {
	return &Installer{
		sessions:  sessions,
		packageID: packageID,
	}
}

// Install streams the archive at path into a new session and commits it.
// The session is closed on every exit path.
func (i *Installer) Install(ctx context.Context, path string) (*Completion, error) {
	source, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, update.Wrap(update.ErrInstallFailed, fmt.Errorf("open archive: %w", err))
	}

	defer func() {
		_ = source.Close()
	}()

	session, err := i.sessions.CreateSession(ctx, i.packageID)
	if err != nil {
		return nil, update.Wrap(update.ErrInstallFailed, fmt.Errorf("create session: %w", err))
	}

	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close install session", "session", session.ID(), "error", closeErr)
		}
	}()

	ctx = logger.WithKV(ctx, "session", session.ID())

	written, err := io.Copy(session, source)
	if err != nil {
		return nil, update.Wrap(update.ErrInstallFailed, fmt.Errorf("write session: %w", err))
	}

	if err = session.Sync(); err != nil {
		return nil, update.Wrap(update.ErrInstallFailed, fmt.Errorf("sync session: %w", err))
	}

	logger.InfoKV(ctx, "Install session staged", "size", humanize.Bytes(uint64(written))) //nolint:gosec // io.Copy never reports a negative count.

	results, err := session.Commit(ctx)
	if err != nil {
		return nil, update.Wrap(update.ErrInstallFailed, fmt.Errorf("commit session: %w", err))
	}

	logger.Info(ctx, "Install session committed")

	return NewCompletion(session.ID(), results), nil
}

// Completion is the pending platform confirmation of a committed session.
type Completion struct {
	sessionID string
	results   <-chan platform.InstallResult
}

// NewCompletion wraps the result channel of a committed session.
func NewCompletion(sessionID string, results <-chan platform.InstallResult) *Completion {
	return &Completion{
		sessionID: sessionID,
		results:   results,
	}
}

// SessionID returns the committed session identifier.
func (c *Completion) SessionID() string {
	return c.sessionID
}

// Wait blocks until the platform confirms the install or ctx is done.
// A rejected install is reported as update.ErrInstallFailed.
func (c *Completion) Wait(ctx context.Context) (*update.PackageVersion, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for session %s: %w", c.sessionID, ctx.Err())
	case result, ok := <-c.results:
		if !ok {
			return nil, update.Wrap(update.ErrInstallFailed, errNoResult)
		}

		if result.Err != nil {
			return nil, update.Wrap(update.ErrInstallFailed, result.Err)
		}

		return result.Package, nil
	}
}
