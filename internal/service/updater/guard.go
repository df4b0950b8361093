package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sync/singleflight"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
)

// MarkerFilename marks that an update run is in progress to avoid parallel runs.
const MarkerFilename = "kiosk-updater-marker.pid"

// markerPermissions is the mode of the marker file.
const markerPermissions = 0o600

// ErrAlreadyRunning is returned when another process holds the run marker.
var ErrAlreadyRunning = errors.New("the updater is already running")

// RunFunc performs one update run.
type RunFunc func(ctx context.Context) *update.Report

// Guard serializes update runs.
// Overlapping calls in one process join the run in flight and share its report.
// Across processes the marker file holds the owner's PID; a marker whose
// process is gone is stale and taken over.
type Guard struct {
	group      singleflight.Group
	markerPath string

	mu   sync.Mutex
	held bool

	// processExists is replaced in tests.
	processExists func(pid int) (bool, error)
}

// NewGuard returns a guard using a marker file inside dir.
func NewGuard(dir string) *Guard {
	return &Guard{
		markerPath:    filepath.Join(filepath.Clean(dir), MarkerFilename),
		processExists: processExists,
	}
}

// MarkerPath returns the marker file location.
func (g *Guard) MarkerPath() string {
	return g.markerPath
}

// Do runs fn under the guard. shared is true when the caller joined a run
// started by someone else.
func (g *Guard) Do(ctx context.Context, key string, fn RunFunc) (report *update.Report, shared bool, err error) {
	result, err, shared := g.group.Do(key, func() (any, error) {
		if acquireErr := g.acquire(ctx); acquireErr != nil {
			return nil, acquireErr
		}

		defer g.release(ctx)

		return fn(ctx), nil
	})
	if err != nil {
		return nil, shared, err
	}

	report, _ = result.(*update.Report)

	return report, shared, nil
}

// acquire creates the marker, taking over a stale one once.
func (g *Guard) acquire(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(filepath.Dir(g.markerPath), dirPermissions); err != nil {
		return fmt.Errorf("create marker folder: %w", err)
	}

	err := g.createMarker()
	if errors.Is(err, os.ErrExist) {
		if !g.isStale(ctx) {
			return ErrAlreadyRunning
		}

		logger.InfoKV(ctx, "Removing stale update marker", "path", g.markerPath)

		if err = os.Remove(g.markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale marker: %w", err)
		}

		err = g.createMarker()
	}

	if errors.Is(err, os.ErrExist) {
		return ErrAlreadyRunning
	}

	if err != nil {
		return err
	}

	g.held = true

	return nil
}

// createMarker writes the current PID into a new marker file.
func (g *Guard) createMarker() error {
	file, err := os.OpenFile(g.markerPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, markerPermissions)
	if err != nil {
		return err
	}

	_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))
	closeErr := file.Close()

	if err = errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(g.markerPath)

		return fmt.Errorf("write marker: %w", err)
	}

	return nil
}

// isStale reports whether the existing marker belongs to a process that is gone.
func (g *Guard) isStale(ctx context.Context) bool {
	contents, err := os.ReadFile(g.markerPath)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		logger.WarnKV(ctx, "Update marker is unreadable", "path", g.markerPath)

		return true
	}

	// Our own PID in a marker we do not hold is left over from an earlier boot.
	if pid == os.Getpid() {
		return true
	}

	exists, err := g.processExists(pid)
	if err != nil {
		logger.WarnKV(ctx, "Unable to inspect update marker owner", "pid", pid, "error", err)

		return false
	}

	return !exists
}

// release removes the marker.
func (g *Guard) release(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.held = false

	if err := os.Remove(g.markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Failed to remove update marker", "path", g.markerPath, "error", err)
	}
}

// processExists looks the PID up in the process table.
func processExists(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}
