package updater

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

func TestGuard_RemovesMarkerAfterRun(t *testing.T) {
	t.Parallel()

	guard := NewGuard(t.TempDir())

	report, shared, err := guard.Do(context.Background(), "com.example.kiosk", func(context.Context) *update.Report {
		contents, readErr := os.ReadFile(guard.MarkerPath())
		require.NoError(t, readErr)
		require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

		return &update.Report{RunID: "run-1"}
	})
	require.NoError(t, err)
	require.False(t, shared)
	require.Equal(t, "run-1", report.RunID)
	require.NoFileExists(t, guard.MarkerPath())
}

func TestGuard_OverlappingCallersShareRun(t *testing.T) {
	t.Parallel()

	guard := NewGuard(t.TempDir())

	var (
		runs    atomic.Int32
		started = make(chan struct{})
		release = make(chan struct{})
		wg      sync.WaitGroup
	)

	run := func(context.Context) *update.Report {
		if runs.Add(1) == 1 {
			close(started)
		}

		<-release

		return &update.Report{RunID: "shared"}
	}

	reports := make([]*update.Report, 3)

	wg.Add(1)

	go func() {
		defer wg.Done()

		reports[0], _, _ = guard.Do(context.Background(), "com.example.kiosk", run)
	}()

	<-started

	for i := 1; i < len(reports); i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			reports[i], _, _ = guard.Do(context.Background(), "com.example.kiosk", run)
		}()
	}

	// Give the joiners time to attach to the run in flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), runs.Load())

	for _, report := range reports {
		require.NotNil(t, report)
		require.Equal(t, "shared", report.RunID)
	}
}

func TestGuard_LiveMarkerBlocksRun(t *testing.T) {
	t.Parallel()

	guard := NewGuard(t.TempDir())
	guard.processExists = func(int) (bool, error) { return true, nil }

	require.NoError(t, os.WriteFile(guard.MarkerPath(), []byte("999999"), 0o600))

	called := false
	_, _, err := guard.Do(context.Background(), "com.example.kiosk", func(context.Context) *update.Report {
		called = true

		return &update.Report{}
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.False(t, called)
	require.FileExists(t, guard.MarkerPath())
}

func TestGuard_TakesOverStaleMarker(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{"999999", "garbage", strconv.Itoa(os.Getpid())} {
		guard := NewGuard(t.TempDir())
		guard.processExists = func(int) (bool, error) { return false, nil }

		require.NoError(t, os.WriteFile(guard.MarkerPath(), []byte(contents), 0o600))

		report, _, err := guard.Do(context.Background(), "com.example.kiosk", func(context.Context) *update.Report {
			return &update.Report{RunID: "after-stale"}
		})
		require.NoError(t, err, contents)
		require.Equal(t, "after-stale", report.RunID)
		require.NoFileExists(t, guard.MarkerPath())
	}
}

func TestProcessExists_CurrentProcess(t *testing.T) {
	t.Parallel()

	exists, err := processExists(os.Getpid())
	require.NoError(t, err)
	require.True(t, exists)
}
