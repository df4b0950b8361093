package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/repository/report"
	"github.com/oshokin/kiosk-updater/internal/service/updater"
)

// runPipeline performs one guarded run against the environment.
func runPipeline(t *testing.T, env *environment) *update.Report {
	t.Helper()

	settings, err := config.Load(env.cfgPath)
	require.NoError(t, err)

	pipeline, err := updater.NewPipeline(settings)
	require.NoError(t, err)
	t.Cleanup(pipeline.Close)

	runReport, err := pipeline.RunOnce(context.Background(), updater.TriggerStart)
	require.NoError(t, err)

	return runReport
}

// TestUpdater_Run_InstallsNewerRelease drives the CLI entry point from an older install to the published release.
func TestUpdater_Run_InstallsNewerRelease(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)
	env.seedInstalled(t, 5)
	env.publish(t, "v1.0.7", 7)

	require.NoError(t, updater.Run(context.Background(), &updater.Options{ConfigPath: env.cfgPath}))

	record := env.record(t)
	require.NotNil(t, record.VersionCode)
	require.Equal(t, int64(7), *record.VersionCode)
	require.Equal(t, "v1.0.7", record.VersionName)
	require.True(t, record.UninstallBlocked)
	require.Equal(t, []string{"camera", "location"}, record.GrantedPermissions)

	saved, err := report.NewFileRepository(env.cfg.ReportFile).Load(context.Background())
	require.NoError(t, err)
	require.True(t, saved.Succeeded())
	require.Equal(t, string(updater.TriggerStart), saved.Trigger)
	require.Equal(t, update.DecisionUpdate, saved.Decision)
	require.Equal(t, []update.State{
		update.StateStart,
		update.StateProbeInstalled,
		update.StateResolveRelease,
		update.StateDecide,
		update.StateFetch,
		update.StateInstall,
		update.StateEnforcePolicy,
		update.StateDone,
	}, saved.States)
	require.Equal(t, 2, saved.PermissionsGranted)
	require.NotNil(t, saved.InstalledVersion)
	require.Equal(t, int64(7), saved.InstalledVersion.VersionCode)

	require.Empty(t, env.scratchArchives(t))
}

// TestUpdater_Run_FreshDevice installs onto a device that has no kiosk package yet.
func TestUpdater_Run_FreshDevice(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)
	env.publish(t, "v1.0.3", 3)

	runReport := runPipeline(t, env)
	require.NoError(t, runReport.Err)
	require.False(t, runReport.Installed.IsInstalled)
	require.Equal(t, update.DecisionUpdate, runReport.Decision)
	require.NotEmpty(t, runReport.SessionID)

	record := env.record(t)
	require.Equal(t, int64(3), *record.VersionCode)
	require.True(t, record.UninstallBlocked)
}

// TestUpdater_Run_FreshDeviceDefaultConfirmTimeout locks down a fresh install with the default settings.
func TestUpdater_Run_FreshDeviceDefaultConfirmTimeout(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)
	env.cfg.InstallConfirmTimeout = 0
	env.saveConfig(t)
	env.publish(t, "v1.0.3", 3)

	for range 5 {
		runReport := runPipeline(t, env)
		require.NoError(t, runReport.Err)

		record := env.record(t)
		require.Equal(t, int64(3), *record.VersionCode)
		require.True(t, record.UninstallBlocked)
		require.Equal(t, []string{"camera", "location"}, record.GrantedPermissions)

		// Start the next round from a fresh device again.
		require.NoError(t, env.device.SetUninstallBlocked(context.Background(), testPackageID, false))
		require.NoError(t, env.device.Uninstall(context.Background(), testPackageID))
	}
}

// TestUpdater_Run_SameVersionEnforcesPolicy skips the install but still protects the package.
func TestUpdater_Run_SameVersionEnforcesPolicy(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)
	env.seedInstalled(t, 7)
	env.publish(t, "v1.0.7", 7)

	require.False(t, env.record(t).UninstallBlocked)

	runReport := runPipeline(t, env)
	require.NoError(t, runReport.Err)
	require.Equal(t, update.DecisionSkip, runReport.Decision)
	require.True(t, runReport.Visited(update.StateSkip))
	require.False(t, runReport.Visited(update.StateFetch))
	require.False(t, runReport.Visited(update.StateInstall))
	require.True(t, runReport.Visited(update.StateEnforcePolicy))

	record := env.record(t)
	require.Equal(t, int64(7), *record.VersionCode)
	require.True(t, record.UninstallBlocked)
	require.Equal(t, []string{"camera", "location"}, record.GrantedPermissions)

	require.Empty(t, env.scratchArchives(t))
}

// TestUpdater_Run_OlderReleaseIsNotInstalled keeps a newer install in place.
func TestUpdater_Run_OlderReleaseIsNotInstalled(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)
	env.seedInstalled(t, 9)
	env.publish(t, "v1.0.7", 7)

	runReport := runPipeline(t, env)
	require.NoError(t, runReport.Err)
	require.Equal(t, update.DecisionSkip, runReport.Decision)
	require.Equal(t, int64(9), *env.record(t).VersionCode)
}

// TestUpdater_Run_ReleaseFailures covers both orderings after a failed release lookup.
func TestUpdater_Run_ReleaseFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		prepare           func(env *environment)
		skipPolicyOnAbort bool
		wantErr           error
		wantEnforced      bool
	}{
		{
			name:         "no installable asset, enforce anyway",
			prepare:      func(env *environment) { env.publishWithoutArchive("v2.0.0") },
			wantErr:      update.ErrNotFound,
			wantEnforced: true,
		},
		{
			name:              "no installable asset, skip policy",
			prepare:           func(env *environment) { env.publishWithoutArchive("v2.0.0") },
			skipPolicyOnAbort: true,
			wantErr:           update.ErrNotFound,
		},
		{
			name:         "index outage, enforce anyway",
			prepare:      func(env *environment) { env.failIndex(http.StatusBadGateway) },
			wantErr:      update.ErrUnavailable,
			wantEnforced: true,
		},
		{
			name:              "index outage, skip policy",
			prepare:           func(env *environment) { env.failIndex(http.StatusBadGateway) },
			skipPolicyOnAbort: true,
			wantErr:           update.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newEnvironment(t)
			env.cfg.SkipPolicyOnAbort = tt.skipPolicyOnAbort
			env.saveConfig(t)
			env.seedInstalled(t, 5)
			tt.prepare(env)

			runReport := runPipeline(t, env)
			require.ErrorIs(t, runReport.Err, tt.wantErr)
			require.Equal(t, update.DecisionNone, runReport.Decision)
			require.False(t, runReport.Visited(update.StateFetch))
			require.Equal(t, tt.wantEnforced, runReport.Visited(update.StateEnforcePolicy))
			require.True(t, runReport.Visited(update.StateDone))

			record := env.record(t)
			require.Equal(t, int64(5), *record.VersionCode)
			require.Equal(t, tt.wantEnforced, record.UninstallBlocked)

			require.Empty(t, env.scratchArchives(t))
		})
	}
}

// TestUpdater_Run_BootTrigger runs through the bounded boot task.
func TestUpdater_Run_BootTrigger(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)
	env.publish(t, "v1.0.2", 2)

	require.NoError(t, updater.Run(context.Background(), &updater.Options{
		ConfigPath: env.cfgPath,
		Trigger:    string(updater.TriggerBoot),
	}))

	saved, err := report.NewFileRepository(env.cfg.ReportFile).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(updater.TriggerBoot), saved.Trigger)
	require.Equal(t, int64(2), *env.record(t).VersionCode)
}
