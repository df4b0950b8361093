package updater

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/scratch"
	"github.com/oshokin/kiosk-updater/internal/service/installer"
	"github.com/oshokin/kiosk-updater/internal/versioncode"
)

const (
	// defaultEnforceTimeout bounds policy enforcement after the run context is gone.
	defaultEnforceTimeout = 30 * time.Second

	// defaultInstallConfirmTimeout bounds the wait for install confirmation.
	defaultInstallConfirmTimeout = 2 * time.Minute
)

// StateProbe reports the installed state of a package.
type StateProbe interface {
	Probe(ctx context.Context, packageID string) update.InstalledState
}

// ReleaseResolver finds the latest release.
type ReleaseResolver interface {
	ResolveLatest(ctx context.Context) (*update.ReleaseDescriptor, error)
}

// ArtifactFetcher downloads an artifact into a local file.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, url, destination string) error
}

// PackageInstaller commits a local archive.
type PackageInstaller interface {
	Install(ctx context.Context, path string) (*installer.Completion, error)
}

// PolicyEnforcer locks the package down.
type PolicyEnforcer interface {
	LockInstalled(ctx context.Context, packageID string) error
	GrantRuntimePermissions(ctx context.Context, packageID string, permissions []string) int
}

// Components are the collaborators driven by the orchestrator.
type Components struct {
	Probe     StateProbe
	Resolver  ReleaseResolver
	Fetcher   ArtifactFetcher
	Installer PackageInstaller
	Enforcer  PolicyEnforcer
	// Scratch provides the install download file.
	Scratch *scratch.Dir
	// Cache is emptied when a run ends; nil when probe downloads are not reused.
	Cache *scratch.Cache
}

// Settings tune a run.
type Settings struct {
	// PackageID is the managed package.
	PackageID string
	// Permissions are granted after every run.
	Permissions []string
	// SkipPolicyOnAbort ends the run right after a failed release resolution.
	SkipPolicyOnAbort bool
	// InstallConfirmTimeout bounds the wait for install confirmation before policy is enforced.
	InstallConfirmTimeout time.Duration
	// EnforceTimeout bounds enforcement once the run context is cancelled.
	EnforceTimeout time.Duration
	// Codec formats version codes for logs.
	Codec versioncode.Codec
}

// Orchestrator sequences one update run:
// Start, ProbeInstalled, ResolveRelease, Decide, Skip or Fetch and Install,
// EnforcePolicy, Done.
type Orchestrator struct {
	components Components
	settings   Settings
}

// NewOrchestrator returns an orchestrator over the given components.
func NewOrchestrator(components *Components, settings *Settings) *Orchestrator {
	s := *settings
	if s.EnforceTimeout <= 0 {
		s.EnforceTimeout = defaultEnforceTimeout
	}

	if s.InstallConfirmTimeout <= 0 {
		s.InstallConfirmTimeout = defaultInstallConfirmTimeout
	}

	return &Orchestrator{
		components: *components,
		settings:   s,
	}
}

// Run performs one update run. Failures never escape: they are logged,
// recorded in the report and enforcement is still attempted.
func (o *Orchestrator) Run(ctx context.Context) *update.Report {
	report := &update.Report{
		RunID:     uuid.NewString(),
		PackageID: o.settings.PackageID,
		StartedAt: time.Now(),
	}

	ctx = logger.WithFields(ctx, "run", report.RunID, "package", report.PackageID)

	defer o.finish(ctx, report)

	report.Enter(update.StateStart)
	logger.Info(ctx, "Update run started")

	report.Enter(update.StateProbeInstalled)
	report.Installed = o.components.Probe.Probe(ctx, o.settings.PackageID)

	if o.interrupted(ctx, report) {
		o.enforce(ctx, report)

		return report
	}

	report.Enter(update.StateResolveRelease)

	release, err := o.components.Resolver.ResolveLatest(ctx)
	if err != nil {
		report.Fail(err)
		logger.ErrorKV(ctx, "Release resolution failed", "error", err)

		if !o.settings.SkipPolicyOnAbort {
			o.enforce(ctx, report)
		}

		return report
	}

	report.Release = release

	if o.interrupted(ctx, report) {
		o.enforce(ctx, report)

		return report
	}

	report.Enter(update.StateDecide)

	if o.decide(ctx, report) {
		o.install(ctx, report)
	} else {
		report.Enter(update.StateSkip)
	}

	o.enforce(ctx, report)

	return report
}

// decide applies the update rule and records the decision.
func (o *Orchestrator) decide(ctx context.Context, report *update.Report) bool {
	installed := report.Installed
	remote := report.Release.VersionCode

	fields := []any{
		"installed", installed.IsInstalled,
		"installed_code", installed.VersionCode,
		"remote_code", remote,
		"remote_version", o.settings.Codec.Format(remote),
	}

	if installed.IsInstalled && installed.IsKnown() {
		fields = append(fields, "ordering", versioncode.Compare(remote, installed.VersionCode).String())
	}

	if update.ShouldUpdate(installed, remote) {
		report.Decision = update.DecisionUpdate
		logger.InfoKV(ctx, "Update required", fields...)

		return true
	}

	report.Decision = update.DecisionSkip
	logger.InfoKV(ctx, "Installed build is current", fields...)

	return false
}

// install downloads the release into the install scratch file and commits it.
func (o *Orchestrator) install(ctx context.Context, report *update.Report) {
	report.Enter(update.StateFetch)

	var completion *installer.Completion

	err := o.components.Scratch.Use(scratch.PhaseInstall, func(path string) error {
		if err := o.components.Fetcher.Fetch(ctx, report.Release.DownloadURL, path); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		report.Enter(update.StateInstall)

		var err error

		completion, err = o.components.Installer.Install(ctx, path)

		return err
	})
	if err != nil {
		report.Fail(err)
		logger.ErrorKV(ctx, "Install failed", "error", err)

		return
	}

	report.SessionID = completion.SessionID()

	// Policy applies to the installed package, so the commit must land first.
	waitCtx, cancel := context.WithTimeout(ctx, o.settings.InstallConfirmTimeout)
	defer cancel()

	installed, err := completion.Wait(waitCtx)
	if err != nil {
		report.Fail(err)
		logger.ErrorKV(ctx, "Install was not confirmed", "session", report.SessionID, "error", err)

		return
	}

	report.InstalledVersion = installed

	if installed != nil {
		logger.InfoKV(ctx, "Install confirmed",
			"session", report.SessionID,
			"version_code", installed.VersionCode,
			"version_name", installed.VersionName)
	}
}

// enforce applies the policy lockdown. A cancelled run gets a fresh bounded context.
func (o *Orchestrator) enforce(ctx context.Context, report *update.Report) {
	report.Enter(update.StateEnforcePolicy)

	if ctx.Err() != nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), o.settings.EnforceTimeout)
		defer cancel()
	}

	if err := o.components.Enforcer.LockInstalled(ctx, o.settings.PackageID); err != nil {
		report.Fail(err)
		logger.ErrorKV(ctx, "Uninstall block failed", "error", err)
	}

	report.PermissionsGranted = o.components.Enforcer.GrantRuntimePermissions(ctx, o.settings.PackageID, o.settings.Permissions)
}

// interrupted records a cancelled run context.
func (o *Orchestrator) interrupted(ctx context.Context, report *update.Report) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}

	report.Fail(err)
	logger.WarnKV(ctx, "Update run interrupted", "error", err)

	return true
}

// finish ends the run in Done and releases per-run resources.
func (o *Orchestrator) finish(ctx context.Context, report *update.Report) {
	report.Enter(update.StateDone)
	report.FinishedAt = time.Now()

	if o.components.Cache != nil {
		if err := o.components.Cache.Reset(); err != nil {
			logger.WarnKV(ctx, "Failed to empty the download cache", "error", err)
		}
	}

	logger.InfoKV(ctx, "Update run finished",
		"decision", report.Decision,
		"states", len(report.States),
		"duration", report.Duration(),
		"succeeded", report.Succeeded())
}
