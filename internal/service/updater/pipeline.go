package updater

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/platform/local"
	"github.com/oshokin/kiosk-updater/internal/scratch"
	"github.com/oshokin/kiosk-updater/internal/service/common"
	"github.com/oshokin/kiosk-updater/internal/service/fetch"
	"github.com/oshokin/kiosk-updater/internal/service/inspect"
	"github.com/oshokin/kiosk-updater/internal/service/installer"
	"github.com/oshokin/kiosk-updater/internal/service/policy"
	"github.com/oshokin/kiosk-updater/internal/service/probe"
	"github.com/oshokin/kiosk-updater/internal/service/release"
	"github.com/oshokin/kiosk-updater/internal/version"
	"github.com/oshokin/kiosk-updater/internal/versioncode"
)

const (
	// dirPermissions is the mode of folders created by the updater.
	dirPermissions = 0o750

	// cacheFolder holds reusable downloads inside the scratch folder.
	cacheFolder = "cache"
)

// Pipeline is a fully wired update pipeline over the local device.
type Pipeline struct {
	// Orchestrator runs the update state machine.
	Orchestrator *Orchestrator
	// Device is the managed device the pipeline works on.
	Device *local.Device
	// Scratch is the transient download folder.
	Scratch *scratch.Dir
	// Guard serializes runs of this pipeline.
	Guard *Guard

	// packageID keys the guard.
	packageID string
	// actor is recorded in every report.
	actor string
	// indexClient serves release index queries.
	indexClient *http.Client
	// fetcher owns the download client.
	fetcher *fetch.Fetcher
}

// NewPipeline wires every component from validated settings.
func NewPipeline(settings *config.Config) (*Pipeline, error) {
	encoding, err := versioncode.ParseEncoding(settings.TagEncoding)
	if err != nil {
		return nil, err
	}

	codec := versioncode.New(encoding)
	device := local.New(settings.DeviceRoot, settings.ArchiveExtension, settings.ManifestEntry)
	scratchDir := scratch.NewDir(settings.ScratchDir, settings.ArchiveExtension)

	var cache *scratch.Cache
	if settings.ReuseProbeDownload {
		cache = scratch.NewCache(filepath.Join(settings.ScratchDir, cacheFolder))
	}

	indexClient := &http.Client{Timeout: settings.RequestTimeout}

	fetcher := fetch.New(
		&http.Client{Timeout: settings.DownloadTimeout},
		fetch.WithUserAgent(version.UserAgent()),
		fetch.WithCache(cache),
	)

	githubClient, err := release.NewClient(indexClient, settings.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create release index client: %w", err)
	}

	githubClient.UserAgent = version.UserAgent()

	resolver := release.New(githubClient, &release.Options{
		Owner:          settings.ReleaseOwner,
		Repo:           settings.ReleaseRepo,
		Extension:      settings.ArchiveExtension,
		RequestTimeout: settings.RequestTimeout,
		Scratch:        scratchDir,
		Fetcher:        fetcher,
		Inspector:      inspect.New(device, settings.ManifestEntry),
		Codec:          codec,
	})

	orchestrator := NewOrchestrator(
		&Components{
			Probe:     probe.New(device),
			Resolver:  resolver,
			Fetcher:   fetcher,
			Installer: installer.New(device, settings.PackageID),
			Enforcer:  policy.New(device),
			Scratch:   scratchDir,
			Cache:     cache,
		},
		&Settings{
			PackageID:             settings.PackageID,
			Permissions:           settings.Permissions,
			SkipPolicyOnAbort:     settings.SkipPolicyOnAbort,
			InstallConfirmTimeout: settings.InstallConfirmTimeout,
			EnforceTimeout:        settings.RequestTimeout,
			Codec:                 codec,
		},
	)

	var actorName string
	if actor, actorErr := common.DetectActor(); actorErr == nil {
		actorName = actor.String()
	}

	return &Pipeline{
		Orchestrator: orchestrator,
		Device:       device,
		Scratch:      scratchDir,
		Guard:        NewGuard(settings.ScratchDir),
		packageID:    settings.PackageID,
		actor:        actorName,
		indexClient:  indexClient,
		fetcher:      fetcher,
	}, nil
}

// RunOnce performs one guarded run. A caller overlapping a run in flight
// receives that run's report.
func (p *Pipeline) RunOnce(ctx context.Context, trigger Trigger) (*update.Report, error) {
	report, shared, err := p.Guard.Do(ctx, p.packageID, func(ctx context.Context) *update.Report {
		report := p.Orchestrator.Run(logger.WithKV(ctx, "trigger", trigger))
		report.Trigger = string(trigger)
		report.Actor = p.actor

		return report
	})
	if err != nil {
		return nil, err
	}

	if shared {
		logger.InfoKV(ctx, "Joined an update run already in progress", "trigger", trigger)
	}

	return report, nil
}

// Close releases the pipeline's network resources.
func (p *Pipeline) Close() {
	p.fetcher.Close()
	p.indexClient.CloseIdleConnections()
}
