package updater

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/repository/report"
)

// Trigger names what started a run.
type Trigger string

const (
	// TriggerStart is an explicit invocation.
	TriggerStart Trigger = "start"
	// TriggerBoot is the device-boot hook; the run is bounded by boot_timeout.
	TriggerBoot Trigger = "boot"
	// TriggerPeriodic is the agent's timer.
	TriggerPeriodic Trigger = "periodic"
)

// errUnknownTrigger is returned for trigger names other than start and boot.
var errUnknownTrigger = errors.New("unknown trigger")

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Trigger is start or boot.
	Trigger string
	// ReportFile overrides the report location from settings.
	ReportFile string
}

// ParseTrigger validates a command-line trigger name.
func ParseTrigger(s string) (Trigger, error) {
	switch Trigger(strings.ToLower(strings.TrimSpace(s))) {
	case "", TriggerStart:
		return TriggerStart, nil
	case TriggerBoot:
		return TriggerBoot, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownTrigger, s)
	}
}

// Run executes one update run and is the public entry point for the CLI.
// A failed run is logged and reported, not returned: only setup problems
// and a concurrent run are errors.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "kiosk-updater")

	trigger, err := ParseTrigger(opts.Trigger)
	if err != nil {
		return err
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.SetLevelFromString(settings.LogLevel); err != nil {
		return err
	}

	reportFile := settings.ReportFile
	if opts.ReportFile != "" {
		reportFile = opts.ReportFile
	}

	pipeline, err := NewPipeline(settings)
	if err != nil {
		return err
	}

	defer pipeline.Close()

	runReport, err := runWithTrigger(ctx, pipeline, trigger, settings)
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Warn(ctx, "Another update run holds the marker, exiting")
		}

		return err
	}

	repo := report.NewFileRepository(reportFile)
	if err = repo.Save(ctx, runReport); err != nil {
		logger.WarnKV(ctx, "Failed to save run report", "path", repo.Path(), "error", err)
	}

	if runReport.Succeeded() {
		logger.Info(ctx, "Updater completed")
	} else {
		logger.ErrorKV(ctx, "Updater completed with errors", "error", runReport.Err)
	}

	return nil
}

// runWithTrigger runs inline for start and as a bounded task for boot.
func runWithTrigger(
	ctx context.Context,
	pipeline *Pipeline,
	trigger Trigger,
	settings *config.Config,
) (*update.Report, error) {
	if trigger != TriggerBoot {
		return pipeline.RunOnce(ctx, trigger)
	}

	task := Start(ctx, settings.BootTimeout, func(ctx context.Context) (*update.Report, error) {
		return pipeline.RunOnce(ctx, trigger)
	})

	logger.InfoKV(ctx, "Boot update started", "timeout", settings.BootTimeout)

	// The task ends on its own deadline or with ctx.
	return task.Wait(context.WithoutCancel(ctx))
}
