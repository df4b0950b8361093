package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/kiosk-updater/internal/api/grpc/health"
	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/platform/local"
	repo "github.com/oshokin/kiosk-updater/internal/repository/report"
	"github.com/oshokin/kiosk-updater/internal/service/common"
	"github.com/oshokin/kiosk-updater/internal/service/probe"
	"github.com/oshokin/kiosk-updater/internal/versioncode"
)

// Options controls the status probe.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// AgentAddress overrides the agent address from settings.
	AgentAddress string
	// Watch keeps polling the agent health until the context ends.
	Watch bool
	// PollInterval defines the interval between health checks in watch mode.
	PollInterval time.Duration
	// Out receives the human-readable status.
	Out io.Writer
}

// DefaultPollInterval defines the polling interval of watch mode.
const DefaultPollInterval = 5 * time.Second

// ErrNotServing is returned when the agent reports a failed last run.
var ErrNotServing = errors.New("update agent reports a failed run")

// Run prints the device update status once, or keeps watching the agent.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "kiosk-status")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	encoding, err := versioncode.ParseEncoding(cfg.TagEncoding)
	if err != nil {
		return err
	}

	codec := versioncode.New(encoding)
	device := local.New(cfg.DeviceRoot, cfg.ArchiveExtension, cfg.ManifestEntry)

	printInstalled(out, cfg.PackageID, probe.New(device).Probe(ctx, cfg.PackageID), codec)
	printLastReport(ctx, out, repo.NewFileRepository(cfg.ReportFile))

	agentAddress := cfg.ListenAddress
	if opts.AgentAddress != "" {
		agentAddress = opts.AgentAddress
	}

	if agentAddress == "" {
		_, _ = fmt.Fprintln(out, "agent: not configured")

		return nil
	}

	client, err := common.Dial(ctx, agentAddress, common.WithCallTimeout(cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("dial agent: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	if !opts.Watch {
		return checkAgent(ctx, out, client)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	logger.InfoKV(ctx, "Watching update agent", "agent_address", agentAddress, "interval", opts.PollInterval.String())

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		if err = checkAgent(ctx, out, client); err != nil && !errors.Is(err, ErrNotServing) {
			logger.ErrorKV(ctx, "Check agent failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-ticker.C:
		}
	}
}

// checkAgent prints the pipeline health published by the agent.
func checkAgent(ctx context.Context, out io.Writer, client *common.Client) error {
	status, err := client.Check(ctx, api.ServiceName)
	if err != nil {
		_, _ = fmt.Fprintln(out, "agent: unreachable")

		return err
	}

	_, _ = fmt.Fprintf(out, "agent: %s\n", strings.ToLower(status.String()))

	if status == healthpb.HealthCheckResponse_NOT_SERVING {
		return ErrNotServing
	}

	return nil
}

// printInstalled prints the probed installed state.
func printInstalled(out io.Writer, packageID string, state update.InstalledState, codec versioncode.Codec) {
	switch {
	case !state.IsInstalled:
		_, _ = fmt.Fprintf(out, "package %s: not installed\n", packageID)
	case !state.IsKnown():
		_, _ = fmt.Fprintf(out, "package %s: installed, version unknown\n", packageID)
	default:
		_, _ = fmt.Fprintf(out, "package %s: installed, version code %d (%s)\n",
			packageID, state.VersionCode, codec.Format(state.VersionCode))
	}
}

// printLastReport prints a summary of the last run report.
func printLastReport(ctx context.Context, out io.Writer, repository repo.Repository) {
	report, err := repository.Load(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			_, _ = fmt.Fprintln(out, "last run: none")
		} else {
			_, _ = fmt.Fprintf(out, "last run: unreadable (%v)\n", err)
		}

		return
	}

	outcome := "ok"
	if !report.Succeeded() {
		outcome = "failed: " + report.Err.Error()
	}

	decision := string(report.Decision)
	if decision == "" {
		decision = "none"
	}

	_, _ = fmt.Fprintf(out, "last run: %s, trigger %s, decision %s, finished %s\n",
		outcome, report.Trigger, decision, report.FinishedAt.Local().Format(time.RFC3339))

	if report.Release != nil {
		_, _ = fmt.Fprintf(out, "latest release: %s, version code %d from %s\n",
			report.Release.TagName, report.Release.VersionCode, report.Release.Source)
	}
}
