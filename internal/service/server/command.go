package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/kiosk-updater/internal/api/grpc/health"
	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/logger"
	repository "github.com/oshokin/kiosk-updater/internal/repository/report"
	"github.com/oshokin/kiosk-updater/internal/service/updater"
)

// Options controls the kiosk-agent process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// ReportFile specifies the path to persist run reports.
	ReportFile string
}

// ErrNoListenAddress indicates missing listen configuration.
var ErrNoListenAddress = errors.New("no listen address configured")

// Run starts the agent and blocks until context is canceled or the server stops.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "kiosk-agent")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.SetLevelFromString(settings.LogLevel); err != nil {
		return err
	}

	listenAddress := settings.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	if listenAddress == "" {
		return ErrNoListenAddress
	}

	reportFile := settings.ReportFile
	if opts.ReportFile != "" {
		reportFile = opts.ReportFile
	}

	pipeline, err := updater.NewPipeline(settings)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	defer pipeline.Close()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	reporter := api.NewReporter()
	grpcServer := grpc.NewServer()
	reporter.Register(grpcServer)

	svc := newService(pipeline, reporter, repository.NewFileRepository(reportFile), settings.CheckInterval)
	svc.restore(ctx)

	logger.InfoKV(ctx, "Update agent listening",
		"listen_address", lis.Addr().String(),
		"check_interval", settings.CheckInterval,
		"report_file", reportFile)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		return svc.loop(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		reporter.Shutdown()
		grpcServer.GracefulStop()

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Update agent stopped")

	return nil
}
