package server

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	repo "github.com/oshokin/kiosk-updater/internal/repository/report"
	"github.com/oshokin/kiosk-updater/internal/service/updater"
)

// Runner performs one guarded update run.
type Runner interface {
	RunOnce(ctx context.Context, trigger updater.Trigger) (*update.Report, error)
}

// Publisher exposes the outcome of a run.
type Publisher interface {
	Publish(report *update.Report)
}

// service owns the periodic trigger of the agent.
type service struct {
	// runner executes update runs.
	runner Runner
	// publisher receives every finished report.
	publisher Publisher
	// repo persists the last report; nil disables persistence.
	repo repo.Repository
	// interval is the time between runs.
	interval time.Duration
}

// newService creates the periodic trigger.
func newService(runner Runner, publisher Publisher, repository repo.Repository, interval time.Duration) *service {
	return &service{
		runner:    runner,
		publisher: publisher,
		repo:      repository,
		interval:  interval,
	}
}

// restore publishes the report saved by a previous agent, if any.
func (s *service) restore(ctx context.Context) {
	if s.repo == nil {
		return
	}

	last, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		s.publisher.Publish(last)
		logger.InfoKV(ctx, "Restored last run report", "run", last.RunID, "succeeded", last.Succeeded())
	case errors.Is(err, repo.ErrNotFound):
		// Nothing ran yet.
	default:
		logger.WarnKV(ctx, "Failed to load last run report", "error", err)
	}
}

// loop runs once immediately and then on every tick until ctx is done.
func (s *service) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce performs a run and records its report.
func (s *service) runOnce(ctx context.Context) {
	report, err := s.runner.RunOnce(ctx, updater.TriggerPeriodic)
	if err != nil {
		logger.WarnKV(ctx, "Periodic update run skipped", "error", err)

		return
	}

	if s.repo != nil {
		if err = s.repo.Save(ctx, report); err != nil {
			logger.Errorf(ctx, "Failed to persist run report: %v", err)
		}
	}

	s.publisher.Publish(report)
}
