package updater

import (
	"context"
	"time"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

// TaskFunc is the work run by a Task.
type TaskFunc func(ctx context.Context) (*update.Report, error)

// Task is a handle on a background run started by Start.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc
	report *update.Report
	err    error
}

// Start runs fn in the background, bounded by timeout when it is positive.
func Start(ctx context.Context, timeout time.Duration, fn TaskFunc) *Task {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)

	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	task := &Task{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(task.done)
		defer cancel()

		task.report, task.err = fn(runCtx)
	}()

	return task
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the task to stop at its next step boundary.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*update.Report, error) {
	select {
	case <-t.done:
		return t.report, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
