// Package worker runs the dequeue-process-report loop. Several workers may
// run against the same queue; the broker's atomic pop keeps any job with a
// single worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/imalyk/go-meeting-insights/internal/job"
	"github.com/imalyk/go-meeting-insights/internal/queue"
)

// ProcessFunc executes one job. It must tolerate being retried from
// scratch; there is no partial-completion resume.
type ProcessFunc func(ctx context.Context, j *job.Job) (*job.Result, error)

type Options struct {
	// PollTimeout bounds each blocking dequeue; it is also the upper
	// bound on how long a pre-context shutdown check can lag.
	PollTimeout time.Duration
	// RetryDelay is the fixed sleep after a broker error before the next
	// dequeue attempt.
	RetryDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.PollTimeout <= 0 {
		o.PollTimeout = 30 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
}

type Worker struct {
	queue   *queue.Service
	process ProcessFunc
	logger  *slog.Logger
	opts    Options
}

func New(q *queue.Service, process ProcessFunc, logger *slog.Logger, opts Options) *Worker {
	opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: q, process: process, logger: logger, opts: opts}
}

// Run pulls jobs until ctx is cancelled. Processing errors never stop the
// loop: they become retry-or-fail transitions on the job. Broker errors are
// logged and followed by a fixed delay so a down broker is not hammered.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker loop started", "poll_timeout", w.opts.PollTimeout)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker loop stopped")
			return ctx.Err()
		default:
		}

		j, err := w.queue.Dequeue(ctx, w.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info("worker loop stopped")
				return ctx.Err()
			}
			if errors.Is(err, queue.ErrMalformedJob) {
				continue
			}
			w.logger.Error("dequeue failed", "error", err)
			w.sleep(ctx, w.opts.RetryDelay)
			continue
		}
		if j == nil {
			// Poll timeout, no work.
			continue
		}

		w.logger.Info("picked up job", "job_id", j.ID, "meeting_id", j.MeetingID, "attempts", j.Attempts)
		w.runJob(ctx, j)
	}
}

func (w *Worker) runJob(ctx context.Context, j *job.Job) {
	result, err := w.invoke(ctx, j)

	// The outcome is reported even when ctx was cancelled mid-processing,
	// so a graceful shutdown does not strand the job as processing.
	reportCtx := context.WithoutCancel(ctx)
	if err != nil {
		if failErr := w.queue.Fail(reportCtx, j.ID, err.Error(), true); failErr != nil {
			w.logger.Error("failed to record job failure", "job_id", j.ID, "error", failErr)
		}
		return
	}
	if err := w.queue.Complete(reportCtx, j.ID, result); err != nil {
		w.logger.Error("failed to record job completion", "job_id", j.ID, "error", err)
	}
}

func (w *Worker) invoke(ctx context.Context, j *job.Job) (result *job.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("processing panicked", "job_id", j.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("processing panicked: %v", r)
		}
	}()
	return w.process(ctx, j)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
