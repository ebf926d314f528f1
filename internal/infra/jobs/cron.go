package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"rigshare/internal/app/schedule"
)

// Runner executes registered jobs on a cron schedule. A run that is still in
// progress when its next tick fires is skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunner builds a runner. Each run gets a context bounded by timeout.
func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	))
	return &Runner{cron: c, logger: logger, timeout: timeout, ctx: ctx, cancel: cancel}
}

func (r *Runner) Register(job schedule.Job) error {
	if job.Run == nil {
		return errors.New("jobs: job has no run func")
	}
	_, err := r.cron.AddFunc(job.Spec, func() { r.run(job) })
	if err != nil {
		return err
	}
	r.logger.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

func (r *Runner) Start() { r.cron.Start() }

// Stop prevents new runs and waits for running ones until ctx is done.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	r.cancel()
}

func (r *Runner) run(job schedule.Job) {
	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return
	}
	r.logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

var _ schedule.Scheduler = (*Runner)(nil)
