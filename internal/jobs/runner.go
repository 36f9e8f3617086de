package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/observability"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.Logger
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, log: log}
}

// Run executes fn once and records metrics for it.
func (r *Runner) Run(name string, fn Job) error {
	start := time.Now()
	ctx := ctxutil.WithOp(r.ctx, "job."+name)
	err := fn(ctx)
	if err != nil {
		jobErrors.WithLabelValues(name).Inc()
		r.log.Warn("job failed", zap.String("job", name), zap.Error(err))
		observability.CaptureErrCtx(ctx, err)
	} else {
		jobLastSuccess.WithLabelValues(name).SetToCurrentTime()
	}
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// Every runs fn immediately and then on each tick until the runner context ends.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		_ = r.Run(name, fn)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				_ = r.Run(name, fn)
			}
		}
	}()
}
