// Package jobs runs background work: periodic maintenance (Runner) and
// one-off timers such as invoice reminders (Scheduler). Every execution is
// counted in the tutor_job_* Prometheus series.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tutor-backend/internal/observability"
)

// Job is a unit of background work.
type Job func(ctx context.Context) error

// Runner starts periodic jobs bound to a context.
type Runner struct {
	ctx context.Context
}

// New returns a Runner whose jobs stop when ctx is done.
func New(ctx context.Context) *Runner { return &Runner{ctx: ctx} }

// Every runs fn every interval until the runner's context ends.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				_ = run(r.ctx, name, fn)
			}
		}
	}()
}

// run executes fn once with metrics, logging and panic capture.
func run(ctx context.Context, name string, fn Job) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in job %s: %v", name, rec)
		}
		jobRuns.WithLabelValues(name).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			jobErrors.WithLabelValues(name).Inc()
			observability.CaptureErr(err)
			log.Warn().Err(err).Str("job", name).Msg("job failed")
		}
	}()
	return fn(ctx)
}
