package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

// Runner starts detached background jobs. A job keeps the caller's context
// values (logger fields) but not its cancellation, so it runs to completion
// after the request returns. Wait is for shutdown and tests.
type Runner struct {
	wg      sync.WaitGroup
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewRunner(log *logger.Logger, m *metrics.Metrics) *Runner {
	return &Runner{log: log, metrics: m}
}

// Go runs fn on its own goroutine. The returned error (or a recovered panic)
// is logged and counted, then handed to onFail so the job can record its
// failed state. onFail may be nil.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error, onFail func(ctx context.Context, err error)) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := run(ctx, fn)
		if err != nil {
			r.log.Error(ctx, "background job "+name+" failed", err)
			r.metrics.IncJob(name, "failed")
			if onFail != nil {
				onFail(ctx, err)
			}
			return
		}
		r.metrics.IncJob(name, "completed")
	}()
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// InFlight reports whether a job marked processing at startedAt should be
// treated as still running, so a resubmit within window is a no-op.
func InFlight(status models.JobStatus, startedAt *time.Time, now time.Time, window time.Duration) bool {
	return status == models.JobProcessing && startedAt != nil && now.Sub(*startedAt) < window
}
