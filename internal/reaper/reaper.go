// Package reaper implements the periodic cleanup task (§4.I): sweeping
// stuck jobs to error and deleting old terminal rows. It runs as an
// ordinary task on the cleanup queue, scheduled by internal/queue's
// Scheduler rather than driven by its own timer loop.
package reaper

import (
	"context"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
)

// Default thresholds (§4.I). Exposed as fields rather than constants
// since §9 flags the 1-hour staleness window as something that "should
// be configurable."
const (
	DefaultStaleAfter = time.Hour
	DefaultGCAfter    = 5 * time.Minute
	DefaultSchedule   = "*/15 * * * *"
)

// Reaper sweeps stale jobs to error and deletes old terminal rows. The
// two steps are independent and idempotent (§4.I), so a failure in one
// does not block the other.
type Reaper struct {
	jobs       interfaces.JobStore
	logger     *common.Logger
	staleAfter time.Duration
	gcAfter    time.Duration
}

func NewReaper(jobs interfaces.JobStore, logger *common.Logger, staleAfter, gcAfter time.Duration) *Reaper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if gcAfter <= 0 {
		gcAfter = DefaultGCAfter
	}
	return &Reaper{jobs: jobs, logger: logger, staleAfter: staleAfter, gcAfter: gcAfter}
}

// Register subscribes the sweep as the cleanup queue's cleanup_jobs
// handler and schedules it to fire on sched against q.
func (r *Reaper) Register(q interfaces.TaskQueue, scheduler interfaces.Scheduler, sched string) error {
	q.Subscribe("cleanup", r.handle)
	if sched == "" {
		sched = DefaultSchedule
	}
	return scheduler.Register(sched, "cleanup", "cleanup_jobs", nil)
}

func (r *Reaper) handle(ctx context.Context, task interfaces.Task) error {
	r.Sweep(ctx)
	return nil
}

// Sweep runs both cleanup steps against the current time, logging but
// not failing the whole pass if one step errors.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now()

	staleIDs, err := r.jobs.SweepStale(ctx, now.Add(-r.staleAfter))
	if err != nil {
		r.logger.Error().Err(err).Msg("Reaper: SweepStale failed")
	} else if len(staleIDs) > 0 {
		r.logger.Info().Int("count", len(staleIDs)).Msg("Reaper: errored out stale jobs")
	}

	if err := r.jobs.DeleteTerminalBefore(ctx, now.Add(-r.gcAfter)); err != nil {
		r.logger.Error().Err(err).Msg("Reaper: DeleteTerminalBefore failed")
	}
}
