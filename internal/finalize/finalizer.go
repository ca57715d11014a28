// Package finalize implements the user-triggered half of the Finalizer
// (§4.H steps 1-2): the CAS transition out of ready_to_finalize and the
// task enqueue. Step 3 onward (the actual playlist mutation) runs as the
// run_finalize_job task handler in internal/runner.
package finalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
)

// ErrNotReady is returned when the job is not currently in
// ready_to_finalize — the caller should surface this as a 400 describing
// the job's actual state.
var ErrNotReady = errors.New("job is not ready_to_finalize")

type Finalizer struct {
	jobs  interfaces.JobStore
	queue interfaces.TaskQueue
}

func NewFinalizer(jobs interfaces.JobStore, queue interfaces.TaskQueue) *Finalizer {
	return &Finalizer{jobs: jobs, queue: queue}
}

// Trigger performs the CAS ready_to_finalize -> finalizing and, on
// success, enqueues the finalize task. A failed CAS (the job has since
// moved to some other status, concurrently or via the reaper) is
// reported as ErrNotReady rather than attempted again — finalize is a
// one-shot user action, not something worth retrying blindly.
func (f *Finalizer) Trigger(ctx context.Context, jobID string) error {
	err := f.jobs.Transition(ctx, jobID, models.JobStatusReadyToFinalize, models.JobStatusFinalizing, interfaces.JobPatch{})
	if err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			job, getErr := f.jobs.Get(ctx, jobID)
			if getErr == nil {
				return fmt.Errorf("%w: current status is %q", ErrNotReady, job.Status)
			}
			return ErrNotReady
		}
		return err
	}

	if err := f.queue.Enqueue(ctx, "jobs", "run_finalize_job", map[string]any{"job_id": jobID}); err != nil {
		return fmt.Errorf("failed to enqueue finalize task for job %s: %w", jobID, err)
	}
	return nil
}
