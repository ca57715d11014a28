// Package runner implements the Job Runner (§4.F): one task handler per
// job type, all sharing the load-pending-execute-transition skeleton.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/matching"
	"github.com/bobmcallan/syncplay/internal/models"
)

// Runner dispatches the `jobs` queue's task names to per-type handlers.
// spProvider and ytProvider are the two provider variants the pipeline
// matches between; which one plays source vs target depends on the job
// type.
type Runner struct {
	jobs       interfaces.JobStore
	quota      interfaces.QuotaLedger
	spProvider interfaces.Provider
	ytProvider interfaces.Provider
	logger     *common.Logger
}

func NewRunner(jobs interfaces.JobStore, quota interfaces.QuotaLedger, spProvider, ytProvider interfaces.Provider, logger *common.Logger) *Runner {
	return &Runner{
		jobs:       jobs,
		quota:      quota,
		spProvider: spProvider,
		ytProvider: ytProvider,
		logger:     logger,
	}
}

// Register subscribes every handler this Runner implements onto the
// `jobs` queue of q.
func (r *Runner) Register(q interfaces.TaskQueue) {
	q.Subscribe("jobs", r.dispatch)
}

// dispatch routes by task name and recovers from any handler panic,
// marking the job errored rather than propagating — "programmer error"
// handling per §7: caught, logged with stack, never redelivered.
func (r *Runner) dispatch(ctx context.Context, task interfaces.Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("task", task.Name).
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(debug.Stack())).
				Msg("Runner: recovered from panic in task handler")
			if jobID := stringArg(task.Args, "job_id"); jobID != "" {
				cause := fmt.Errorf("panic in task handler: %v", rec)
				if task.Name == "run_finalize_job" {
					r.failFinalize(ctx, jobID, cause)
				} else {
					r.fail(ctx, jobID, cause)
				}
			}
			err = nil
		}
	}()

	switch task.Name {
	case "run_sync_sp_to_yt_job":
		return r.runSync(ctx, task, r.spProvider, r.ytProvider)
	case "run_sync_yt_to_sp_job":
		return r.runSync(ctx, task, r.ytProvider, r.spProvider)
	case "run_merge_playlists_job":
		return r.runMerge(ctx, task)
	case "run_finalize_job":
		return r.runFinalize(ctx, task)
	default:
		r.logger.Warn().Str("task", task.Name).Msg("Runner: unknown task name, dropping")
		return nil
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// runSync implements the sync_sp_to_yt / sync_yt_to_sp skeleton (§4.F):
// load job, no-op if not pending, run the matching pipeline, transition
// on success or failure.
func (r *Runner) runSync(ctx context.Context, task interfaces.Task, source, target interfaces.Provider) error {
	jobID := stringArg(task.Args, "job_id")
	playlistName := stringArg(task.Args, "playlist_name")
	userID := stringArg(task.Args, "user_id")
	songLimit := intArg(task.Args, "song_limit")

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		r.logger.Warn().Str("job_id", jobID).Err(err).Msg("Runner: sync job not found, dropping")
		return nil
	}
	if job.Status != models.JobStatusPending {
		r.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Runner: sync job no longer pending, idempotent no-op")
		return nil
	}

	decisions, err := matching.Run(ctx, r.logger, source, target, r.quota, userID, playlistName, songLimit)
	if err != nil {
		r.fail(ctx, jobID, err)
		return nil
	}

	patch := interfaces.JobPatch{Result: &models.JobResult{Songs: decisions}}
	if tErr := r.jobs.Transition(ctx, jobID, models.JobStatusPending, models.JobStatusReadyToFinalize, patch); tErr != nil {
		r.logger.Error().Str("job_id", jobID).Err(tErr).Msg("Runner: failed to transition job to ready_to_finalize")
	}
	return nil
}

// targetSP and targetYT tag a merge job's TrackDecisions with which
// provider's merge playlist they belong to, so the Finalizer can later
// split one decision list back into two AddToPlaylist calls.
const (
	targetSP = "sp"
	targetYT = "yt"
)

// runMerge implements merge semantics (§4.F step for merge): resolve
// both source playlists and enumerate their items, copy each provider's
// own items over by id, and match the opposite provider's items via the
// same scoring pipeline. Mutation (CreatePlaylist/AddToPlaylist) is
// deferred to the Finalizer like every other job type — merge shares
// the pending -> ready_to_finalize -> finalizing -> completed skeleton
// rather than mutating both playlists inline, so a merge job is subject
// to the same user-triggered finalize step and reaper timeout as a sync
// job.
func (r *Runner) runMerge(ctx context.Context, task interfaces.Task) error {
	jobID := stringArg(task.Args, "job_id")
	ytPlaylist := stringArg(task.Args, "yt_playlist")
	spPlaylist := stringArg(task.Args, "sp_playlist")
	userID := stringArg(task.Args, "user_id")

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		r.logger.Warn().Str("job_id", jobID).Err(err).Msg("Runner: merge job not found, dropping")
		return nil
	}
	if job.Status != models.JobStatusPending {
		r.logger.Debug().Str("job_id", jobID).Msg("Runner: merge job no longer pending, idempotent no-op")
		return nil
	}

	songs, err := r.mergePlaylists(ctx, userID, ytPlaylist, spPlaylist)
	if err != nil {
		r.fail(ctx, jobID, err)
		return nil
	}

	patch := interfaces.JobPatch{Result: &models.JobResult{Songs: songs}}
	if tErr := r.jobs.Transition(ctx, jobID, models.JobStatusPending, models.JobStatusReadyToFinalize, patch); tErr != nil {
		r.logger.Error().Str("job_id", jobID).Err(tErr).Msg("Runner: failed to transition merge job")
	}
	return nil
}

func (r *Runner) mergePlaylists(ctx context.Context, userID, ytPlaylist, spPlaylist string) ([]models.TrackDecision, error) {
	ytSource, err := r.ytProvider.GetPlaylistByName(ctx, userID, ytPlaylist)
	if err != nil {
		return nil, fmt.Errorf("yt playlist %q not found: %w", ytPlaylist, err)
	}
	spSource, err := r.spProvider.GetPlaylistByName(ctx, userID, spPlaylist)
	if err != nil {
		return nil, fmt.Errorf("sp playlist %q not found: %w", spPlaylist, err)
	}

	ytItems, err := r.ytProvider.ListPlaylistItems(ctx, ytSource.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate yt playlist: %w", err)
	}
	spItems, err := r.spProvider.ListPlaylistItems(ctx, spSource.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sp playlist: %w", err)
	}

	decisions := make([]models.TrackDecision, 0, 2*(len(ytItems)+len(spItems)))
	decisions = append(decisions, tagDirect(ytItems, targetYT)...)
	decisions = append(decisions, tagDirect(spItems, targetSP)...)

	// yt-side items matched against sp's catalog (bound for the sp merge
	// playlist), and vice versa.
	ytIntoSP, err := matching.MatchItems(ctx, r.logger, r.spProvider, r.quota, ytItems)
	if err != nil {
		return nil, fmt.Errorf("failed to match yt items into sp: %w", err)
	}
	spIntoYT, err := matching.MatchItems(ctx, r.logger, r.ytProvider, r.quota, spItems)
	if err != nil {
		return nil, fmt.Errorf("failed to match sp items into yt: %w", err)
	}
	decisions = append(decisions, tagTarget(ytIntoSP, targetSP)...)
	decisions = append(decisions, tagTarget(spIntoYT, targetYT)...)

	return decisions, nil
}

// tagDirect carries a provider's own items over verbatim: the target id
// on that provider's own merge playlist is simply the item's existing
// source id, no search required.
func tagDirect(items []interfaces.PlaylistItem, target string) []models.TrackDecision {
	out := make([]models.TrackDecision, 0, len(items))
	for _, item := range items {
		if item.Unplayable {
			continue
		}
		out = append(out, models.TrackDecision{
			Name: item.Title, Artist: item.Artist,
			Status: models.TrackFound, TargetID: item.SourceID,
			Target: target,
		})
	}
	return out
}

func tagTarget(decisions []models.TrackDecision, target string) []models.TrackDecision {
	for i := range decisions {
		decisions[i].Target = target
	}
	return decisions
}

func (r *Runner) fail(ctx context.Context, jobID string, cause error) {
	patch := interfaces.JobPatch{Error: cause.Error()}
	if err := r.jobs.Transition(ctx, jobID, models.JobStatusPending, models.JobStatusError, patch); err != nil {
		r.logger.Error().Str("job_id", jobID).Err(err).Msg("Runner: failed to transition job to error")
	}
}

// runFinalize loads the ready result and bulk-adds every found target id
// (§4.H steps 3-5). Sync jobs finalize against a single provider; merge
// jobs finalize against both, splitting job.Result.Songs by its Target
// tag since a merge job's matching phase produced decisions for two
// separate playlists in one pass.
func (r *Runner) runFinalize(ctx context.Context, task interfaces.Task) error {
	jobID := stringArg(task.Args, "job_id")

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		r.logger.Warn().Str("job_id", jobID).Err(err).Msg("Runner: finalize job not found, dropping")
		return nil
	}
	if job.Status != models.JobStatusFinalizing {
		r.logger.Debug().Str("job_id", jobID).Msg("Runner: finalize job no longer finalizing, idempotent no-op")
		return nil
	}

	var songs []models.TrackDecision
	if job.Result != nil {
		songs = job.Result.Songs
	}

	var added, skipped int
	switch job.Type {
	case models.JobTypeMerge:
		a1, s1, err := r.finalizeOne(ctx, r.ytProvider, job.UserID, job.PlaylistName, filterTarget(songs, targetYT))
		if err != nil {
			r.failFinalize(ctx, jobID, fmt.Errorf("failed to finalize yt merge playlist: %w", err))
			return nil
		}
		a2, s2, err := r.finalizeOne(ctx, r.spProvider, job.UserID, job.PlaylistName, filterTarget(songs, targetSP))
		if err != nil {
			r.failFinalize(ctx, jobID, fmt.Errorf("failed to finalize sp merge playlist: %w", err))
			return nil
		}
		added, skipped = a1+a2, s1+s2
	default:
		target := r.targetForJob(job)
		added, skipped, err = r.finalizeOne(ctx, target, job.UserID, job.PlaylistName, songs)
		if err != nil {
			r.failFinalize(ctx, jobID, err)
			return nil
		}
	}

	patch := interfaces.JobPatch{Result: &models.JobResult{Summary: &models.JobSummary{AddedCount: added, SkippedCount: skipped}}}
	if err := r.jobs.Transition(ctx, jobID, models.JobStatusFinalizing, models.JobStatusCompleted, patch); err != nil {
		r.logger.Error().Str("job_id", jobID).Err(err).Msg("Runner: failed to transition job to completed")
	}
	return nil
}

// finalizeOne resolves or creates one target playlist and bulk-adds
// every found track's target id onto it.
func (r *Runner) finalizeOne(ctx context.Context, target interfaces.Provider, userID, playlistName string, songs []models.TrackDecision) (added, skipped int, err error) {
	var targetIDs []string
	for _, song := range songs {
		if song.Status == models.TrackFound {
			targetIDs = append(targetIDs, song.TargetID)
			added++
		} else {
			skipped++
		}
	}

	ref, err := target.GetPlaylistByName(ctx, userID, playlistName)
	if err != nil {
		id, createErr := target.CreatePlaylist(ctx, userID, playlistName)
		if createErr != nil {
			return 0, 0, fmt.Errorf("failed to create target playlist: %w", createErr)
		}
		ref = &interfaces.PlaylistRef{ID: id, Title: playlistName}
	}

	if len(targetIDs) > 0 {
		if err := target.AddToPlaylist(ctx, ref.ID, targetIDs); err != nil {
			return 0, 0, fmt.Errorf("failed to add tracks to target playlist: %w", err)
		}
	}
	if cost := target.ReportQuotaCost(interfaces.QuotaOpInsert); cost > 0 && len(targetIDs) > 0 {
		_ = r.quota.Consume(ctx, cost*len(targetIDs))
	}
	return added, skipped, nil
}

// filterTarget extracts the subset of a merge job's songs bound for one
// provider's playlist.
func filterTarget(songs []models.TrackDecision, target string) []models.TrackDecision {
	out := make([]models.TrackDecision, 0, len(songs))
	for _, s := range songs {
		if s.Target == target {
			out = append(out, s)
		}
	}
	return out
}

func (r *Runner) failFinalize(ctx context.Context, jobID string, cause error) {
	patch := interfaces.JobPatch{Error: cause.Error()}
	if err := r.jobs.Transition(ctx, jobID, models.JobStatusFinalizing, models.JobStatusError, patch); err != nil {
		r.logger.Error().Str("job_id", jobID).Err(err).Msg("Runner: failed to transition job to error during finalize")
	}
}

func (r *Runner) targetForJob(job *models.Job) interfaces.Provider {
	switch job.Type {
	case models.JobTypeSyncSPToYT:
		return r.ytProvider
	case models.JobTypeSyncYTToSP:
		return r.spProvider
	default:
		return nil
	}
}
