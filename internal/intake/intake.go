// Package intake implements Admission (§4.G): playlist name validation,
// track-count resolution, the quota pre-reservation policy, and job
// creation/enqueue for every public sync and merge request.
package intake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
	"github.com/google/uuid"
)

// Quota policy constants (§4.G steps 4-5, supplemented §3).
const (
	QuotaLimit          = 10000
	QuotaBuffer         = 500
	CostPerSongSPToYT   = 51 // 1 list + 50 insert, per original YT_API_QUOTA_COSTS
	CostPerSongYTToSP   = 1
	playlistNamePattern = `^[^\\/\[\]+?#&%*|<>"']+$`
)

var playlistNameRe = regexp.MustCompile(playlistNamePattern)

// StatusError carries the HTTP status code a rejection at intake should
// surface, so the server layer need not re-derive it from the error's
// identity.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

func statusErr(status int, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

const (
	statusBadRequest   = 400
	statusUnauthorized = 401
	statusNotFound     = 404
	statusTooManyReqs  = 429
)

// Intake admits sync and merge requests, creating job rows and enqueuing
// their first task.
type Intake struct {
	jobs   interfaces.JobStore
	quota  interfaces.QuotaLedger
	queue  interfaces.TaskQueue
	logger *common.Logger
}

func NewIntake(jobs interfaces.JobStore, quota interfaces.QuotaLedger, queue interfaces.TaskQueue, logger *common.Logger) *Intake {
	return &Intake{jobs: jobs, quota: quota, queue: queue, logger: logger}
}

// direction bundles the per-sync-type constants Admission needs: which
// job type/task name this request creates and its per-track quota cost.
// The source provider is passed to AdmitSync separately.
type direction struct {
	jobType     models.JobType
	taskName    string
	costPerSong int
}

var (
	DirectionSPToYT = direction{jobType: models.JobTypeSyncSPToYT, taskName: "run_sync_sp_to_yt_job", costPerSong: CostPerSongSPToYT}
	DirectionYTToSP = direction{jobType: models.JobTypeSyncYTToSP, taskName: "run_sync_yt_to_sp_job", costPerSong: CostPerSongYTToSP}
)

// AdmitSync implements §4.G steps 1-7 for a sync_sp_to_yt / sync_yt_to_sp
// request. source is the provider the playlist and its track count are
// resolved against (SP for sp_to_yt, YT for yt_to_sp).
func (in *Intake) AdmitSync(ctx context.Context, dir direction, source interfaces.Provider, userID, playlistName string) (*models.Job, error) {
	if !playlistNameRe.MatchString(playlistName) {
		return nil, statusErr(statusBadRequest, "invalid playlist name %q", playlistName)
	}

	ref, err := source.GetPlaylistByName(ctx, userID, playlistName)
	if err != nil {
		if errors.Is(err, interfaces.ErrUnauthenticated) {
			return nil, statusErr(statusUnauthorized, "provider authentication failed")
		}
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, statusErr(statusNotFound, "playlist %q not found", playlistName)
		}
		return nil, fmt.Errorf("failed to resolve playlist %q: %w", playlistName, err)
	}

	trackCount, err := source.GetPlaylistTrackCount(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUnauthenticated) {
			return nil, statusErr(statusUnauthorized, "provider authentication failed")
		}
		return nil, fmt.Errorf("failed to read track count for %q: %w", playlistName, err)
	}

	if trackCount == 0 {
		job := in.newJob(dir.jobType, userID, playlistName)
		job.Status = models.JobStatusCompleted
		job.JobNotes = "No songs to sync"
		job.Result = &models.JobResult{Summary: &models.JobSummary{AddedCount: 0, SkippedCount: 0}}
		if err := in.jobs.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to create job: %w", err)
		}
		return job, nil
	}

	ceiling := QuotaLimit - QuotaBuffer
	estimatedCost := trackCount * dir.costPerSong

	songLimit := 0
	notes := ""
	ok, err := in.quota.Reserve(ctx, estimatedCost, ceiling)
	if err != nil {
		return nil, fmt.Errorf("quota reservation failed: %w", err)
	}
	if !ok {
		used, err := in.quota.Used(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read quota usage: %w", err)
		}
		songsToSync := int(math.Floor(float64(ceiling-used) / float64(dir.costPerSong)))
		if songsToSync < 1 {
			return nil, statusErr(statusTooManyReqs, "quota exhausted")
		}
		ok, err := in.quota.Reserve(ctx, songsToSync*dir.costPerSong, ceiling)
		if err != nil {
			return nil, fmt.Errorf("quota reservation failed: %w", err)
		}
		if !ok {
			return nil, statusErr(statusTooManyReqs, "quota exhausted")
		}
		songLimit = songsToSync
		notes = fmt.Sprintf("Sync limited to %d of %d songs due to API quota.", songsToSync, trackCount)
	}

	job := in.newJob(dir.jobType, userID, playlistName)
	job.JobNotes = notes
	job.SongLimit = songLimit
	if err := in.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	args := map[string]any{"job_id": job.JobID, "playlist_name": playlistName, "user_id": userID}
	if songLimit > 0 {
		args["song_limit"] = songLimit
	}
	if err := in.queue.Enqueue(ctx, "jobs", dir.taskName, args); err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return job, nil
}

// AdmitMerge implements §4.G for merge_playlists: merge does not
// pre-reserve quota (rare, bounded by merge size), so admission is just
// playlist-name validation and job creation/enqueue.
func (in *Intake) AdmitMerge(ctx context.Context, userID, ytPlaylist, spPlaylist, newPlaylistName string) (*models.Job, error) {
	for _, name := range []string{ytPlaylist, spPlaylist, newPlaylistName} {
		if !playlistNameRe.MatchString(name) {
			return nil, statusErr(statusBadRequest, "invalid playlist name %q", name)
		}
	}

	job := in.newJob(models.JobTypeMerge, userID, newPlaylistName)
	if err := in.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	args := map[string]any{
		"job_id": job.JobID, "yt_playlist": ytPlaylist, "sp_playlist": spPlaylist,
		"new_playlist_name": newPlaylistName, "user_id": userID,
	}
	if err := in.queue.Enqueue(ctx, "jobs", "run_merge_playlists_job", args); err != nil {
		return nil, fmt.Errorf("failed to enqueue merge job %s: %w", job.JobID, err)
	}
	return job, nil
}

func (in *Intake) newJob(jobType models.JobType, userID, playlistName string) *models.Job {
	return &models.Job{
		JobID:        uuid.NewString(),
		UserID:       userID,
		Type:         jobType,
		Status:       models.JobStatusPending,
		PlaylistName: playlistName,
	}
}
