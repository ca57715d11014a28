package surrealdb

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
	"github.com/google/uuid"
	surreal "github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobSelectFields lists the job fields selected for struct mapping, by
// name and without the SurrealDB record id.
const jobSelectFields = "job_id, user_id, type, status, playlist_name, result, error, job_notes, song_limit, created_at, updated_at"

// JobStore implements interfaces.JobStore using SurrealDB. Transition is
// a compare-and-swap done as one conditional UPDATE that only matches
// the row while its status equals the expected "from" status.
type JobStore struct {
	db     *surreal.DB
	logger *common.Logger
}

func NewJobStore(db *surreal.DB, logger *common.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	sql := `UPSERT $rid SET
		job_id = $job_id, user_id = $user_id, type = $type, status = $status,
		playlist_name = $playlist_name, result = $result, error = $error,
		job_notes = $job_notes, song_limit = $song_limit,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("jobs", job.JobID),
		"job_id":        job.JobID,
		"user_id":       job.UserID,
		"type":          job.Type,
		"status":        job.Status,
		"playlist_name": job.PlaylistName,
		"result":        job.Result,
		"error":         job.Error,
		"job_notes":     job.JobNotes,
		"song_limit":    job.SongLimit,
		"created_at":    job.CreatedAt,
		"updated_at":    job.UpdatedAt,
	}

	if _, err := surreal.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM jobs WHERE job_id = $job_id LIMIT 1"
	vars := map[string]any{"job_id": jobID}

	job, err := s.queryOne(ctx, sql, vars)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, interfaces.ErrNotFound
	}
	return job, nil
}

func (s *JobStore) Latest(ctx context.Context, userID string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM jobs WHERE user_id = $user_id ORDER BY created_at DESC LIMIT 1"
	vars := map[string]any{"user_id": userID}

	job, err := s.queryOne(ctx, sql, vars)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, interfaces.ErrNotFound
	}
	return job, nil
}

// Transition performs the compare-and-swap on status described in §4.B:
// it updates the record WHERE status = from, so a concurrent transition
// that already moved the job away from "from" leaves this call's query
// matching zero rows, which we surface as ErrConflict. Per the JobPatch
// contract, zero-value patch fields are left untouched rather than
// overwritten with null — only the fields the caller actually set are
// included in the SET clause.
func (s *JobStore) Transition(ctx context.Context, jobID string, from, to models.JobStatus, patch interfaces.JobPatch) error {
	now := time.Now()
	sets := []string{"status = $to", "updated_at = $updated_at"}
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("jobs", jobID),
		"to":         to,
		"updated_at": now,
		"from":       from,
	}
	if patch.Result != nil {
		sets = append(sets, "result = $result")
		vars["result"] = patch.Result
	}
	if patch.Error != "" {
		sets = append(sets, "error = $error")
		vars["error"] = patch.Error
	}
	if patch.JobNotes != "" {
		sets = append(sets, "job_notes = $job_notes")
		vars["job_notes"] = patch.JobNotes
	}
	if patch.SongLimit != nil {
		sets = append(sets, "song_limit = $song_limit")
		vars["song_limit"] = *patch.SongLimit
	}

	sql := "UPDATE $rid SET " + strings.Join(sets, ", ") + " WHERE status = $from"

	result, err := surreal.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to transition job %s: %w", jobID, err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return interfaces.ErrConflict
	}
	return nil
}

func (s *JobStore) SweepStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	sql := `UPDATE jobs SET status = $error, error = $message, updated_at = $now
		WHERE status IN [$pending, $ready] AND updated_at < $cutoff
		RETURN job_id`
	vars := map[string]any{
		"error":   models.JobStatusError,
		"message": "Job timed out",
		"now":     time.Now(),
		"pending": models.JobStatusPending,
		"ready":   models.JobStatusReadyToFinalize,
		"cutoff":  cutoff,
	}

	type idRow struct {
		JobID string `json:"job_id"`
	}
	results, err := surreal.Query[[]idRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}
	var ids []string
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			ids = append(ids, row.JobID)
		}
	}
	return ids, nil
}

func (s *JobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) error {
	sql := `DELETE FROM jobs WHERE status IN [$completed, $error] AND updated_at < $cutoff`
	vars := map[string]any{
		"completed": models.JobStatusCompleted,
		"error":     models.JobStatusError,
		"cutoff":    cutoff,
	}
	if _, err := surreal.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete terminal jobs: %w", err)
	}
	return nil
}

func (s *JobStore) queryOne(ctx context.Context, sql string, vars map[string]any) (*models.Job, error) {
	results, err := surreal.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

var _ interfaces.JobStore = (*JobStore)(nil)
