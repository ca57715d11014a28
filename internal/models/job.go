// Package models defines the persisted record shapes shared across the
// job engine: jobs, their per-track results, and the daily quota ledger.
package models

import "time"

// JobType enumerates the task an intake request creates.
type JobType string

const (
	JobTypeSyncSPToYT JobType = "sync_sp_to_yt"
	JobTypeSyncYTToSP JobType = "sync_yt_to_sp"
	JobTypeMerge      JobType = "merge"
)

// JobStatus enumerates the valid states in the job lifecycle DAG.
type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusReadyToFinalize JobStatus = "ready_to_finalize"
	JobStatusFinalizing      JobStatus = "finalizing"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusError           JobStatus = "error"
)

// IsTerminal reports whether status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// TrackStatus enumerates a TrackDecision's outcome.
type TrackStatus string

const (
	TrackFound    TrackStatus = "found"
	TrackNotFound TrackStatus = "not_found"
)

// TrackDecision is one element of a Job's result.songs, emitted by the
// Matching Pipeline and never mutated once written.
type TrackDecision struct {
	Name                 string      `json:"name"`
	Artist               string      `json:"artist"`
	Status               TrackStatus `json:"status"`
	TargetID             string      `json:"target_id,omitempty"`
	TargetTitle          string      `json:"target_title,omitempty"`
	TargetArtist         string      `json:"target_artist,omitempty"`
	RequiresManualSearch bool        `json:"requires_manual_search"`
	Reason               string      `json:"reason,omitempty"`
	// Target disambiguates which provider a decision belongs to for
	// merge jobs, which finalize against both providers at once. Empty
	// for sync jobs, whose single target is implicit in the job type.
	Target string `json:"target,omitempty"`
}

// JobResult is the tagged payload stored in Job.Result. Exactly one of
// Songs (matching-phase output) or Summary (post-finalize summary) is
// populated depending on the job's current status.
type JobResult struct {
	Songs   []TrackDecision `json:"songs,omitempty"`
	Summary *JobSummary     `json:"summary,omitempty"`
}

// JobSummary is written by the Finalizer on completion.
type JobSummary struct {
	AddedCount   int `json:"added_count"`
	SkippedCount int `json:"skipped_count"`
}

// Job is the durable record of one user sync/merge request (§3).
type Job struct {
	JobID        string     `json:"job_id"`
	UserID       string     `json:"user_id"`
	Type         JobType    `json:"type"`
	Status       JobStatus  `json:"status"`
	PlaylistName string     `json:"playlist_name"`
	Result       *JobResult `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	JobNotes     string     `json:"job_notes,omitempty"`
	SongLimit    int        `json:"song_limit,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// validTransitions enumerates the edges of the status DAG (§3 invariant).
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusReadyToFinalize: true,
		JobStatusError:           true,
	},
	JobStatusReadyToFinalize: {
		JobStatusFinalizing: true,
		JobStatusError:      true, // reaper timeout
	},
	JobStatusFinalizing: {
		JobStatusCompleted: true,
		JobStatusError:     true,
	},
}

// ValidTransition reports whether from -> to is an edge in the DAG.
func ValidTransition(from, to JobStatus) bool {
	return validTransitions[from][to]
}

// QuotaEntry is one row per calendar day in the provider's reference
// timezone (§3).
type QuotaEntry struct {
	Date  string `json:"date"` // YYYY-MM-DD in the reference timezone
	Total int    `json:"total"`
}
