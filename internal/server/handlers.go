package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/finalize"
	"github.com/bobmcallan/syncplay/internal/intake"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
)

// jobView is the §6 GET /jobs/{job_id} response shape.
type jobView struct {
	JobID     string      `json:"job_id"`
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	JobNotes  string      `json:"job_notes,omitempty"`
	SongLimit int         `json:"song_limit,omitempty"`
	UpdatedAt string      `json:"updated_at"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// jobToView projects a persisted Job onto the §6 GET response shape.
func jobToView(job *models.Job) jobView {
	return jobView{
		JobID:     job.JobID,
		Status:    string(job.Status),
		Result:    job.Result,
		Error:     job.Error,
		JobNotes:  job.JobNotes,
		SongLimit: job.SongLimit,
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
}

// writeIntakeError maps an Intake rejection to the HTTP status it carries,
// falling back to 500 for anything that isn't a *intake.StatusError.
func writeIntakeError(w http.ResponseWriter, err error) {
	var statusErr *intake.StatusError
	if errors.As(err, &statusErr) {
		WriteError(w, statusErr.Status, statusErr.Message)
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}

// handleSyncSPToYT handles POST /jobs/sync_sp_to_yt.
func (s *Server) handleSyncSPToYT(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		PlaylistName string `json:"playlist_name"`
		UserID       string `json:"user_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := s.app.Intake.AdmitSync(r.Context(), intake.DirectionSPToYT, s.app.SPProvider, req.UserID, req.PlaylistName)
	if err != nil {
		writeIntakeError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
}

// handleSyncYTToSP handles POST /jobs/sync_yt_to_sp.
func (s *Server) handleSyncYTToSP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		PlaylistName string `json:"playlist_name"`
		UserID       string `json:"user_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := s.app.Intake.AdmitSync(r.Context(), intake.DirectionYTToSP, s.app.YTProvider, req.UserID, req.PlaylistName)
	if err != nil {
		writeIntakeError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
}

// handleMergePlaylists handles POST /jobs/merge_playlists.
func (s *Server) handleMergePlaylists(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		YTPlaylist      string `json:"yt_playlist"`
		SPPlaylist      string `json:"sp_playlist"`
		NewPlaylistName string `json:"new_playlist_name"`
		UserID          string `json:"user_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := s.app.Intake.AdmitMerge(r.Context(), req.UserID, req.YTPlaylist, req.SPPlaylist, req.NewPlaylistName)
	if err != nil {
		writeIntakeError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
}

// handleJobGet handles GET /jobs/{job_id}.
func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	jobID := r.PathValue("job_id")
	job, err := s.app.Storage.Jobs().Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, jobToView(job))
}

// handleJobLatest handles GET /jobs/latest/{user_id}.
func (s *Server) handleJobLatest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := r.PathValue("user_id")
	job, err := s.app.Storage.Jobs().Latest(r.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "no jobs for user")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, jobToView(job))
}

// handleJobFinalize handles POST /jobs/{job_id}/finalize.
func (s *Server) handleJobFinalize(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	jobID := r.PathValue("job_id")
	if err := s.app.Finalizer.Trigger(r.Context(), jobID); err != nil {
		if errors.Is(err, finalize.ErrNotReady) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "finalizing"})
}

// handleQuotaUsage handles GET /api/youtube_quota_usage.
func (s *Server) handleQuotaUsage(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	total, err := s.app.Storage.Quota().Used(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"total": total, "limit": s.app.Config.Quota.Limit})
}

// handleSetQuota handles POST /api/set_youtube_quota — an administrative
// override of today's usage counter, audited since it bypasses the
// normal Reserve/Consume accounting path.
func (s *Server) handleSetQuota(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		QuotaValue int `json:"quota_value"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Storage.Quota().Set(r.Context(), req.QuotaValue); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().
		Int("quota_value", req.QuotaValue).
		Str("path", r.URL.Path).
		Msg("Admin override of youtube quota usage")
	WriteJSON(w, http.StatusOK, map[string]int{"total": req.QuotaValue})
}
