package server

import "net/http"

// registerRoutes sets up the §6 HTTP surface on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/jobs/sync_sp_to_yt", s.handleSyncSPToYT)
	mux.HandleFunc("/jobs/sync_yt_to_sp", s.handleSyncYTToSP)
	mux.HandleFunc("/jobs/merge_playlists", s.handleMergePlaylists)
	mux.HandleFunc("/jobs/latest/{user_id}", s.handleJobLatest)
	mux.HandleFunc("/jobs/{job_id}/finalize", s.handleJobFinalize)
	mux.HandleFunc("/jobs/{job_id}", s.handleJobGet)
	mux.HandleFunc("/api/youtube_quota_usage", s.handleQuotaUsage)
	mux.HandleFunc("/api/set_youtube_quota", s.handleSetQuota)
}
