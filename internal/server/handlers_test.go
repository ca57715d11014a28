package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/syncplay/internal/app"
	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/finalize"
	"github.com/bobmcallan/syncplay/internal/intake"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/providers/fixture"
	"github.com/bobmcallan/syncplay/internal/queue"
	"github.com/bobmcallan/syncplay/internal/storage/surrealdb"
	tcommon "github.com/bobmcallan/syncplay/tests/common"
	"golang.org/x/time/rate"
)

// newTestServer wires a Server against a real (testcontainer) SurrealDB
// instance and deterministic fixture providers, the same components
// app.NewApp assembles, minus config-file loading.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	sc := tcommon.StartSurrealDB(t)
	dbName := fmt.Sprintf("t_handlers_%d", time.Now().UnixNano()%100000)

	logger := common.NewSilentLogger()
	cfg := common.NewDefaultConfig()

	manager, err := surrealdb.NewManager(logger, &common.Config{
		Storage: common.StorageConfig{
			Address:   sc.Address(),
			Username:  "root",
			Password:  "root",
			Namespace: "syncplay_test",
			Database:  dbName,
		},
		Quota:   cfg.Quota,
		Logging: cfg.Logging,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	catalog := []fixture.Candidate{
		{ID: "cat-1", Title: "Midnight City", Artist: "M83"},
		{ID: "cat-2", Title: "Take On Me", Artist: "a-ha"},
	}
	spProvider := fixture.NewProvider(fixture.VariantSP, catalog, rate.Limit(1000))
	ytProvider := fixture.NewProvider(fixture.VariantYT, catalog, rate.Limit(1000))

	// The sync tests admit "Road Trip" from SP; intake rejects a playlist
	// the source provider does not hold with 404.
	spProvider.Seed("Road Trip", []interfaces.PlaylistItem{
		{SourceID: "sp-1", Title: "Midnight City", Artist: "M83"},
	})

	// The task queue broker is wired for Enqueue only here (no Start, no
	// subscribed runner) so admitted jobs stay in "pending" deterministically
	// instead of racing an asynchronous runner to "ready_to_finalize".
	broker := queue.NewBroker(manager.DB(), logger, 50*time.Millisecond, time.Minute)

	jobIntake := intake.NewIntake(manager.Jobs(), manager.Quota(), broker, logger)
	jobFinalizer := finalize.NewFinalizer(manager.Jobs(), broker)

	a := &app.App{
		Config:     cfg,
		Logger:     logger,
		Storage:    manager,
		Queue:      broker,
		SPProvider: spProvider,
		YTProvider: ytProvider,
		Intake:     jobIntake,
		Finalizer:  jobFinalizer,
	}
	return &Server{app: a, logger: logger}
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return bytes.NewBuffer(data)
}

func TestHandleSyncSPToYT_Accepted(t *testing.T) {
	srv := newTestServer(t)

	body := jsonBody(t, map[string]string{"playlist_name": "Road Trip", "user_id": "user-1"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/sync_sp_to_yt", body)
	rec := httptest.NewRecorder()
	srv.handleSyncSPToYT(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Error("expected non-empty job_id")
	}
}

func TestHandleSyncSPToYT_WrongMethod(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/sync_sp_to_yt", nil)
	rec := httptest.NewRecorder()
	srv.handleSyncSPToYT(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleMergePlaylists_Accepted(t *testing.T) {
	srv := newTestServer(t)

	body := jsonBody(t, map[string]string{
		"yt_playlist":       "Summer",
		"sp_playlist":       "Summer",
		"new_playlist_name": "Summer Combined",
		"user_id":           "user-2",
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs/merge_playlists", body)
	rec := httptest.NewRecorder()
	srv.handleMergePlaylists(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleJobGet_NotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	req.SetPathValue("job_id", "does-not-exist")
	rec := httptest.NewRecorder()
	srv.handleJobGet(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleJobGet_AfterSync(t *testing.T) {
	srv := newTestServer(t)

	body := jsonBody(t, map[string]string{"playlist_name": "Road Trip", "user_id": "user-3"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/sync_sp_to_yt", body)
	rec := httptest.NewRecorder()
	srv.handleSyncSPToYT(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("admit failed: %d %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	json.NewDecoder(rec.Body).Decode(&created)

	getReq := httptest.NewRequest(http.MethodGet, "/jobs/"+created["job_id"], nil)
	getReq.SetPathValue("job_id", created["job_id"])
	getRec := httptest.NewRecorder()
	srv.handleJobGet(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
	var view jobView
	if err := json.NewDecoder(getRec.Body).Decode(&view); err != nil {
		t.Fatalf("decode jobView: %v", err)
	}
	if view.JobID != created["job_id"] {
		t.Errorf("job_id mismatch: got %q, want %q", view.JobID, created["job_id"])
	}
}

func TestHandleJobFinalize_NotReady(t *testing.T) {
	srv := newTestServer(t)

	body := jsonBody(t, map[string]string{"playlist_name": "Road Trip", "user_id": "user-4"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/sync_sp_to_yt", body)
	rec := httptest.NewRecorder()
	srv.handleSyncSPToYT(rec, req)
	var created map[string]string
	json.NewDecoder(rec.Body).Decode(&created)

	finReq := httptest.NewRequest(http.MethodPost, "/jobs/"+created["job_id"]+"/finalize", nil)
	finReq.SetPathValue("job_id", created["job_id"])
	finRec := httptest.NewRecorder()
	srv.handleJobFinalize(finRec, finReq)

	if finRec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a job still pending/running, got %d: %s", finRec.Code, finRec.Body.String())
	}
}

func TestHandleQuotaUsage(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/youtube_quota_usage", nil)
	rec := httptest.NewRecorder()
	srv.handleQuotaUsage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["total"] != 0 {
		t.Errorf("expected total=0 for a fresh ledger, got %d", resp["total"])
	}
}

func TestHandleSetQuota(t *testing.T) {
	srv := newTestServer(t)

	body := jsonBody(t, map[string]int{"quota_value": 2500})
	req := httptest.NewRequest(http.MethodPost, "/api/set_youtube_quota", body)
	rec := httptest.NewRecorder()
	srv.handleSetQuota(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	usageReq := httptest.NewRequest(http.MethodGet, "/api/youtube_quota_usage", nil)
	usageRec := httptest.NewRecorder()
	srv.handleQuotaUsage(usageRec, usageReq)
	var resp map[string]int
	json.NewDecoder(usageRec.Body).Decode(&resp)
	if resp["total"] != 2500 {
		t.Errorf("expected total=2500 after override, got %d", resp["total"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
