package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/finalize"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/models"
	"github.com/bobmcallan/syncplay/internal/providers/fixture"
	"github.com/bobmcallan/syncplay/internal/storage/surrealdb"
	tcommon "github.com/bobmcallan/syncplay/tests/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// newRealJobStore wires a JobStore against a testcontainers-backed
// SurrealDB instance, so the finalize flow below exercises the actual
// Transition SQL rather than the in-memory fakeJobStore double used by
// the rest of this package's tests.
func newRealJobStore(t *testing.T) interfaces.JobStore {
	t.Helper()

	sc := tcommon.StartSurrealDB(t)
	dbName := fmt.Sprintf("t_runner_e2e_%d", time.Now().UnixNano()%100000)
	logger := common.NewSilentLogger()

	manager, err := surrealdb.NewManager(logger, &common.Config{
		Storage: common.StorageConfig{
			Address:   sc.Address(),
			Username:  "root",
			Password:  "root",
			Namespace: "syncplay_test",
			Database:  dbName,
		},
		Quota: common.QuotaConfig{ReferenceTimezone: "America/New_York"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager.Jobs()
}

// TestFinalizeFlow_PreservesResultThroughEmptyPatchCAS exercises the
// real ready_to_finalize -> finalizing CAS the way Finalizer.Trigger
// performs it (an empty JobPatch{}), against the testcontainers-backed
// store, and confirms run_finalize_job still sees the matching result
// computed earlier and calls AddToPlaylist with the right target id —
// the §8 Scenario A guarantee.
func TestFinalizeFlow_PreservesResultThroughEmptyPatchCAS(t *testing.T) {
	jobs := newRealJobStore(t)
	logger := common.NewSilentLogger()

	catalog := []fixture.Candidate{{ID: "yt-song-a", Title: "Song A", Artist: "Artist"}}
	sp := fixture.NewProvider(fixture.VariantSP, catalog, rate.Limit(1000))
	yt := fixture.NewProvider(fixture.VariantYT, catalog, rate.Limit(1000))

	sp.Seed("Road Trip", []interfaces.PlaylistItem{{SourceID: "sp-song-a", Title: "Song A", Artist: "Artist"}})

	quota := &unlimitedQuota{}
	r := NewRunner(jobs, quota, sp, yt, logger)
	finalizer := finalize.NewFinalizer(jobs, noopQueue{})

	job := &models.Job{UserID: "user-1", Type: models.JobTypeSyncSPToYT, PlaylistName: "Road Trip"}
	require.NoError(t, jobs.Create(context.Background(), job))

	syncTask := interfaces.Task{Name: "run_sync_sp_to_yt_job", Args: map[string]any{
		"job_id": job.JobID, "playlist_name": "Road Trip", "user_id": "user-1",
	}}
	require.NoError(t, r.dispatch(context.Background(), syncTask))

	ready, err := jobs.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusReadyToFinalize, ready.Status)
	require.NotNil(t, ready.Result)
	require.Len(t, ready.Result.Songs, 1)

	require.NoError(t, finalizer.Trigger(context.Background(), job.JobID))

	finalizing, err := jobs.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFinalizing, finalizing.Status)
	require.NotNil(t, finalizing.Result, "empty-patch CAS must not null out the result set by the prior transition")
	require.Len(t, finalizing.Result.Songs, 1)

	finalizeTask := interfaces.Task{Name: "run_finalize_job", Args: map[string]any{"job_id": job.JobID}}
	require.NoError(t, r.dispatch(context.Background(), finalizeTask))

	completed, err := jobs.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, completed.Status)
	require.NotNil(t, completed.Result)
	require.NotNil(t, completed.Result.Summary)
	assert.Equal(t, 1, completed.Result.Summary.AddedCount)

	ytPlaylist, err := yt.GetPlaylistByName(context.Background(), "user-1", "Road Trip")
	require.NoError(t, err)
	count, err := yt.GetPlaylistTrackCount(context.Background(), ytPlaylist.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "AddToPlaylist must have been called with the matched target id")
}

type unlimitedQuota struct{}

func (unlimitedQuota) Reserve(ctx context.Context, required, ceiling int) (bool, error) {
	return true, nil
}
func (unlimitedQuota) Consume(ctx context.Context, units int) error { return nil }
func (unlimitedQuota) Used(ctx context.Context) (int, error)        { return 0, nil }
func (unlimitedQuota) Set(ctx context.Context, value int) error     { return nil }

type noopQueue struct{}

func (noopQueue) Enqueue(ctx context.Context, queueName, name string, args map[string]any) error {
	return nil
}
func (noopQueue) Subscribe(queueName string, handler interfaces.Handler) {}
func (noopQueue) Start(ctx context.Context) error                       { return nil }
func (noopQueue) Stop()                                                 {}

var (
	_ interfaces.QuotaLedger = unlimitedQuota{}
	_ interfaces.TaskQueue   = noopQueue{}
)
