package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	tcommon "github.com/bobmcallan/syncplay/tests/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surreal "github.com/surrealdb/surrealdb.go"
)

func testBrokerDB(t *testing.T) *surreal.DB {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)
	ctx := context.Background()

	db, err := surreal.New(sc.Address())
	require.NoError(t, err)

	_, err = db.SignIn(ctx, map[string]interface{}{"user": "root", "pass": "root"})
	require.NoError(t, err)

	dbName := "queue_test"
	require.NoError(t, db.Use(ctx, "syncplay_test", dbName))

	_, err = surreal.Query[any](ctx, db, "DEFINE TABLE IF NOT EXISTS task_queue SCHEMALESS", nil)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

func TestBroker_EnqueueAndProcess(t *testing.T) {
	db := testBrokerDB(t)
	broker := NewBroker(db, common.NewSilentLogger(), 10*time.Millisecond, time.Minute)

	var mu sync.Mutex
	var received []interfaces.Task
	broker.Subscribe("jobs", func(ctx context.Context, task interfaces.Task) error {
		mu.Lock()
		received = append(received, task)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, broker.Start(ctx))
	defer broker.Stop()

	require.NoError(t, broker.Enqueue(context.Background(), "jobs", "process_job", map[string]any{"job_id": "abc"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "process_job", received[0].Name)
	assert.Equal(t, "abc", received[0].Args["job_id"])
	mu.Unlock()
}

func TestBroker_FailedTaskIsRedelivered(t *testing.T) {
	db := testBrokerDB(t)
	broker := NewBroker(db, common.NewSilentLogger(), 10*time.Millisecond, time.Minute)

	var mu sync.Mutex
	attempts := 0
	broker.Subscribe("cleanup", func(ctx context.Context, task interfaces.Task) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return assert.AnError
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, broker.Start(ctx))
	defer broker.Stop()

	require.NoError(t, broker.Enqueue(context.Background(), "cleanup", "sweep", nil))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 2*time.Second, 20*time.Millisecond)
}
