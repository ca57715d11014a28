// Package queue implements the Task Queue broker abstraction (§4.C):
// persistent messages surviving worker restart, at-least-once delivery,
// and acknowledge-only-after-success, backed by the same SurrealDB
// connection as the Job Store. The processor-pool / panic-recovery
// shape generalizes a single priority-queue processing loop to named
// queues with a registered handler per queue.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/google/uuid"
	surreal "github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	statusPending = "pending"
	statusRunning = "running"
)

type taskRow struct {
	TaskID    string         `json:"task_id"`
	Queue     string         `json:"queue"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	VisibleAt time.Time      `json:"visible_at"`
}

// Broker implements interfaces.TaskQueue on top of SurrealDB.
type Broker struct {
	db     *surreal.DB
	logger *common.Logger

	pollInterval  time.Duration
	visibilityTTL time.Duration

	mu       sync.Mutex
	handlers map[string]interfaces.Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker creates a Broker. pollInterval governs how often an idle
// queue is re-checked; visibilityTTL is how long a dequeued task stays
// invisible to other workers before it is considered abandoned and
// becomes redeliverable.
func NewBroker(db *surreal.DB, logger *common.Logger, pollInterval, visibilityTTL time.Duration) *Broker {
	return &Broker{
		db:            db,
		logger:        logger,
		pollInterval:  pollInterval,
		visibilityTTL: visibilityTTL,
		handlers:      make(map[string]interfaces.Handler),
	}
}

func (b *Broker) Enqueue(ctx context.Context, queue, name string, args map[string]any) error {
	row := taskRow{
		TaskID:    uuid.New().String(),
		Queue:     queue,
		Name:      name,
		Args:      args,
		Status:    statusPending,
		CreatedAt: time.Now(),
		VisibleAt: time.Now(),
	}

	sql := `UPSERT $rid SET
		task_id = $task_id, queue = $queue, name = $name, args = $args,
		status = $status, created_at = $created_at, visible_at = $visible_at`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("task_queue", row.TaskID),
		"task_id":    row.TaskID,
		"queue":      row.Queue,
		"name":       row.Name,
		"args":       row.Args,
		"status":     row.Status,
		"created_at": row.CreatedAt,
		"visible_at": row.VisibleAt,
	}
	if _, err := surreal.Query[any](ctx, b.db, sql, vars); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", name, err)
	}
	return nil
}

func (b *Broker) Subscribe(queue string, handler interfaces.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[queue] = handler
}

// Start launches one processor loop per subscribed queue plus a reaper
// goroutine that redelivers tasks whose visibility timeout has elapsed
// without an ack (handles a crashed worker).
func (b *Broker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.mu.Lock()
	queues := make([]string, 0, len(b.handlers))
	for q := range b.handlers {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		b.safeGo("broker-"+q, func() { b.processLoop(runCtx, q) })
	}
	b.safeGo("broker-redelivery", func() { b.redeliveryLoop(runCtx) })

	b.logger.Info().Int("queues", len(queues)).Msg("Task queue broker started")
	return nil
}

func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.wg.Wait()
}

func (b *Broker) safeGo(name string, fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in broker goroutine")
			}
		}()
		fn()
	}()
}

func (b *Broker) processLoop(ctx context.Context, queue string) {
	b.mu.Lock()
	handler := b.handlers[queue]
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := b.dequeue(ctx, queue)
		if err != nil {
			b.logger.Warn().Str("queue", queue).Err(err).Msg("Broker: dequeue error")
			if !sleepOrDone(ctx, b.pollInterval) {
				return
			}
			continue
		}
		if task == nil {
			if !sleepOrDone(ctx, b.pollInterval) {
				return
			}
			continue
		}

		if err := handler(ctx, *task); err != nil {
			b.logger.Warn().
				Str("queue", queue).
				Str("name", task.Name).
				Str("task_id", task.ID).
				Err(err).
				Msg("Task handler failed, will redeliver")
			// put the task straight back to pending so the next poll
			// redelivers it.
			b.requeue(ctx, task.ID)
			continue
		}

		b.ack(ctx, task.ID)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (b *Broker) dequeue(ctx context.Context, queue string) (*interfaces.Task, error) {
	now := time.Now()
	selectSQL := `SELECT task_id, queue, name, args, status, created_at, visible_at
		FROM task_queue WHERE queue = $queue AND status = $pending AND visible_at <= $now
		ORDER BY created_at ASC LIMIT 1`
	vars := map[string]any{"queue": queue, "pending": statusPending, "now": now}

	candidates, err := surreal.Query[[]taskRow](ctx, b.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate task: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}
	candidate := (*candidates)[0].Result[0]

	updateSQL := `UPDATE $rid SET status = $running, visible_at = $visible_until WHERE status = $pending`
	updateVars := map[string]any{
		"rid":           surrealmodels.NewRecordID("task_queue", candidate.TaskID),
		"running":       statusRunning,
		"pending":       statusPending,
		"visible_until": now.Add(b.visibilityTTL),
	}
	result, err := surreal.Query[[]taskRow](ctx, b.db, updateSQL, updateVars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		// lost the race to another worker
		return nil, nil
	}

	return &interfaces.Task{
		ID:    candidate.TaskID,
		Queue: candidate.Queue,
		Name:  candidate.Name,
		Args:  candidate.Args,
	}, nil
}

func (b *Broker) ack(ctx context.Context, taskID string) {
	if _, err := surreal.Delete[taskRow](ctx, b.db, surrealmodels.NewRecordID("task_queue", taskID)); err != nil {
		b.logger.Warn().Str("task_id", taskID).Err(err).Msg("Failed to ack task")
	}
}

func (b *Broker) requeue(ctx context.Context, taskID string) {
	sql := `UPDATE $rid SET status = $pending, visible_at = $now`
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("task_queue", taskID),
		"pending": statusPending,
		"now":     time.Now(),
	}
	if _, err := surreal.Query[any](ctx, b.db, sql, vars); err != nil {
		b.logger.Warn().Str("task_id", taskID).Err(err).Msg("Failed to requeue task")
	}
}

// redeliveryLoop resets tasks stuck in "running" past their visibility
// timeout back to "pending" — recovers tasks whose worker crashed
// mid-handler.
func (b *Broker) redeliveryLoop(ctx context.Context) {
	ticker := time.NewTicker(b.visibilityTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sql := `UPDATE task_queue SET status = $pending, visible_at = $now
				WHERE status = $running AND visible_at < $now`
			vars := map[string]any{
				"pending": statusPending,
				"running": statusRunning,
				"now":     time.Now(),
			}
			if _, err := surreal.Query[any](ctx, b.db, sql, vars); err != nil {
				b.logger.Warn().Err(err).Msg("Broker: redelivery sweep failed")
			}
		}
	}
}

var _ interfaces.TaskQueue = (*Broker)(nil)
