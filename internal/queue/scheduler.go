package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/robfig/cron/v3"
)

// Scheduler registers periodic tasks (the Reaper's cleanup sweep, §4.I)
// by enqueueing them onto a TaskQueue at a fixed cron cadence, rather
// than running the work inline — periodic work is an ordinary task
// submitted by a scheduler, not a distinct execution path.
type Scheduler struct {
	cron   *cron.Cron
	queue  interfaces.TaskQueue
	logger *common.Logger

	mu      sync.Mutex
	entries []cron.EntryID
}

func NewScheduler(queue interfaces.TaskQueue, logger *common.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		queue:  queue,
		logger: logger,
	}
}

// Register adds a periodic enqueue of (queueName, taskName, args) on the
// given cron expression. Registration failures (a malformed expression)
// are returned immediately rather than surfacing at Start.
func (s *Scheduler) Register(expr, queueName, taskName string, args map[string]any) error {
	id, err := s.cron.AddFunc(expr, func() {
		if err := s.queue.Enqueue(context.Background(), queueName, taskName, args); err != nil {
			s.logger.Error().
				Str("queue", queueName).
				Str("task", taskName).
				Err(err).
				Msg("Scheduler: failed to enqueue periodic task")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register schedule %q for %s/%s: %w", expr, queueName, taskName, err)
	}

	s.mu.Lock()
	s.entries = append(s.entries, id)
	s.mu.Unlock()

	s.logger.Info().Str("schedule", expr).Str("queue", queueName).Str("task", taskName).Msg("Scheduler: registered periodic task")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

var _ interfaces.Scheduler = (*Scheduler)(nil)
