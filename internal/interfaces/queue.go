package interfaces

import "context"

// Task is one persisted message: a task name routed to a named queue,
// carrying an argument tuple (§4.C, §6 task queue wire format).
type Task struct {
	ID    string
	Queue string
	Name  string
	Args  map[string]any
}

// Handler processes a delivered Task. Returning an error causes the
// broker to redeliver; the Job Runner's handlers are expected to be
// idempotent so redelivery after a CAS has already landed is a no-op.
type Handler func(ctx context.Context, task Task) error

// TaskQueue is the named-queue broker abstraction described in §4.C:
// persistent messages, at-least-once delivery, acknowledge-after-success.
type TaskQueue interface {
	// Enqueue persists a task onto the named queue.
	Enqueue(ctx context.Context, queue, name string, args map[string]any) error

	// Subscribe registers handler for every task delivered on queue.
	// Dispatching begins when Start is called; call Stop to halt delivery.
	Subscribe(queue string, handler Handler)

	// Start begins polling all subscribed queues for work.
	Start(ctx context.Context) error

	// Stop halts delivery and waits for in-flight handlers to return.
	Stop()
}

// Scheduler registers cron-like periodic tasks atop a TaskQueue (§4.C,
// §4.I, §9 "model as an ordinary task submitted by a scheduler").
type Scheduler interface {
	// Register adds a periodic task on cron expression expr that enqueues
	// name onto queue with args when it fires.
	Register(expr, queue, name string, args map[string]any) error
	Start()
	Stop()
}
