// Package interfaces defines the contracts the core job engine depends on:
// durable storage, the provider abstraction, and the task queue broker.
// Concrete implementations (SurrealDB-backed storage, fixture providers)
// live outside this package so the engine itself never imports a driver.
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/syncplay/internal/models"
)

// ErrNotFound is returned by Get/Latest/GetPlaylistByName style lookups
// when no matching row exists.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by Transition when the current status does not
// match the expected "from" status (a failed compare-and-swap).
var ErrConflict = errors.New("conflict: status changed concurrently")

// JobStore is the durable record of every job's state (§4.B).
type JobStore interface {
	// Create inserts a new job row; a job with an empty Status is stored
	// as JobStatusPending, otherwise the given Status is kept.
	Create(ctx context.Context, job *models.Job) error

	// Get returns the job row or ErrNotFound.
	Get(ctx context.Context, jobID string) (*models.Job, error)

	// Latest returns the row with the greatest CreatedAt for the user,
	// or ErrNotFound if the user has no jobs.
	Latest(ctx context.Context, userID string) (*models.Job, error)

	// Transition performs a compare-and-swap on status, atomically
	// applying patch and refreshing UpdatedAt. Returns ErrConflict if
	// the job's current status is not from.
	Transition(ctx context.Context, jobID string, from, to models.JobStatus, patch JobPatch) error

	// SweepStale transitions jobs in {pending, ready_to_finalize} whose
	// UpdatedAt predates cutoff to error, returning their ids.
	SweepStale(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteTerminalBefore deletes completed/error rows older than cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) error
}

// JobPatch carries the fields a Transition may update alongside status.
// Zero-value fields are left unchanged except where explicitly noted.
type JobPatch struct {
	Result    *models.JobResult
	Error     string
	JobNotes  string
	SongLimit *int
}

// QuotaLedger is the atomic per-day counter described in §4.A.
type QuotaLedger interface {
	// Reserve atomically sets total += required iff total+required <=
	// ceiling, for today's row (today derived from the configured
	// reference timezone). Returns true on success.
	Reserve(ctx context.Context, required, ceiling int) (bool, error)

	// Consume unconditionally increments today's total. Never fails on
	// the ceiling; it may push total past it.
	Consume(ctx context.Context, units int) error

	// Used returns today's total, or 0 if no row exists yet.
	Used(ctx context.Context) (int, error)

	// Set performs an administrative unconditional overwrite of today's
	// total.
	Set(ctx context.Context, value int) error
}

// TokenStore is the external opaque per-user token KV called out in §9 —
// the core never inspects token contents, only stores and retrieves them
// for the provider layer.
type TokenStore interface {
	Get(ctx context.Context, provider, userID string) (string, error)
	Put(ctx context.Context, provider, userID, tokenJSON string) error
}

// StorageManager aggregates the storage-backed contracts the app wires
// together and owns the lifecycle of the underlying connection.
type StorageManager interface {
	Jobs() JobStore
	Quota() QuotaLedger
	Tokens() TokenStore
	Close() error
}
