// Package surrealdb implements the Job Store, Quota Ledger, and Token
// Store on top of a single SurrealDB connection, following the
// connect-signin-select-define-tables sequence used throughout this
// codebase's storage layer.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	surreal "github.com/surrealdb/surrealdb.go"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surreal.DB
	logger *common.Logger

	jobStore   *JobStore
	quotaStore *QuotaLedger
	tokenStore *TokenStore
}

// NewManager connects to SurrealDB, signs in, selects the namespace and
// database, and defines the tables the job engine depends on.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surreal.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{"jobs", "youtube_quota", "youtube_token", "spotify_token", "task_queue"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surreal.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.jobStore = NewJobStore(db, logger)
	m.quotaStore = NewQuotaLedger(db, logger, config.Quota.Location())
	m.tokenStore = NewTokenStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("Connected to SurrealDB")

	return m, nil
}

func (m *Manager) Jobs() interfaces.JobStore     { return m.jobStore }
func (m *Manager) Quota() interfaces.QuotaLedger { return m.quotaStore }
func (m *Manager) Tokens() interfaces.TokenStore { return m.tokenStore }

// DB exposes the underlying connection for the SurrealDB-backed task
// queue, which persists onto the same database.
func (m *Manager) DB() *surreal.DB { return m.db }

func (m *Manager) Close() error {
	return m.db.Close(context.Background())
}

var _ interfaces.StorageManager = (*Manager)(nil)
