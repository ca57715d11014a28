package surrealdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	surreal "github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// TokenStore is the external opaque per-user token KV (§9): the core
// never inspects token contents, only stores and retrieves them keyed
// by provider + user_id. One table per provider (youtube_token,
// spotify_token) per the §6 persisted schema.
type TokenStore struct {
	db     *surreal.DB
	logger *common.Logger
}

func NewTokenStore(db *surreal.DB, logger *common.Logger) *TokenStore {
	return &TokenStore{db: db, logger: logger}
}

func tokenTable(provider string) (string, error) {
	switch provider {
	case "youtube", "yt":
		return "youtube_token", nil
	case "spotify", "sp":
		return "spotify_token", nil
	default:
		return "", fmt.Errorf("unknown token provider %q", provider)
	}
}

type tokenRow struct {
	UserID    string `json:"user_id"`
	TokenJSON string `json:"token_json"`
}

func (s *TokenStore) Get(ctx context.Context, provider, userID string) (string, error) {
	table, err := tokenTable(provider)
	if err != nil {
		return "", err
	}
	row, err := surreal.Select[tokenRow](ctx, s.db, surrealmodels.NewRecordID(table, userID))
	if err != nil {
		return "", fmt.Errorf("failed to select token: %w", err)
	}
	if row == nil {
		return "", errors.New("token not found")
	}
	return row.TokenJSON, nil
}

func (s *TokenStore) Put(ctx context.Context, provider, userID, tokenJSON string) error {
	table, err := tokenTable(provider)
	if err != nil {
		return err
	}

	sql := "UPSERT $rid SET user_id = $user_id, token_json = $token_json"
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(table, userID),
		"user_id":    userID,
		"token_json": tokenJSON,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surreal.Query[[]tokenRow](ctx, s.db, sql, vars); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to store token after retries: %w", lastErr)
}

var _ interfaces.TokenStore = (*TokenStore)(nil)
