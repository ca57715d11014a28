package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	surreal "github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// QuotaLedger implements interfaces.QuotaLedger as a single row per
// calendar day in the configured reference timezone (§4.A), following
// the lazy-row-creation-then-conditional-update pattern: an UPSERT that
// is a no-op if the row already exists, followed by a conditional UPDATE
// that only lands if it would not exceed the ceiling.
type QuotaLedger struct {
	db     *surreal.DB
	logger *common.Logger
	loc    *time.Location
}

func NewQuotaLedger(db *surreal.DB, logger *common.Logger, loc *time.Location) *QuotaLedger {
	return &QuotaLedger{db: db, logger: logger, loc: loc}
}

func (q *QuotaLedger) today() string {
	return time.Now().In(q.loc).Format("2006-01-02")
}

// ensureRow lazily creates today's row with total=0 if absent, leaving
// an existing total untouched.
func (q *QuotaLedger) ensureRow(ctx context.Context, date string) error {
	sql := `UPSERT $rid SET date = $date, total = (total ?? 0)`
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("youtube_quota", date),
		"date": date,
	}
	if _, err := surreal.Query[any](ctx, q.db, sql, vars); err != nil {
		return fmt.Errorf("failed to ensure quota row: %w", err)
	}
	return nil
}

func (q *QuotaLedger) Reserve(ctx context.Context, required, ceiling int) (bool, error) {
	date := q.today()
	if err := q.ensureRow(ctx, date); err != nil {
		return false, err
	}

	sql := `UPDATE $rid SET total = total + $required WHERE total + $required <= $ceiling`
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("youtube_quota", date),
		"required": required,
		"ceiling":  ceiling,
	}

	type quotaRow struct {
		Total int `json:"total"`
	}
	result, err := surreal.Query[[]quotaRow](ctx, q.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to reserve quota: %w", err)
	}
	return result != nil && len(*result) > 0 && len((*result)[0].Result) > 0, nil
}

func (q *QuotaLedger) Consume(ctx context.Context, units int) error {
	date := q.today()
	if err := q.ensureRow(ctx, date); err != nil {
		return err
	}

	sql := `UPDATE $rid SET total = total + $units`
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("youtube_quota", date),
		"units": units,
	}
	if _, err := surreal.Query[any](ctx, q.db, sql, vars); err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	return nil
}

func (q *QuotaLedger) Used(ctx context.Context) (int, error) {
	date := q.today()
	sql := "SELECT total FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("youtube_quota", date)}

	type quotaRow struct {
		Total int `json:"total"`
	}
	results, err := surreal.Query[[]quotaRow](ctx, q.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to read quota usage: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Total, nil
}

// Set is the administrative unconditional override behind
// POST /api/set_youtube_quota.
func (q *QuotaLedger) Set(ctx context.Context, value int) error {
	date := q.today()
	sql := `UPSERT $rid SET date = $date, total = $value`
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("youtube_quota", date),
		"date":  date,
		"value": value,
	}
	if _, err := surreal.Query[any](ctx, q.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set quota: %w", err)
	}
	q.logger.Info().Str("date", date).Int("value", value).Msg("Quota administratively overridden")
	return nil
}

var _ interfaces.QuotaLedger = (*QuotaLedger)(nil)
