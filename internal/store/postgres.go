package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenboard/tokenboard/internal/leaderboard"
)

// Postgres persists usage records in the usage_records table. Costs are
// stored as integer micro-dollars and converted at the boundary; the engine
// only ever sees float dollars.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const recordColumns = `user_id, to_char(date, 'YYYY-MM-DD'), to_char(utc_date, 'YYYY-MM-DD'),
	input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens,
	total_tokens, cost_usd_micros, models_used, updated_at`

func (p *Postgres) ListRecords(ctx context.Context) ([]leaderboard.UsageRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+recordColumns+` FROM usage_records`)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *Postgres) ListRecordsByUser(ctx context.Context, id leaderboard.UserID) ([]leaderboard.UsageRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+recordColumns+` FROM usage_records WHERE user_id = $1`, string(id))
	if err != nil {
		return nil, fmt.Errorf("query usage records for %s: %w", id, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ReplaceUserRecords substitutes a user's entire record set inside one
// transaction. Readers observe the old or the new set, never a mix.
func (p *Postgres) ReplaceUserRecords(ctx context.Context, id leaderboard.UserID, records []leaderboard.UsageRecord) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM usage_records WHERE user_id = $1`, string(id)); err != nil {
		return fmt.Errorf("clear records for %s: %w", id, err)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		var utcDate *string
		if r.UTCDate != "" {
			d := r.UTCDate
			utcDate = &d
		}
		batch.Queue(`INSERT INTO usage_records (
			user_id, date, utc_date,
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens,
			total_tokens, cost_usd_micros, models_used, updated_at
		) VALUES ($1, $2::date, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)`,
			string(id), r.Date, utcDate,
			r.InputTokens, r.OutputTokens, r.CacheCreationTokens, r.CacheReadTokens,
			r.TotalTokens, DollarsToMicros(r.TotalCost), r.ModelsUsed, r.UpdatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert records for %s: %w", id, err)
	}
	return tx.Commit(ctx)
}

func scanRecords(rows pgx.Rows) ([]leaderboard.UsageRecord, error) {
	var out []leaderboard.UsageRecord
	for rows.Next() {
		var (
			userID     string
			date       string
			utcDate    *string
			costMicros int64
			r          leaderboard.UsageRecord
			updatedAt  time.Time
		)
		if err := rows.Scan(&userID, &date, &utcDate,
			&r.InputTokens, &r.OutputTokens, &r.CacheCreationTokens, &r.CacheReadTokens,
			&r.TotalTokens, &costMicros, &r.ModelsUsed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.UserID = leaderboard.UserID(userID)
		r.Date = date
		if utcDate != nil {
			r.UTCDate = *utcDate
		}
		r.TotalCost = MicrosToDollars(costMicros)
		r.UpdatedAt = updatedAt
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage records: %w", err)
	}
	return out, nil
}

// MicrosToDollars converts stored micro-dollars to float dollars.
func MicrosToDollars(micros int64) float64 {
	return float64(micros) / 1_000_000
}

// DollarsToMicros converts float dollars to stored micro-dollars.
func DollarsToMicros(dollars float64) int64 {
	return int64(math.Round(dollars * 1_000_000))
}
