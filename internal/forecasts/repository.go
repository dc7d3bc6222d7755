package forecasts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/olegsm/retaildesk/internal/stocksync"
	"github.com/olegsm/retaildesk/pkg/models"
)

// keyColumn is interpolated into the upsert statement, so it must look like
// a plain SQL identifier.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Repository handles database operations for forecast summaries. The sync
// loop is the only writer of the aggregate columns.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new forecasts repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// UpsertBatch applies all per-symbol upserts in one transaction: either
// every operation lands or none do. Readers never observe a partial batch.
func (r *Repository) UpsertBatch(ctx context.Context, keyColumn string, ops []stocksync.UpsertOp) error {
	if len(ops) == 0 {
		return nil
	}

	if err := validateIdentifier(keyColumn); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO forecasts (
			%[1]s, last_synced_at, last_signal_at,
			query_count, average_sentiment, cumulative_volume,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (%[1]s) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_signal_at = EXCLUDED.last_signal_at,
			query_count = EXCLUDED.query_count,
			average_sentiment = EXCLUDED.average_sentiment,
			cumulative_volume = EXCLUDED.cumulative_volume,
			updated_at = NOW()
	`, keyColumn)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		_, err := tx.ExecContext(ctx, query,
			op.Symbol,
			op.Update.LastSyncedAt,
			op.Update.LastSignalAt,
			op.Update.QueryCount,
			op.Update.AverageSentiment,
			op.Update.CumulativeVolume,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert forecast for %s: %w", op.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert batch: %w", err)
	}

	return nil
}

// GetBySymbol returns one forecast summary, or nil when unknown
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) (*models.ForecastSummary, error) {
	query := `
		SELECT symbol, last_synced_at, last_signal_at,
		       query_count, average_sentiment, cumulative_volume,
		       created_at, updated_at
		FROM forecasts
		WHERE symbol = $1
	`

	var summary models.ForecastSummary
	err := r.db.GetContext(ctx, &summary, query, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast for %s: %w", symbol, err)
	}

	return &summary, nil
}

// ListRecent returns forecast summaries ordered by most recent signal
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.ForecastSummary, error) {
	query := `
		SELECT symbol, last_synced_at, last_signal_at,
		       query_count, average_sentiment, cumulative_volume,
		       created_at, updated_at
		FROM forecasts
		ORDER BY last_synced_at DESC NULLS LAST
		LIMIT $1
	`

	var summaries []models.ForecastSummary
	err := r.db.SelectContext(ctx, &summaries, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}

	return summaries, nil
}

// Count returns the number of stored forecast summaries
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM forecasts`); err != nil {
		return 0, fmt.Errorf("failed to count forecasts: %w", err)
	}
	return count, nil
}

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid forecast key column %q", name)
	}
	return nil
}
