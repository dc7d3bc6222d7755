package queries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/olegsm/retaildesk/pkg/models"
)

// Repository handles database operations for customer queries
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new queries repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists an answered customer query. Tags are lowercased on write
// so tag membership checks stay case-insensitive. The generated id and
// creation timestamp are written back into rec.
func (r *Repository) Insert(ctx context.Context, rec *models.QueryRecord) error {
	tags := make([]string, 0, len(rec.Tags))
	for _, tag := range rec.Tags {
		tags = append(tags, strings.ToLower(strings.TrimSpace(tag)))
	}

	query := `
		INSERT INTO customer_queries (
			user_id, question, answer, tags,
			stock_symbol, symbol, sentiment, sentiment_score, sentiment_index,
			volume, trade_volume, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		rec.UserID,
		rec.Question,
		rec.Answer,
		pq.Array(tags),
		rec.StockSymbol,
		rec.Symbol,
		rec.Sentiment,
		rec.SentimentScore,
		rec.SentimentIndex,
		rec.Volume,
		rec.TradeVolume,
		rec.Metadata,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert customer query: %w", err)
	}

	rec.Tags = tags
	return nil
}

// FetchStockTaggedSince returns all stock-tagged queries created at or after
// since. Ordering is unspecified; the aggregation downstream is
// order-independent.
func (r *Repository) FetchStockTaggedSince(ctx context.Context, since time.Time) ([]models.QueryRecord, error) {
	query := `
		SELECT id, user_id, question, answer, tags,
		       stock_symbol, symbol, sentiment, sentiment_score, sentiment_index,
		       volume, trade_volume, metadata, created_at
		FROM customer_queries
		WHERE tags @> $1 AND created_at >= $2
	`

	var records []models.QueryRecord
	err := r.db.SelectContext(ctx, &records, query, pq.Array([]string{models.StockTag}), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock-tagged records: %w", err)
	}

	return records, nil
}

// ListByUser returns a user's queries, newest first
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, user_id, question, answer, tags,
		       stock_symbol, symbol, sentiment, sentiment_score, sentiment_index,
		       volume, trade_volume, metadata, created_at
		FROM customer_queries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var records []models.QueryRecord
	err := r.db.SelectContext(ctx, &records, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries for user: %w", err)
	}

	return records, nil
}

// CountByUser returns how many queries a user has stored
func (r *Repository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM customer_queries WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count queries for user: %w", err)
	}
	return count, nil
}
