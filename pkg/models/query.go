package models

import (
	"time"

	"github.com/lib/pq"
)

// StockTag marks a customer query as relevant to symbol-level aggregation
const StockTag = "stock"

// QueryRecord is a stored customer query. Records are append-only: the sync
// loop reads them but never mutates them.
//
// The symbol, sentiment and volume signals were written by several prototype
// services that disagreed about field placement, so the same logical value
// may live in a dedicated column or somewhere inside Metadata.
type QueryRecord struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	Question       string         `json:"question" db:"question"`
	Answer         string         `json:"answer" db:"answer"`
	Tags           pq.StringArray `json:"tags" db:"tags"`
	StockSymbol    *string        `json:"stock_symbol" db:"stock_symbol"`
	Symbol         *string        `json:"symbol" db:"symbol"`
	Sentiment      *float64       `json:"sentiment" db:"sentiment"`
	SentimentScore *float64       `json:"sentiment_score" db:"sentiment_score"`
	SentimentIndex *float64       `json:"sentiment_index" db:"sentiment_index"`
	Volume         *float64       `json:"volume" db:"volume"`
	TradeVolume    *float64       `json:"trade_volume" db:"trade_volume"`
	Metadata       Metadata       `json:"metadata" db:"metadata"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// HasTag reports whether the record carries the given tag
func (q *QueryRecord) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
