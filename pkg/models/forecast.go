package models

import "time"

// ForecastSummary is the persisted per-symbol rolling aggregate. The sync
// loop is the sole writer of the aggregate columns; each run fully replaces
// them from its own window rather than merging incrementally.
type ForecastSummary struct {
	Symbol           string     `json:"symbol" db:"symbol"`
	LastSyncedAt     *time.Time `json:"last_synced_at" db:"last_synced_at"`
	LastSignalAt     *time.Time `json:"last_signal_at" db:"last_signal_at"`
	QueryCount       int        `json:"query_count" db:"query_count"`
	AverageSentiment *float64   `json:"average_sentiment" db:"average_sentiment"`
	CumulativeVolume *float64   `json:"cumulative_volume" db:"cumulative_volume"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// ForecastUpdate carries the aggregate fields one sync run writes for one
// symbol. A nil CumulativeVolume persists as NULL.
type ForecastUpdate struct {
	LastSyncedAt     time.Time
	LastSignalAt     *time.Time
	QueryCount       int
	AverageSentiment *float64
	CumulativeVolume *float64
}
