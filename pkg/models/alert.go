package models

import "time"

// AlertLevel classifies how far a symbol's query volume exceeds the
// configured threshold.
type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"  // queryCount >= threshold
	AlertLevelCritical AlertLevel = "critical" // queryCount >= 2 * threshold
)

// Alert is raised when a symbol's query volume within one sync window
// crosses the alert threshold. Alerts are never persisted; they are handed
// to the configured sink and dropped.
type Alert struct {
	Symbol           string     `json:"symbol"`
	QueryCount       int        `json:"query_count"`
	LastSeenAt       *time.Time `json:"last_seen_at"`
	AverageSentiment *float64   `json:"average_sentiment"`
	Level            AlertLevel `json:"level"`
}
