package stocksync

import (
	"time"

	"github.com/olegsm/retaildesk/pkg/models"
)

// SymbolSummary accumulates the signals for one symbol over a sync window.
// Built fresh each run; only its derived fields are persisted.
type SymbolSummary struct {
	Symbol           string
	QueryCount       int
	LastSeenAt       *time.Time
	SentimentTotal   float64
	SentimentSamples int
	CumulativeVolume float64
}

// AverageSentiment derives the mean sentiment, or nil when no record in the
// window carried a sentiment signal.
func (s *SymbolSummary) AverageSentiment() *float64 {
	if s.SentimentSamples == 0 {
		return nil
	}
	avg := s.SentimentTotal / float64(s.SentimentSamples)
	return &avg
}

// Aggregate groups extracted signals by symbol. Records without a resolvable
// symbol are skipped. Accumulation is sum and max only, so iteration order
// never affects the result.
func Aggregate(records []models.QueryRecord) map[string]*SymbolSummary {
	summaries := make(map[string]*SymbolSummary)

	for i := range records {
		rec := &records[i]

		sig := Extract(rec)
		if sig.Symbol == "" {
			continue
		}

		summary, ok := summaries[sig.Symbol]
		if !ok {
			summary = &SymbolSummary{Symbol: sig.Symbol}
			summaries[sig.Symbol] = summary
		}

		summary.QueryCount++

		// Zero timestamps are treated as absent
		if !rec.CreatedAt.IsZero() {
			if summary.LastSeenAt == nil || rec.CreatedAt.After(*summary.LastSeenAt) {
				seen := rec.CreatedAt
				summary.LastSeenAt = &seen
			}
		}

		if sig.Sentiment != nil {
			summary.SentimentTotal += *sig.Sentiment
			summary.SentimentSamples++
		}

		if sig.Volume != nil {
			summary.CumulativeVolume += *sig.Volume
		}
	}

	return summaries
}
