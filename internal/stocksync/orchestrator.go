package stocksync

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/pkg/logger"
	"github.com/olegsm/retaildesk/pkg/models"
)

const (
	DefaultLookbackMinutes = 30
	DefaultAlertThreshold  = 25
	DefaultIdentifierField = "symbol"
)

// QueryStore reads recent stock-tagged query records. The orchestrator does
// not own the underlying schema.
type QueryStore interface {
	FetchStockTaggedSince(ctx context.Context, since time.Time) ([]models.QueryRecord, error)
}

// UpsertOp is one per-symbol forecast write within an atomic batch
type UpsertOp struct {
	Symbol string
	Update models.ForecastUpdate
}

// ForecastStore applies a batch of per-symbol upserts all-or-nothing.
// keyColumn names the unique column the upserts key on.
type ForecastStore interface {
	UpsertBatch(ctx context.Context, keyColumn string, ops []UpsertOp) error
}

// Options configures an Orchestrator. The zero value gets the documented
// defaults applied by NewOrchestrator.
type Options struct {
	// LookbackMinutes is the trailing window size. Default 30.
	LookbackMinutes int
	// AlertThreshold is the query count at which a symbol alerts. Default 25;
	// a negative value disables alerting.
	AlertThreshold int
	// Now supplies the reference time, injectable for deterministic runs.
	// Default time.Now.
	Now func() time.Time
	// IdentifierField is the forecast upsert key column. Default "symbol".
	IdentifierField string
	// Sink receives the alert batch. When nil each alert is logged instead.
	Sink AlertSink
}

// Result is the full observable output of one run besides persisted state
// and alert sink side effects.
type Result struct {
	ProcessedSymbols []string       `json:"processed_symbols"`
	Alerts           []models.Alert `json:"alerts"`
	LookbackMinutes  int            `json:"lookback_minutes"`
	Cutoff           time.Time      `json:"cutoff"`
	// FetchedCount includes records that resolved no symbol, for observability
	FetchedCount int `json:"fetched_count"`
}

// Orchestrator runs the stock-signal sync loop: fetch the window, extract
// and aggregate signals, upsert forecast summaries atomically, raise alerts.
// Each run is self-contained, so concurrent or repeated runs are safe; the
// last completed run wins per symbol.
type Orchestrator struct {
	queries   QueryStore
	forecasts ForecastStore
	opts      Options
}

// NewOrchestrator creates an orchestrator with explicit store handles
func NewOrchestrator(queries QueryStore, forecasts ForecastStore, opts Options) *Orchestrator {
	if opts.LookbackMinutes <= 0 {
		opts.LookbackMinutes = DefaultLookbackMinutes
	}
	if opts.AlertThreshold == 0 {
		opts.AlertThreshold = DefaultAlertThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdentifierField == "" {
		opts.IdentifierField = DefaultIdentifierField
	}

	return &Orchestrator{
		queries:   queries,
		forecasts: forecasts,
		opts:      opts,
	}
}

// Run executes one sync loop iteration. It fails with *StoreUnavailableError
// when the fetch errors and *PersistenceError when the upsert batch errors;
// nothing is retried internally. An empty window is a normal outcome.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	referenceTime := o.opts.Now()
	cutoff := referenceTime.Add(-time.Duration(o.opts.LookbackMinutes) * time.Minute)

	records, err := o.queries.FetchStockTaggedSince(ctx, cutoff)
	if err != nil {
		logger.Error("unable to retrieve recent stock-tagged queries", zap.Error(err))
		return nil, &StoreUnavailableError{Err: err}
	}

	result := &Result{
		ProcessedSymbols: []string{},
		Alerts:           []models.Alert{},
		LookbackMinutes:  o.opts.LookbackMinutes,
		Cutoff:           cutoff,
		FetchedCount:     len(records),
	}

	if len(records) == 0 {
		logger.Debug("no stock-tagged queries in window",
			zap.Time("cutoff", cutoff),
		)
		return result, nil
	}

	summaries := Aggregate(records)

	symbols := make([]string, 0, len(summaries))
	for symbol := range summaries {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	ops := make([]UpsertOp, 0, len(summaries))
	for _, symbol := range symbols {
		summary := summaries[symbol]
		averageSentiment := summary.AverageSentiment()

		// A window with no volume signal persists NULL, not zero. The
		// original service also nulled a genuine zero sum; preserved here
		// until the data contract says otherwise.
		var cumulativeVolume *float64
		if summary.CumulativeVolume != 0 {
			volume := summary.CumulativeVolume
			cumulativeVolume = &volume
		}

		ops = append(ops, UpsertOp{
			Symbol: symbol,
			Update: models.ForecastUpdate{
				LastSyncedAt:     referenceTime,
				LastSignalAt:     summary.LastSeenAt,
				QueryCount:       summary.QueryCount,
				AverageSentiment: averageSentiment,
				CumulativeVolume: cumulativeVolume,
			},
		})

		result.ProcessedSymbols = append(result.ProcessedSymbols, symbol)

		if o.opts.AlertThreshold > 0 && summary.QueryCount >= o.opts.AlertThreshold {
			result.Alerts = append(result.Alerts, models.Alert{
				Symbol:           symbol,
				QueryCount:       summary.QueryCount,
				LastSeenAt:       summary.LastSeenAt,
				AverageSentiment: averageSentiment,
				Level:            alertLevel(summary.QueryCount, o.opts.AlertThreshold),
			})
		}
	}

	if len(ops) > 0 {
		if err := o.forecasts.UpsertBatch(ctx, o.opts.IdentifierField, ops); err != nil {
			logger.Error("failed to persist forecast updates", zap.Error(err))
			return nil, &PersistenceError{Err: err}
		}
	}

	o.dispatchAlerts(ctx, result.Alerts, referenceTime)

	logger.Info("sync loop completed",
		zap.Int("fetched", result.FetchedCount),
		zap.Int("symbols", len(result.ProcessedSymbols)),
		zap.Int("alerts", len(result.Alerts)),
		zap.Time("cutoff", cutoff),
	)

	return result, nil
}

// dispatchAlerts hands the batch to the configured sink, falling back to
// per-alert warning logs. Sink failures never fail the run.
func (o *Orchestrator) dispatchAlerts(ctx context.Context, alerts []models.Alert, referenceTime time.Time) {
	if len(alerts) == 0 {
		return
	}

	if o.opts.Sink == nil {
		for _, alert := range alerts {
			logAlert(alert)
		}
		return
	}

	if err := o.opts.Sink.Notify(ctx, alerts, referenceTime); err != nil {
		logger.Error("alert sink failed", zap.Error(err))
	}
}
