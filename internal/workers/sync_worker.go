package workers

import (
	"context"
	"time"

	"github.com/olegsm/retaildesk/internal/adapters/clickhouse"
	"github.com/olegsm/retaildesk/internal/stocksync"
)

// RunRecorder receives observability data for completed sync runs
type RunRecorder interface {
	Record(metric clickhouse.RunMetric)
}

// SyncWorker drives the stock-signal sync loop on a schedule and records
// run metrics. Scheduled runs and write-path triggered runs may overlap;
// the orchestrator's full-replace upserts make that safe.
type SyncWorker struct {
	orch     *stocksync.Orchestrator
	recorder RunRecorder
}

// NewSyncWorker creates new sync worker. recorder may be nil.
func NewSyncWorker(orch *stocksync.Orchestrator, recorder RunRecorder) *SyncWorker {
	return &SyncWorker{
		orch:     orch,
		recorder: recorder,
	}
}

// Name implements worker.Worker
func (w *SyncWorker) Name() string {
	return "stock-signal-sync"
}

// Run implements worker.Worker: one sync loop iteration
func (w *SyncWorker) Run(ctx context.Context) error {
	started := time.Now()

	result, err := w.orch.Run(ctx)
	if err != nil {
		return err
	}

	if w.recorder != nil {
		w.recorder.Record(clickhouse.RunMetric{
			Timestamp:       started,
			DurationMs:      time.Since(started).Milliseconds(),
			FetchedCount:    result.FetchedCount,
			SymbolCount:     len(result.ProcessedSymbols),
			AlertCount:      len(result.Alerts),
			LookbackMinutes: result.LookbackMinutes,
		})
	}

	return nil
}
