package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/internal/adapters/config"
	"github.com/olegsm/retaildesk/pkg/logger"
)

// RunMetric records one completed sync loop run
type RunMetric struct {
	Timestamp       time.Time
	DurationMs      int64
	FetchedCount    int
	SymbolCount     int
	AlertCount      int
	LookbackMinutes int
}

// Connect opens a clickhouse connection for run metrics
func Connect(cfg *config.ClickHouseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	logger.Info("clickhouse connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return db, nil
}

// MetricsRecorder buffers run metrics and flushes them in batches.
// Recording is best-effort: flush failures are logged and dropped so the
// sync loop never fails because of observability.
type MetricsRecorder struct {
	db          *sqlx.DB
	buffer      []RunMetric
	bufferMu    sync.Mutex
	maxBatch    int
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMetricsRecorder creates a recorder flushing every interval or when the
// buffer reaches maxBatch rows, whichever comes first.
func NewMetricsRecorder(db *sqlx.DB, maxBatch int, interval time.Duration) *MetricsRecorder {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	mr := &MetricsRecorder{
		db:          db,
		buffer:      make([]RunMetric, 0, maxBatch),
		maxBatch:    maxBatch,
		flushTicker: time.NewTicker(interval),
		stopCh:      make(chan struct{}),
	}

	mr.wg.Add(1)
	go mr.autoFlush()

	return mr
}

// Record adds one run metric to the buffer
func (mr *MetricsRecorder) Record(metric RunMetric) {
	mr.bufferMu.Lock()
	mr.buffer = append(mr.buffer, metric)
	shouldFlush := len(mr.buffer) >= mr.maxBatch
	mr.bufferMu.Unlock()

	if shouldFlush {
		mr.flush()
	}
}

// autoFlush flushes the buffer periodically
func (mr *MetricsRecorder) autoFlush() {
	defer mr.wg.Done()

	for {
		select {
		case <-mr.flushTicker.C:
			mr.flush()
		case <-mr.stopCh:
			mr.flush()
			return
		}
	}
}

// flush writes buffered metrics to clickhouse
func (mr *MetricsRecorder) flush() {
	mr.bufferMu.Lock()
	if len(mr.buffer) == 0 {
		mr.bufferMu.Unlock()
		return
	}
	batch := mr.buffer
	mr.buffer = make([]RunMetric, 0, mr.maxBatch)
	mr.bufferMu.Unlock()

	placeholders := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*6)
	for i, m := range batch {
		placeholders[i] = "(?, ?, ?, ?, ?, ?)"
		args = append(args,
			m.Timestamp,
			m.DurationMs,
			m.FetchedCount,
			m.SymbolCount,
			m.AlertCount,
			m.LookbackMinutes,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO sync_run_metrics (timestamp, duration_ms, fetched_count, symbol_count, alert_count, lookback_minutes) VALUES %s",
		strings.Join(placeholders, ", "),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := mr.db.ExecContext(ctx, query, args...); err != nil {
		logger.Error("failed to flush run metrics, dropping batch",
			zap.Int("rows", len(batch)),
			zap.Error(err),
		)
		return
	}

	logger.Debug("run metrics flushed",
		zap.Int("rows", len(batch)),
	)
}

// Close flushes remaining metrics and stops the recorder
func (mr *MetricsRecorder) Close() {
	mr.flushTicker.Stop()
	close(mr.stopCh)
	mr.wg.Wait()
}
