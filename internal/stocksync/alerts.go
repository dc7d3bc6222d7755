package stocksync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/pkg/logger"
	"github.com/olegsm/retaildesk/pkg/models"
)

// AlertSink receives the complete alert batch of one run. It is invoked at
// most once per run and only when at least one alert was raised. Sink
// failures are logged by the orchestrator and never fail the run.
type AlertSink interface {
	Notify(ctx context.Context, alerts []models.Alert, referenceTime time.Time) error
}

// alertLevel classifies a query count against the threshold
func alertLevel(queryCount, threshold int) models.AlertLevel {
	if queryCount >= threshold*2 {
		return models.AlertLevelCritical
	}
	return models.AlertLevelWarning
}

// LogSink logs each alert at warning level. Used explicitly or as the
// fallback when no sink was configured.
type LogSink struct{}

// Notify implements AlertSink
func (LogSink) Notify(_ context.Context, alerts []models.Alert, _ time.Time) error {
	for _, alert := range alerts {
		logAlert(alert)
	}
	return nil
}

func logAlert(alert models.Alert) {
	fields := []zap.Field{
		zap.String("symbol", alert.Symbol),
		zap.Int("query_count", alert.QueryCount),
		zap.String("level", string(alert.Level)),
	}
	if alert.LastSeenAt != nil {
		fields = append(fields, zap.Time("last_seen_at", *alert.LastSeenAt))
	}
	if alert.AverageSentiment != nil {
		fields = append(fields, zap.Float64("average_sentiment", *alert.AverageSentiment))
	}
	logger.Warn("stock signal alert", fields...)
}

// FanoutSink delivers the batch to several sinks. Each sink failure is
// isolated: the remaining sinks still run and the errors are joined.
type FanoutSink []AlertSink

// Notify implements AlertSink
func (f FanoutSink) Notify(ctx context.Context, alerts []models.Alert, referenceTime time.Time) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, alerts, referenceTime); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
