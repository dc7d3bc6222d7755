package realtime

import (
	"context"
	"time"

	"github.com/olegsm/retaildesk/pkg/models"
)

// AlertSink publishes each run's alert batch on the websocket feed
type AlertSink struct {
	hub *Hub
}

// NewAlertSink creates a sink backed by the given hub
func NewAlertSink(hub *Hub) *AlertSink {
	return &AlertSink{hub: hub}
}

// Notify implements the sync loop's alert sink
func (s *AlertSink) Notify(_ context.Context, alerts []models.Alert, referenceTime time.Time) error {
	s.hub.Broadcast("stock_alerts", map[string]interface{}{
		"reference_time": referenceTime,
		"alerts":         alerts,
	})
	return nil
}
