// Package ingest is the in-process write path for customer queries. The
// HTTP layer that fronts this service handles validation, auth and the
// language-model call; it hands the finished record here for persistence
// and sync scheduling.
package ingest

import (
	"context"
	"fmt"

	"github.com/olegsm/retaildesk/pkg/models"
)

// QueryWriter persists customer query records
type QueryWriter interface {
	Insert(ctx context.Context, rec *models.QueryRecord) error
}

// SyncTrigger schedules a background sync run without blocking the caller
type SyncTrigger interface {
	Kick()
}

// Invalidator drops cached read views after a write
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service records customer queries and opportunistically kicks the sync
// loop after stock-tagged writes. The kick is fire-and-forget: the write's
// caller never waits for, or hears about, the triggered run.
type Service struct {
	writer      QueryWriter
	trigger     SyncTrigger
	invalidator Invalidator
}

// NewService creates new ingest service. trigger and invalidator may be nil.
func NewService(writer QueryWriter, trigger SyncTrigger, invalidator Invalidator) *Service {
	return &Service{
		writer:      writer,
		trigger:     trigger,
		invalidator: invalidator,
	}
}

// RecordQuery persists the record, refreshes dependent caches and, for
// stock-tagged records, schedules a sync run. Only the insert can fail.
func (s *Service) RecordQuery(ctx context.Context, rec *models.QueryRecord) error {
	if err := s.writer.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, rec.UserID)
	}

	if s.trigger != nil && rec.HasTag(models.StockTag) {
		s.trigger.Kick()
	}

	return nil
}
