package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisAdapter "github.com/olegsm/retaildesk/internal/adapters/redis"
	"github.com/olegsm/retaildesk/pkg/logger"
	"github.com/olegsm/retaildesk/pkg/models"
)

const (
	snapshotTTL  = 30 * time.Second
	listingLimit = 100
)

// QueryStore reads a user's stored queries
type QueryStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// ForecastStore reads the persisted per-symbol summaries
type ForecastStore interface {
	ListRecent(ctx context.Context, limit int) ([]models.ForecastSummary, error)
	Count(ctx context.Context) (int, error)
}

// Cache is a byte cache with TTL semantics. Get returns
// redis.ErrCacheMiss when the key is absent.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Snapshot is the dashboard view for one user: their stored queries plus
// the current per-symbol forecast summaries.
type Snapshot struct {
	UserID        string                   `json:"user_id"`
	QueryCount    int                      `json:"query_count"`
	ForecastCount int                      `json:"forecast_count"`
	Queries       []models.QueryRecord     `json:"queries"`
	Forecasts     []models.ForecastSummary `json:"forecasts"`
	GeneratedAt   time.Time                `json:"generated_at"`
}

// Service assembles dashboard snapshots with a short-lived cache in front
// of the stores. Without a cache every read hits the stores.
type Service struct {
	queryStore    QueryStore
	forecastStore ForecastStore
	cache         Cache
}

// NewService creates new dashboard service. cache may be nil.
func NewService(queryStore QueryStore, forecastStore ForecastStore, cache Cache) *Service {
	return &Service{
		queryStore:    queryStore,
		forecastStore: forecastStore,
		cache:         cache,
	}
}

// Snapshot returns the dashboard view for a user, served from cache when a
// fresh copy exists.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	key := cacheKey(userID)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var cached Snapshot
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
			// Unreadable entry, fall through to a rebuild
		} else if !errors.Is(err, redisAdapter.ErrCacheMiss) {
			logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	snapshot, err := s.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, key, data, snapshotTTL); err != nil {
				logger.Warn("dashboard cache write failed", zap.Error(err))
			}
		}
	}

	return snapshot, nil
}

// Invalidate drops a user's cached snapshot, called after their writes
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(userID)); err != nil {
		logger.Warn("dashboard cache invalidation failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (s *Service) build(ctx context.Context, userID string) (*Snapshot, error) {
	userQueries, err := s.queryStore.ListByUser(ctx, userID, listingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard queries: %w", err)
	}

	queryCount, err := s.queryStore.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard queries: %w", err)
	}

	summaries, err := s.forecastStore.ListRecent(ctx, listingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard forecasts: %w", err)
	}

	forecastCount, err := s.forecastStore.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard forecasts: %w", err)
	}

	return &Snapshot{
		UserID:        userID,
		QueryCount:    queryCount,
		ForecastCount: forecastCount,
		Queries:       userQueries,
		Forecasts:     summaries,
		GeneratedAt:   time.Now(),
	}, nil
}

func cacheKey(userID string) string {
	return "dashboard:snapshot:" + userID
}
