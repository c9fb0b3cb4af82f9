package cache

import (
	"context"
	"time"

	"tokopos/backend/internal/domain"
)

// StatsCache fronts the dashboard aggregation. The dashboard recomputes
// counts across several tables per hit, so results are cached with a short
// TTL; a miss just recomputes.
type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardStats, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}
