package services

import (
	"context"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/pkg/cache"
)

const dashboardCacheKey = "dashboard"

// CachedStatsRepository serves stats from a short-lived cache. Concurrent
// misses share one backend read. Callers get their own copy and may modify
// it.
type CachedStatsRepository struct {
	base       ports.StatsRepository
	dashboard  *cache.Cache[domain.DashboardStats]
	organizers *cache.Cache[domain.OrganizerStats]
}

// NewCachedStatsRepository wraps base. A ttl <= 0 returns base unchanged.
func NewCachedStatsRepository(base ports.StatsRepository, ttl time.Duration) ports.StatsRepository {
	if ttl <= 0 {
		return base
	}
	return &CachedStatsRepository{
		base:       base,
		dashboard:  cache.New[domain.DashboardStats](ttl),
		organizers: cache.New[domain.OrganizerStats](ttl),
	}
}

func (r *CachedStatsRepository) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	stats, err := r.dashboard.GetOrLoad(ctx, dashboardCacheKey, func(ctx context.Context) (domain.DashboardStats, error) {
		s, err := r.base.DashboardStats(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *CachedStatsRepository) OrganizerStats(ctx context.Context, organizerID domain.UserID) (*domain.OrganizerStats, error) {
	stats, err := r.organizers.GetOrLoad(ctx, string(organizerID), func(ctx context.Context) (domain.OrganizerStats, error) {
		s, err := r.base.OrganizerStats(ctx, organizerID)
		if err != nil {
			return domain.OrganizerStats{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Run prunes expired entries until ctx is done.
func (r *CachedStatsRepository) Run(ctx context.Context, interval time.Duration) {
	go r.organizers.Run(ctx, interval)
	r.dashboard.Run(ctx, interval)
}
