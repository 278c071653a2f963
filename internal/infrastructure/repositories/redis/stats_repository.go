package redis

import (
	"context"
	"fmt"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// dashboardRecord is the hash the API layer maintains under eb:stats:dashboard.
type dashboardRecord struct {
	TotalUsers    int64   `redis:"total_users"`
	TotalEvents   int64   `redis:"total_events"`
	TotalBookings int64   `redis:"total_bookings"`
	TotalRevenue  float64 `redis:"total_revenue"`
}

// organizerRecord is the hash under eb:stats:organizer:<id>.
type organizerRecord struct {
	TotalEvents    int64   `redis:"total_events"`
	UpcomingEvents int64   `redis:"upcoming_events"`
	TotalBookings  int64   `redis:"total_bookings"`
	TotalRevenue   float64 `redis:"total_revenue"`
}

type RedisStatsRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStatsRepository(client *redis.Client) ports.StatsRepository {
	return &RedisStatsRepository{
		client: client,
		prefix: "eb:stats:",
		now:    time.Now,
	}
}

func (r *RedisStatsRepository) dashboardKey() string {
	return r.prefix + "dashboard"
}

func (r *RedisStatsRepository) organizerKey(id domain.UserID) string {
	return r.prefix + "organizer:" + string(id)
}

// DashboardStats fails with ErrStatsUnavailable until the API layer has
// written the hash at least once.
func (r *RedisStatsRepository) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	cmd := r.client.HGetAll(ctx, r.dashboardKey())
	fields, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard stats: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrStatsUnavailable
	}

	var rec dashboardRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard stats: %w", err)
	}

	return &domain.DashboardStats{
		TotalUsers:    rec.TotalUsers,
		TotalEvents:   rec.TotalEvents,
		TotalBookings: rec.TotalBookings,
		TotalRevenue:  rec.TotalRevenue,
		GeneratedAt:   r.now().UTC(),
	}, nil
}

// OrganizerStats reports zeros for an organizer with no hash yet.
func (r *RedisStatsRepository) OrganizerStats(ctx context.Context, organizerID domain.UserID) (*domain.OrganizerStats, error) {
	cmd := r.client.HGetAll(ctx, r.organizerKey(organizerID))
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organizer stats: %w", err)
	}

	var rec organizerRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode organizer stats: %w", err)
	}

	return &domain.OrganizerStats{
		OrganizerID:    organizerID,
		TotalEvents:    rec.TotalEvents,
		UpcomingEvents: rec.UpcomingEvents,
		TotalBookings:  rec.TotalBookings,
		TotalRevenue:   rec.TotalRevenue,
		GeneratedAt:    r.now().UTC(),
	}, nil
}
