package memory

import (
	"context"
	"sync"
	"time"

	"eventsphere/internal/core/domain"
)

// MemoryStatsRepository serves stats seeded in process, for single node
// runs and tests.
type MemoryStatsRepository struct {
	dashboard  *domain.DashboardStats
	organizers map[domain.UserID]domain.OrganizerStats
	mu         sync.RWMutex
}

func NewMemoryStatsRepository() *MemoryStatsRepository {
	return &MemoryStatsRepository{
		organizers: make(map[domain.UserID]domain.OrganizerStats),
	}
}

func (r *MemoryStatsRepository) SetDashboardStats(stats domain.DashboardStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dashboard = &stats
}

func (r *MemoryStatsRepository) SetOrganizerStats(stats domain.OrganizerStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.organizers[stats.OrganizerID] = stats
}

func (r *MemoryStatsRepository) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.dashboard == nil {
		return nil, domain.ErrStatsUnavailable
	}
	stats := *r.dashboard
	stats.GeneratedAt = time.Now().UTC()
	return &stats, nil
}

func (r *MemoryStatsRepository) OrganizerStats(ctx context.Context, organizerID domain.UserID) (*domain.OrganizerStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.organizers[organizerID]
	stats.OrganizerID = organizerID
	stats.GeneratedAt = time.Now().UTC()
	return &stats, nil
}
