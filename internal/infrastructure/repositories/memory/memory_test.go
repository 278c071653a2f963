package memory

import (
	"context"
	"testing"

	"eventsphere/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsRepository(t *testing.T) {
	repo := NewMemoryStatsRepository()
	ctx := context.Background()

	_, err := repo.DashboardStats(ctx)
	assert.ErrorIs(t, err, domain.ErrStatsUnavailable)

	repo.SetDashboardStats(domain.DashboardStats{TotalUsers: 5})
	stats, err := repo.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalUsers)

	// Callers get a copy.
	stats.TotalUsers = 99
	again, _ := repo.DashboardStats(ctx)
	assert.Equal(t, int64(5), again.TotalUsers)

	repo.SetOrganizerStats(domain.OrganizerStats{OrganizerID: "o1", TotalEvents: 2})
	org, err := repo.OrganizerStats(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), org.TotalEvents)

	none, err := repo.OrganizerStats(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("o2"), none.OrganizerID)
	assert.Zero(t, none.TotalEvents)
}

func TestMemoryEventRepository(t *testing.T) {
	repo := NewMemoryEventRepository()
	ctx := context.Background()

	_, err := repo.GetEvent(ctx, "e1")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	repo.Put(domain.EventInfo{ID: "e1", OrganizerID: "o1", Status: domain.EventStatusPublished})
	event, err := repo.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("o1"), event.OrganizerID)

	repo.Delete("e1")
	_, err = repo.GetEvent(ctx, "e1")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}
