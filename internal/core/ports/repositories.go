package ports

import (
	"context"

	"eventsphere/internal/core/domain"
)

// StatsRepository reads aggregate figures maintained by the API layer.
type StatsRepository interface {
	DashboardStats(ctx context.Context) (*domain.DashboardStats, error)
	OrganizerStats(ctx context.Context, organizerID domain.UserID) (*domain.OrganizerStats, error)
}

// EventRepository resolves events for room authorization.
type EventRepository interface {
	GetEvent(ctx context.Context, id domain.EventID) (*domain.EventInfo, error)
}

// PresenceRegistry counts live connections across every process.
type PresenceRegistry interface {
	Register(ctx context.Context, sessionID string, identity domain.Identity) error
	Unregister(ctx context.Context, sessionID string) error
	OnlineCount(ctx context.Context) (int64, error)
	Heartbeat(ctx context.Context) error
	// Cleanup drops this process's entries on graceful shutdown.
	Cleanup(ctx context.Context) error
}
