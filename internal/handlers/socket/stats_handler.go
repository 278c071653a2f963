package socket

import (
	"context"
	"encoding/json"
	"errors"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/internal/core/services"
	apperrors "eventsphere/pkg/errors"

	"go.uber.org/zap"
)

const (
	EventRequestAdminStats     = "request_admin_stats"
	EventRequestOrganizerStats = "request_organizer_stats"
)

// StatsHandler answers dashboard stats requests on the requesting
// connection only.
type StatsHandler struct {
	stats    ports.StatsRepository
	presence ports.PresenceRegistry
	sessions *services.SessionManager
	logger   *zap.SugaredLogger
}

func NewStatsHandler(
	stats ports.StatsRepository,
	presence ports.PresenceRegistry,
	sessions *services.SessionManager,
	logger *zap.SugaredLogger,
) *StatsHandler {
	return &StatsHandler{
		stats:    stats,
		presence: presence,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *StatsHandler) SetupRoutes(router *Router) {
	router.Handle(EventRequestAdminStats, h.AdminStats)
	router.Handle(EventRequestOrganizerStats, h.OrganizerStats)
}

// AdminStats is ADMIN only. The online count comes from the presence
// registry so it covers every process.
func (h *StatsHandler) AdminStats(ctx context.Context, s *services.Session, _ json.RawMessage) error {
	if s.Identity().Role != domain.RoleAdmin {
		return apperrors.AuthFailed(errors.New("admin stats requested by non-admin"))
	}

	stats, err := h.stats.DashboardStats(ctx)
	if err != nil {
		return statsError(err)
	}

	if h.presence != nil {
		online, err := h.presence.OnlineCount(ctx)
		if err != nil {
			h.logger.Warnw("failed to read online count", "error", err)
		} else {
			stats.OnlineUsers = online
		}
	}

	return h.sessions.EmitToSession(s, domain.EventDashboardStatsUpdate, stats)
}

// OrganizerStats is ORGANIZER only and always answers with the caller's
// own figures.
func (h *StatsHandler) OrganizerStats(ctx context.Context, s *services.Session, _ json.RawMessage) error {
	identity := s.Identity()
	if identity.Role != domain.RoleOrganizer {
		return apperrors.AuthFailed(errors.New("organizer stats requested by non-organizer"))
	}

	stats, err := h.stats.OrganizerStats(ctx, identity.ID)
	if err != nil {
		return statsError(err)
	}
	stats.OrganizerID = identity.ID

	return h.sessions.EmitToSession(s, domain.EventOrganizerStatsUpdate, stats)
}

func statsError(err error) error {
	if errors.Is(err, domain.ErrStatsUnavailable) {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "stats temporarily unavailable")
	}
	return apperrors.SocketError(err)
}
