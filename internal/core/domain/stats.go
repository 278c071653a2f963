package domain

import "time"

type EventID string

type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// EventInfo is the slice of an event needed to authorize an event room join.
type EventInfo struct {
	ID          EventID
	OrganizerID UserID
	Status      EventStatus
}

// VisibleTo reports whether identity may follow live updates of the event.
// Published and cancelled events are public; drafts are visible to their
// organizer and to admins.
func (e EventInfo) VisibleTo(identity Identity) bool {
	if identity.IsAdmin() || e.OrganizerID == identity.ID {
		return true
	}
	return e.Status == EventStatusPublished || e.Status == EventStatusCancelled
}

type DashboardStats struct {
	TotalUsers    int64     `json:"totalUsers"`
	TotalEvents   int64     `json:"totalEvents"`
	TotalBookings int64     `json:"totalBookings"`
	TotalRevenue  float64   `json:"totalRevenue"`
	OnlineUsers   int64     `json:"onlineUsers"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

type OrganizerStats struct {
	OrganizerID    UserID    `json:"organizerId"`
	TotalEvents    int64     `json:"totalEvents"`
	UpcomingEvents int64     `json:"upcomingEvents"`
	TotalBookings  int64     `json:"totalBookings"`
	TotalRevenue   float64   `json:"totalRevenue"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

type OnlineUpdate struct {
	OnlineUsers int64 `json:"onlineUsers"`
}
