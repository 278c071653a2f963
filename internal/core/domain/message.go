package domain

import "encoding/json"

// Channel is a bus channel name.
type Channel string

const (
	ChannelNotifications Channel = "eb:chan:notifications"
	ChannelAdmin         Channel = "eb:chan:admin_notifications"
)

// Channels lists every channel the bridge subscribes to.
func Channels() []Channel {
	return []Channel{ChannelNotifications, ChannelAdmin}
}

func (c Channel) Known() bool {
	return c == ChannelNotifications || c == ChannelAdmin
}

// DefaultRoom is where a message without a target room goes.
// The notifications channel has none.
func (c Channel) DefaultRoom() (RoomName, bool) {
	if c == ChannelAdmin {
		return AdminRoom(), true
	}
	return "", false
}

// ChannelMessage is the wire shape carried over the bus.
type ChannelMessage struct {
	Channel    Channel         `json:"channel,omitempty" validate:"omitempty,oneof=eb:chan:notifications eb:chan:admin_notifications"`
	EventType  string          `json:"eventType" validate:"required,max=128"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	TargetRoom RoomName        `json:"targetRoom,omitempty" validate:"omitempty,max=256"`
}

// Well-known server event names.
const (
	EventError                = "error"
	EventDashboardStatsUpdate = "dashboard_stats_update"
	EventOrganizerStatsUpdate = "organizer_stats_update"
	EventDashboardOnline      = "dashboard_online_update"
	EventEventJoined          = "event_joined"
	EventEventLeft            = "event_left"
	EventPong                 = "pong"
)

// Envelope is a server to client frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientFrame is a client to server frame.
type ClientFrame struct {
	Event string          `json:"event" validate:"required,max=64"`
	Data  json.RawMessage `json:"data,omitempty"`
}
