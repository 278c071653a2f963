package socket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/internal/core/services"
	apperrors "eventsphere/pkg/errors"
)

const (
	EventJoinEvent  = "join_event"
	EventLeaveEvent = "leave_event"
	EventPing       = "ping"
)

type eventRoomRequest struct {
	EventID string `json:"eventId" validate:"required,resource_id"`
}

type eventRoomReply struct {
	EventID domain.EventID  `json:"eventId"`
	Room    domain.RoomName `json:"room"`
}

type pongReply struct {
	Time int64 `json:"time"`
}

// EventRoomHandler lets a session follow live updates of one event.
type EventRoomHandler struct {
	events   ports.EventRepository
	sessions *services.SessionManager
	now      func() time.Time
}

func NewEventRoomHandler(events ports.EventRepository, sessions *services.SessionManager) *EventRoomHandler {
	return &EventRoomHandler{
		events:   events,
		sessions: sessions,
		now:      time.Now,
	}
}

func (h *EventRoomHandler) SetupRoutes(router *Router) {
	router.Handle(EventJoinEvent, h.JoinEvent)
	router.Handle(EventLeaveEvent, h.LeaveEvent)
	router.Handle(EventPing, h.Ping)
}

func (h *EventRoomHandler) JoinEvent(ctx context.Context, s *services.Session, data json.RawMessage) error {
	var req eventRoomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	id := domain.EventID(req.EventID)

	event, err := h.events.GetEvent(ctx, id)
	if errors.Is(err, domain.ErrEventNotFound) {
		return apperrors.NotFound("event")
	}
	if err != nil {
		return apperrors.SocketError(err)
	}
	if !event.VisibleTo(s.Identity()) {
		return apperrors.Forbidden("event is not visible to this user")
	}

	room := domain.RoomForEvent(id)
	if err := h.sessions.JoinRoom(s, room); err != nil {
		return apperrors.SocketError(err)
	}
	return h.sessions.EmitToSession(s, domain.EventEventJoined, eventRoomReply{EventID: id, Room: room})
}

func (h *EventRoomHandler) LeaveEvent(_ context.Context, s *services.Session, data json.RawMessage) error {
	var req eventRoomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	id := domain.EventID(req.EventID)

	room := domain.RoomForEvent(id)
	if err := h.sessions.LeaveRoom(s, room); err != nil {
		return apperrors.SocketError(err)
	}
	return h.sessions.EmitToSession(s, domain.EventEventLeft, eventRoomReply{EventID: id, Room: room})
}

// Ping is an application level heartbeat for clients that cannot see
// protocol pings.
func (h *EventRoomHandler) Ping(_ context.Context, s *services.Session, _ json.RawMessage) error {
	return h.sessions.EmitToSession(s, domain.EventPong, pongReply{Time: h.now().UnixMilli()})
}
