package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	apperrors "eventsphere/pkg/errors"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SessionManager owns live sessions and room membership. It is the only
// writer of either.
//
// Lock order is session.mu before m.mu. Emit never holds m.mu while
// touching a session.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[domain.RoomName]map[string]*Session

	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewSessionManager(metrics ports.Metrics, logger *zap.SugaredLogger) *SessionManager {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		rooms:    make(map[domain.RoomName]map[string]*Session),
		metrics:  metrics,
		logger:   logger,
	}
}

// Connect registers s and joins the role and user rooms of its identity.
func (m *SessionManager) Connect(s *Session) error {
	rooms := domain.RoomsFor(s.identity)
	for _, room := range rooms {
		if !room.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidRoom, room)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	for _, room := range rooms {
		s.rooms[room] = struct{}{}
		m.addMemberLocked(room, s)
	}
	m.mu.Unlock()

	m.metrics.SessionOpened(s.identity.Role)
	m.logger.Infow("session connected",
		"session_id", s.id,
		"user_id", s.identity.ID,
		"role", s.identity.Role,
	)
	return nil
}

// Disconnect leaves every room, cancels the session context and closes the
// outbound queue. Only the first call does anything; it reports whether
// this call was that one.
func (m *SessionManager) Disconnect(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true

	m.mu.Lock()
	_, registered := m.sessions[s.id]
	delete(m.sessions, s.id)
	for room := range s.rooms {
		m.removeMemberLocked(room, s)
	}
	m.mu.Unlock()

	s.rooms = make(map[domain.RoomName]struct{})
	s.cancel()
	close(s.outbound)

	if registered {
		m.metrics.SessionClosed(s.identity.Role)
		m.logger.Infow("session disconnected",
			"session_id", s.id,
			"user_id", s.identity.ID,
		)
	}
	return true
}

// JoinRoom adds s to an event room. Authorization is the caller's job.
// Identity rooms are fixed at connect and cannot be joined here.
func (m *SessionManager) JoinRoom(s *Session, room domain.RoomName) error {
	if err := dynamicRoom(room); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if _, ok := s.rooms[room]; ok {
		return nil
	}
	s.rooms[room] = struct{}{}

	m.mu.Lock()
	m.addMemberLocked(room, s)
	m.mu.Unlock()
	return nil
}

// LeaveRoom removes s from an event room. Leaving a room not joined is a no-op.
func (m *SessionManager) LeaveRoom(s *Session, room domain.RoomName) error {
	if err := dynamicRoom(room); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if _, ok := s.rooms[room]; !ok {
		return nil
	}
	delete(s.rooms, room)

	m.mu.Lock()
	m.removeMemberLocked(room, s)
	m.mu.Unlock()
	return nil
}

func dynamicRoom(room domain.RoomName) error {
	if !room.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRoom, room)
	}
	if room.Scope() != "event" {
		return fmt.Errorf("%w: %q is not an event room", domain.ErrInvalidRoom, room)
	}
	return nil
}

// EmitToRoom encodes one frame and enqueues it to every live member of room.
// It returns how many sessions accepted the frame.
func (m *SessionManager) EmitToRoom(room domain.RoomName, event string, payload any) (int, error) {
	if !room.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidRoom, room)
	}
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	members := lo.Values(m.rooms[room])
	m.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if m.deliver(s, event, frame) {
			delivered++
		}
	}
	m.metrics.RoomDelivered(room.Scope(), delivered)
	return delivered, nil
}

// EmitToSession sends one frame to s only.
func (m *SessionManager) EmitToSession(s *Session, event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	if err := s.enqueue(frame); err != nil {
		if errors.Is(err, domain.ErrOutboundFull) {
			m.dropped(s, event)
		}
		return err
	}
	return nil
}

// EmitError sends an error event to s. Whatever err is, the client only
// sees its Signal form.
func (m *SessionManager) EmitError(s *Session, err error) error {
	return m.EmitToSession(s, domain.EventError, apperrors.From(err))
}

func (m *SessionManager) deliver(s *Session, event string, frame []byte) bool {
	err := s.enqueue(frame)
	if errors.Is(err, domain.ErrOutboundFull) {
		m.dropped(s, event)
	}
	return err == nil
}

func (m *SessionManager) dropped(s *Session, event string) {
	m.metrics.FrameDropped(event)
	m.logger.Warnw("outbound queue full, frame dropped",
		"session_id", s.id,
		"user_id", s.identity.ID,
		"event", event,
	)
}

// Session looks up a live session by id.
func (m *SessionManager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) Rooms(s *Session) []domain.RoomName {
	return s.Rooms()
}

func (m *SessionManager) RoomSize(room domain.RoomName) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

func (m *SessionManager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown disconnects every live session.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	sessions := lo.Values(m.sessions)
	m.mu.RUnlock()

	for _, s := range sessions {
		m.Disconnect(s)
	}
}

func (m *SessionManager) addMemberLocked(room domain.RoomName, s *Session) {
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		m.rooms[room] = members
	}
	members[s.id] = s
}

func (m *SessionManager) removeMemberLocked(room domain.RoomName, s *Session) {
	members, ok := m.rooms[room]
	if !ok {
		return
	}
	delete(members, s.id)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
}

// EncodeFrame builds the wire form of a server event. Raw JSON payloads
// are passed through untouched.
func EncodeFrame(event string, payload any) ([]byte, error) {
	env := domain.Envelope{Event: event}
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		env.Data = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}
