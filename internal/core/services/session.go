package services

import (
	"context"
	"slices"
	"sync"

	"eventsphere/internal/core/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Session is one authenticated connection as seen by the fabric. The socket
// itself belongs to the gateway, which drains Outbound.
type Session struct {
	id       string
	identity domain.Identity

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	rooms    map[domain.RoomName]struct{}
	closed   bool
	outbound chan []byte
}

// NewSession creates an unconnected session whose context derives from parent.
func NewSession(parent context.Context, identity domain.Identity, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:       uuid.NewString(),
		identity: identity,
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[domain.RoomName]struct{}),
		outbound: make(chan []byte, bufferSize),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Identity() domain.Identity {
	return s.identity
}

// Context is cancelled when the session disconnects.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Outbound yields encoded frames and is closed on disconnect.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Rooms returns the joined rooms in sorted order.
func (s *Session) Rooms() []domain.RoomName {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := lo.Keys(s.rooms)
	slices.Sort(rooms)
	return rooms
}

// enqueue never blocks. A full queue drops the frame.
func (s *Session) enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	select {
	case s.outbound <- frame:
		return nil
	default:
		return domain.ErrOutboundFull
	}
}
