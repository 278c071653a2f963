package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/internal/core/services"
	"eventsphere/internal/infrastructure/middleware"
	"eventsphere/pkg/config"
	apperrors "eventsphere/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher handles one inbound client frame. socket.Router implements it.
type Dispatcher interface {
	Dispatch(s *services.Session, raw []byte)
}

type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBufferSize    int
	MaxMessageBytes   int64
	AllowedOrigins    []string
	EnableCompression bool
	// NewLimiter returns the inbound frame limiter for a new connection.
	// Nil, or a nil limiter, disables the limit.
	NewLimiter func() *rate.Limiter
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PingInterval:      cfg.Socket.PingInterval,
		PongTimeout:       cfg.Socket.PongTimeout,
		WriteTimeout:      cfg.Socket.WriteTimeout,
		SendBufferSize:    cfg.Socket.SendBufferSize,
		MaxMessageBytes:   cfg.Socket.MaxMessageBytes,
		AllowedOrigins:    cfg.Socket.AllowedOrigins,
		EnableCompression: cfg.Socket.EnableCompression,
		NewLimiter: func() *rate.Limiter {
			return middleware.NewMessageLimiter(cfg)
		},
	}
}

// WebSocketServer owns the sockets. Each connection gets a read pump on the
// handler goroutine and a write pump draining the session outbound queue.
type WebSocketServer struct {
	sessions   *services.SessionManager
	dispatcher Dispatcher
	presence   ports.PresenceRegistry
	publisher  ports.Publisher

	upgrader websocket.Upgrader
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	logger *zap.SugaredLogger
}

func NewWebSocketServer(
	sessions *services.SessionManager,
	dispatcher Dispatcher,
	presence ports.PresenceRegistry,
	publisher ports.Publisher,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketServer{
		sessions:   sessions,
		dispatcher: dispatcher,
		presence:   presence,
		publisher:  publisher,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout:  opts.WriteTimeout,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		EnableCompression: opts.EnableCompression,
		CheckOrigin:       s.checkOrigin,
	}
	return s
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and origins listed in AllowedOrigins. "*" allows any origin.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || lo.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return lo.ContainsBy(s.opts.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host)
	})
}

// Handle upgrades an authenticated request. It must run behind
// middleware.AuthMiddleware and returns when the connection is gone.
func (s *WebSocketServer) Handle(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		sig := apperrors.AuthRequired()
		c.AbortWithStatusJSON(sig.HTTPStatus(), sig)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warnw("websocket upgrade failed", "error", err, "remote_addr", c.ClientIP())
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	session := services.NewSession(s.ctx, identity, s.opts.SendBufferSize)
	if err := s.sessions.Connect(session); err != nil {
		s.logger.Warnw("session rejected", "user_id", identity.ID, "error", err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "session rejected")
		return
	}

	s.logger.Infow("session connected",
		"session_id", session.ID(),
		"user_id", identity.ID,
		"role", identity.Role,
		"remote_addr", c.ClientIP(),
	)
	s.onConnected(session)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, session)
	}()
	// Runs on panics too. Disconnect closes the outbound queue, which ends
	// the write pump and closes conn.
	defer func() {
		s.disconnect(session)
		<-writerDone
	}()

	s.readPump(conn, session)
}

func (s *WebSocketServer) readPump(conn *websocket.Conn, session *services.Session) {
	if s.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.opts.MaxMessageBytes)
	}
	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	var limiter *rate.Limiter
	if s.opts.NewLimiter != nil {
		limiter = s.opts.NewLimiter()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && !session.Closed() {
				s.logger.Infow("error reading from session", "session_id", session.ID(), "error", err)
			}
			return
		}
		extend()

		if limiter != nil && !limiter.Allow() {
			_ = s.sessions.EmitError(session, apperrors.RateLimited())
			continue
		}
		s.dispatcher.Dispatch(session, data)
	}
}

// writePump is the only writer on conn. It closes conn on exit, which also
// ends the read pump.
func (s *WebSocketServer) writePump(conn *websocket.Conn, session *services.Session) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debugw("write failed", "session_id", session.ID(), "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debugw("ping failed", "session_id", session.ID(), "error", err)
				return
			}
		}
	}
}

func (s *WebSocketServer) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.opts.WriteTimeout))
	_ = conn.Close()
}

// disconnect runs the disconnect hooks once per session. Sessions torn
// down by Shutdown skip them; presence Cleanup covers that case.
func (s *WebSocketServer) disconnect(session *services.Session) {
	if !s.sessions.Disconnect(session) {
		return
	}
	s.logger.Infow("session disconnected", "session_id", session.ID(), "user_id", session.Identity().ID)

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := s.presence.Unregister(ctx, session.ID()); err != nil {
		s.logger.Warnw("failed to unregister presence", "session_id", session.ID(), "error", err)
	}
	s.publishOnline(ctx)
}

func (s *WebSocketServer) onConnected(session *services.Session) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := s.presence.Register(ctx, session.ID(), session.Identity()); err != nil {
		s.logger.Warnw("failed to register presence", "session_id", session.ID(), "error", err)
	}
	s.publishOnline(ctx)
}

// publishOnline sends the current online count to the admin room of every
// process.
func (s *WebSocketServer) publishOnline(ctx context.Context) {
	count, err := s.presence.OnlineCount(ctx)
	if err != nil {
		s.logger.Warnw("failed to count online users", "error", err)
		return
	}
	payload, err := json.Marshal(domain.OnlineUpdate{OnlineUsers: count})
	if err != nil {
		return
	}
	err = s.publisher.Publish(ctx, domain.ChannelMessage{
		Channel:   domain.ChannelAdmin,
		EventType: domain.EventDashboardOnline,
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warnw("failed to publish online update", "online_users", count, "error", err)
	}
}

// Shutdown disconnects every session and waits for the connection
// goroutines to finish or ctx to end.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.cancel()
	s.sessions.Shutdown()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
