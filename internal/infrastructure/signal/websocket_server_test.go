package signal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/internal/core/services"
	"eventsphere/internal/handlers/socket"
	"eventsphere/internal/infrastructure/distributed"
	"eventsphere/internal/infrastructure/middleware"
	"eventsphere/internal/infrastructure/repositories/memory"
	"eventsphere/pkg/retry"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const testWait = 2 * time.Second

type gateway struct {
	url      string
	auth     services.AuthService
	bridge   *services.BusBridge
	sessions *services.SessionManager
	presence ports.PresenceRegistry
	stats    *memory.MemoryStatsRepository
	server   *WebSocketServer
}

func newGateway(t *testing.T, tweak func(*Options)) *gateway {
	t.Helper()
	return newGatewayWith(t, tweak, nil)
}

// newGatewayWith lets wrap replace the dispatcher seen by the server.
func newGatewayWith(t *testing.T, tweak func(*Options), wrap func(Dispatcher) Dispatcher) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	auth, err := services.NewAuthService("gateway-secret")
	require.NoError(t, err)

	sessions := services.NewSessionManager(nil, log.Sugar())
	bus := distributed.NewMemoryBus()
	bridge := services.NewBusBridge(bus, sessions, retry.Config{MaxAttempts: 1, Multiplier: 1}, nil, log.Sugar())
	presence := distributed.NewMemoryPresenceRegistry()
	stats := memory.NewMemoryStatsRepository()
	events := memory.NewMemoryEventRepository()

	router := socket.NewRouter(sessions, time.Second, nil, log)
	socket.NewStatsHandler(stats, presence, sessions, log.Sugar()).SetupRoutes(router)
	socket.NewEventRoomHandler(events, sessions).SetupRoutes(router)

	opts := Options{
		PingInterval:    time.Second,
		PongTimeout:     3 * time.Second,
		WriteTimeout:    time.Second,
		SendBufferSize:  16,
		MaxMessageBytes: 1024,
		AllowedOrigins:  []string{"https://app.example.com"},
	}
	if tweak != nil {
		tweak(&opts)
	}
	var dispatcher Dispatcher = router
	if wrap != nil {
		dispatcher = wrap(router)
	}
	server := NewWebSocketServer(sessions, dispatcher, presence, bridge, opts, log.Sugar())

	engine := gin.New()
	engine.Use(middleware.RecoveryMiddleware(log.Sugar()))
	engine.GET("/ws", middleware.AuthMiddleware(auth, "token", nil), server.Handle)
	srv := httptest.NewServer(engine)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bridge.Start(ctx) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, testWait, 10*time.Millisecond)

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), testWait)
		defer done()
		_ = server.Shutdown(shutdownCtx)
		srv.Close()
		cancel()
	})

	return &gateway{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		auth:     auth,
		bridge:   bridge,
		sessions: sessions,
		presence: presence,
		stats:    stats,
		server:   server,
	}
}

func (g *gateway) dial(t *testing.T, id domain.UserID, role domain.Role) *websocket.Conn {
	t.Helper()
	token, err := g.auth.GenerateToken(domain.Identity{ID: id, Role: role}, time.Minute)
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(g.url+"?token="+token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame := map[string]any{"event": event}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

// readEvent reads frames until one named event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testWait)))
	for {
		var env domain.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env.Data
		}
	}
}

func onlineUsers(t *testing.T, data json.RawMessage) int64 {
	t.Helper()
	var update domain.OnlineUpdate
	require.NoError(t, json.Unmarshal(data, &update))
	return update.OnlineUsers
}

func errorCode(t *testing.T, data json.RawMessage) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	return body.Code
}

func TestHandshake_Rejected(t *testing.T) {
	g := newGateway(t, nil)

	for name, query := range map[string]string{
		"missing token": "",
		"bad token":     "?token=not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(g.url+query, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), `"code":"AUTH_`)
		})
	}
	assert.Zero(t, g.sessions.SessionCount())
}

func TestHandshake_OriginCheck(t *testing.T) {
	g := newGateway(t, nil)
	token, _ := g.auth.GenerateToken(domain.Identity{ID: "u1", Role: domain.RoleUser}, time.Minute)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(g.url+"?token="+token, header)
	require.Error(t, err)
	if resp != nil {
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	header.Set("Origin", "https://app.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(g.url+"?token="+token, header)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestOnlineUpdatesReachAdmins(t *testing.T) {
	g := newGateway(t, nil)

	admin := g.dial(t, "a1", domain.RoleAdmin)
	assert.Equal(t, int64(1), onlineUsers(t, readEvent(t, admin, domain.EventDashboardOnline)))

	user := g.dial(t, "u1", domain.RoleUser)
	assert.Equal(t, int64(2), onlineUsers(t, readEvent(t, admin, domain.EventDashboardOnline)))

	require.NoError(t, user.Close())
	assert.Equal(t, int64(1), onlineUsers(t, readEvent(t, admin, domain.EventDashboardOnline)))
	assert.Eventually(t, func() bool { return g.sessions.SessionCount() == 1 }, testWait, 10*time.Millisecond)
}

func TestRequestResponse(t *testing.T) {
	g := newGateway(t, nil)
	g.stats.SetDashboardStats(domain.DashboardStats{TotalUsers: 7})

	user := g.dial(t, "u1", domain.RoleUser)
	send(t, user, socket.EventRequestAdminStats, nil)
	assert.Equal(t, "AUTH_FAILED", errorCode(t, readEvent(t, user, domain.EventError)))

	admin := g.dial(t, "a1", domain.RoleAdmin)
	send(t, admin, socket.EventRequestAdminStats, nil)

	var stats domain.DashboardStats
	require.NoError(t, json.Unmarshal(readEvent(t, admin, domain.EventDashboardStatsUpdate), &stats))
	assert.Equal(t, int64(7), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.OnlineUsers)

	send(t, admin, "no_such_event", nil)
	assert.Equal(t, "UNKNOWN_EVENT", errorCode(t, readEvent(t, admin, domain.EventError)))
}

func TestBusMessageReachesTargetRoom(t *testing.T) {
	g := newGateway(t, nil)
	user := g.dial(t, "u1", domain.RoleUser)
	require.Eventually(t, func() bool { return g.sessions.RoomSize(domain.RoomForUser("u1")) == 1 }, testWait, 10*time.Millisecond)

	err := g.bridge.Publish(context.Background(), domain.ChannelMessage{
		Channel:    domain.ChannelNotifications,
		EventType:  "booking_confirmed",
		Payload:    json.RawMessage(`{"bookingId":"b1"}`),
		TargetRoom: domain.RoomForUser("u1"),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"bookingId":"b1"}`, string(readEvent(t, user, "booking_confirmed")))
}

func TestMessageRateLimit(t *testing.T) {
	g := newGateway(t, func(o *Options) {
		o.NewLimiter = func() *rate.Limiter { return rate.NewLimiter(rate.Every(time.Hour), 1) }
	})
	user := g.dial(t, "u1", domain.RoleUser)

	send(t, user, "ping", nil)
	readEvent(t, user, domain.EventPong)

	send(t, user, "ping", nil)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, readEvent(t, user, domain.EventError)))
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	g := newGateway(t, nil)
	user := g.dial(t, "u1", domain.RoleUser)
	require.Eventually(t, func() bool { return g.sessions.SessionCount() == 1 }, testWait, 10*time.Millisecond)

	send(t, user, "ping", map[string]string{"pad": strings.Repeat("x", 2048)})

	require.NoError(t, user.SetReadDeadline(time.Now().Add(testWait)))
	for {
		if _, _, err := user.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return g.sessions.SessionCount() == 0 }, testWait, 10*time.Millisecond)

	count, err := g.presence.OnlineCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

// panickyDispatcher panics on "boom" frames and forwards the rest.
type panickyDispatcher struct {
	next Dispatcher
}

func (d panickyDispatcher) Dispatch(s *services.Session, raw []byte) {
	if strings.Contains(string(raw), `"boom"`) {
		panic("dispatcher bug")
	}
	d.next.Dispatch(s, raw)
}

func TestPanicInReadPumpReleasesSession(t *testing.T) {
	g := newGatewayWith(t, nil, func(next Dispatcher) Dispatcher {
		return panickyDispatcher{next: next}
	})
	user := g.dial(t, "u1", domain.RoleUser)
	require.Eventually(t, func() bool { return g.sessions.SessionCount() == 1 }, testWait, 10*time.Millisecond)

	send(t, user, "boom", nil)

	require.NoError(t, user.SetReadDeadline(time.Now().Add(testWait)))
	for {
		if _, _, err := user.ReadMessage(); err != nil {
			break
		}
	}
	require.NoError(t, user.Close())

	assert.Eventually(t, func() bool { return g.sessions.SessionCount() == 0 }, testWait, 10*time.Millisecond)
	assert.Zero(t, g.sessions.RoomSize(domain.RoomForUser("u1")))
	count, err := g.presence.OnlineCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestShutdownClosesSessions(t *testing.T) {
	g := newGateway(t, nil)
	user := g.dial(t, "u1", domain.RoleUser)
	require.Eventually(t, func() bool { return g.sessions.SessionCount() == 1 }, testWait, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()
	require.NoError(t, g.server.Shutdown(ctx))

	require.NoError(t, user.SetReadDeadline(time.Now().Add(testWait)))
	var closeErr error
	for closeErr == nil {
		_, _, closeErr = user.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(closeErr, websocket.CloseGoingAway), "got %v", closeErr)
}
