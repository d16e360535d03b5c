package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/lorrc/service-desk-notifier/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/lorrc/service-desk-notifier/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-notifier/internal/auth"
	"github.com/lorrc/service-desk-notifier/internal/config"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

type wsFixture struct {
	hub    *wsAdapter.Hub
	tm     *auth.TokenManager
	server *httptest.Server
}

func newWSFixture(t *testing.T, limiter *mw.RateLimiter) *wsFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    time.Minute,
			PongWait:        2 * time.Minute,
		},
		App: config.AppConfig{Environment: "development"},
	}

	hub := wsAdapter.NewHub(logging.Discard())
	go hub.Run(ctx)

	tm := auth.NewTokenManager("test-secret", time.Hour)
	handler := NewWebSocketHandler(hub, tm, cfg, logging.Discard())

	server := httptest.NewServer(NewRouter(RouterConfig{
		Health:         NewHealthHandler(nil, nil, "test"),
		WebSocket:      handler,
		ConnectLimiter: limiter,
		Logger:         logging.Discard(),
	}))
	t.Cleanup(server.Close)

	return &wsFixture{hub: hub, tm: tm, server: server}
}

func (f *wsFixture) url(token string) string {
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func TestWebSocketHandler_DeliversNotifications(t *testing.T) {
	f := newWSFixture(t, nil)

	token, err := f.tm.GenerateToken("U1")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(f.url(token), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.NotEmpty(t, resp.Header.Get(mw.RequestIDHeader))

	require.Eventually(t, func() bool { return f.hub.IsUserConnected("U1") }, 2*time.Second, 10*time.Millisecond)

	update := domain.NotificationUpdate{
		Type:       domain.UpdateTicketCreated,
		ParentID:   "T1",
		BuildingID: "B1",
		OwnerID:    "U1",
		Message:    "New ticket created: Broken lift",
	}
	require.NoError(t, f.hub.Send(context.Background(), update))
	require.NoError(t, f.hub.Revoke(context.Background(), "T1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg struct {
		Type    string                    `json:"type"`
		Payload domain.NotificationUpdate `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsAdapter.MessageNotification, msg.Type)
	assert.Equal(t, update, msg.Payload)

	var revoke struct {
		Type    string                 `json:"type"`
		Payload domain.RevokeDirective `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&revoke))
	assert.Equal(t, wsAdapter.MessageRevoke, revoke.Type)
	assert.Equal(t, "T1", revoke.Payload.EntityID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING"}))
	var pong wsAdapter.Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, wsAdapter.MessagePong, pong.Type)
}

func TestWebSocketHandler_EchoesRequestIDOnUpgrade(t *testing.T) {
	f := newWSFixture(t, nil)

	token, err := f.tm.GenerateToken("U1")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(f.url(token), http.Header{mw.RequestIDHeader: []string{"req-42"}})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get(mw.RequestIDHeader))
}

func TestWebSocketHandler_DisconnectUnregisters(t *testing.T) {
	f := newWSFixture(t, nil)

	token, err := f.tm.GenerateToken("U2")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(token), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.IsUserConnected("U2") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !f.hub.IsUserConnected("U2") }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RejectsUnauthenticated(t *testing.T) {
	f := newWSFixture(t, nil)

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(f.url(""), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(f.url("garbage"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	assert.Zero(t, f.hub.GetClientCount())
}

func TestWebSocketHandler_RateLimitsConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		CleanupInterval:   time.Hour,
		TTL:               time.Hour,
	})
	f := newWSFixture(t, limiter)

	token, err := f.tm.GenerateToken("U3")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(token), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(f.url(token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"app.example.com", "*.desk.example.org"}

	assert.True(t, originAllowed("app.example.com", allowed))
	assert.True(t, originAllowed("tenant.desk.example.org", allowed))
	assert.True(t, originAllowed("desk.example.org", allowed))
	assert.False(t, originAllowed("evil.com", allowed))
	assert.False(t, originAllowed("example.com", allowed))
}

func TestRouter_Routes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	server := httptest.NewServer(NewRouter(RouterConfig{
		Health:  NewHealthHandler(map[string]HealthChecker{"mongo": healthy()}, nil, "test"),
		Metrics: metrics,
		Logger:  logging.Discard(),
	}))
	defer server.Close()

	for path, want := range map[string]int{
		"/health/live":  http.StatusOK,
		"/health/ready": http.StatusOK,
		"/metrics":      http.StatusOK,
		"/ws":           http.StatusNotFound,
		"/nope":         http.StatusNotFound,
	} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
