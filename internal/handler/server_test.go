package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/taskengine/internal/auth"
	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/internal/service"
	"github.com/flybeeper/taskengine/internal/task"
	"github.com/flybeeper/taskengine/pkg/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Address:               ":0",
			ReadTimeout:           time.Second,
			WriteTimeout:          time.Second,
			IdleTimeout:           time.Second,
			WebSocketPingInterval: time.Second,
			WebSocketPongTimeout:  3 * time.Second,
		},
		Monitoring: config.MonitoringConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
	}
}

func newTestServer(engine TaskEngine) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(testConfig(), engine, utils.NewLogger("error", "text"), "test")
}

func TestServer_Health(t *testing.T) {
	engine := newMockEngine()
	engine.On("Mode").Return(task.ModeOrdered)
	engine.On("TrackedDevice").Return("vario-1")
	engine.On("WriterStats").Return(service.WriterStats{SnapshotsWritten: 3})

	s := newTestServer(engine)
	s.AddHealthCheck("redis", func(ctx context.Context) error { return nil })

	w := doRequest(s.Handler(), "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decodeBody(t, w)
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, "ordered", response["mode"])
	assert.Equal(t, "vario-1", response["tracked_device"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	s.AddHealthCheck("mysql", func(ctx context.Context) error { return errors.New("connection refused") })
	w = doRequest(s.Handler(), "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	response = decodeBody(t, w)
	assert.Equal(t, "degraded", response["status"])
	deps := response["dependencies"].(map[string]interface{})
	assert.Equal(t, "ok", deps["redis"])
	assert.Equal(t, "connection refused", deps["mysql"])
}

func TestServer_Metrics(t *testing.T) {
	engine := newMockEngine()
	engine.On("CommonStats").Return(task.CommonStats{})
	s := newTestServer(engine)

	w := doRequest(s.Handler(), "GET", "/api/v1/task/common", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s.Handler(), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taskengine_http_requests_total")
}

func TestServer_RequestIDPropagated(t *testing.T) {
	engine := newMockEngine()
	engine.On("Stats").Return(task.NewTaskStats())
	s := newTestServer(engine)

	req := httptest.NewRequest("GET", "/api/v1/task/stats", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

type tokenTable map[string]*auth.Operator

func (tt tokenTable) Validate(_ context.Context, token string) (*auth.Operator, error) {
	if op, ok := tt[token]; ok {
		return op, nil
	}
	return nil, auth.ErrInvalidToken
}

func TestServer_AuthProtectsCommands(t *testing.T) {
	engine := newMockEngine()
	engine.On("Mode").Return(task.ModeNull)
	engine.On("Stats").Return(task.NewTaskStats())
	engine.On("SetMode", task.ModeAbort).Return(task.ModeAbort)

	gin.SetMode(gin.TestMode)
	tokens := tokenTable{"crew": {ID: 1, Role: auth.RolePilot, Devices: []string{"vario-1"}}}
	mw := auth.NewMiddleware(tokens, utils.NewLogger("error", "text"))
	s := NewServer(testConfig(), engine, utils.NewLogger("error", "text"), "test", WithAuth(mw))

	// чтение без токена
	assert.Equal(t, http.StatusOK, doRequest(s.Handler(), "GET", "/api/v1/task/stats", "").Code)

	w := doRequest(s.Handler(), "PUT", "/api/v1/task/mode", `{"mode":"abort"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	engine.AssertNotCalled(t, "SetMode", task.ModeAbort)

	req := httptest.NewRequest("PUT", "/api/v1/task/mode", strings.NewReader(`{"mode":"abort"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer crew")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("POST", "/api/v1/fix?device=vario-2", strings.NewReader(`{"time":36000,"lat":46,"lon":13,"alt":1000}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer crew")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "device_not_owned", decodeBody(t, w)["code"])
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1, 1))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/", "").Code)
	w := doRequest(router, "GET", "/", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeBody(t, w)["code"])
}

func TestWebSocket_Stream(t *testing.T) {
	engine := newMockEngine()
	engine.On("Snapshot").Return(&repository.Snapshot{TaskID: "initial"}, true)
	s := newTestServer(engine)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Envelope
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, messageSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, "initial", first.Snapshot.TaskID)

	engine.updates <- &repository.Snapshot{TaskID: "live", Mode: task.ModeOrdered}
	var live Envelope
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, messageSnapshot, live.Type)
	assert.Equal(t, "live", live.Snapshot.TaskID)
	assert.Greater(t, live.Sequence, first.Sequence)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong Envelope
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, messagePong, pong.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	var bad Envelope
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, messageError, bad.Type)

	assert.Equal(t, 1, s.WebSocket().Clients())
	conn.Close()
	assert.Eventually(t, func() bool {
		return engine.unsubscribed.Load() == 1 && s.WebSocket().Clients() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ClosedOnShutdown(t *testing.T) {
	engine := newMockEngine()
	engine.On("Snapshot").Return(&repository.Snapshot{}, false)
	s := newTestServer(engine)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Envelope
	require.NoError(t, conn.ReadJSON(&first))

	s.WebSocket().CloseAll()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, s.WebSocket().Clients())
}
