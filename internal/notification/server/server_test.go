package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/linkflow-ai/notifyhub/internal/gateway/server"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/config"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/middleware"
	"github.com/linkflow-ai/notifyhub/internal/platform/storage"
)

const secret = "test-secret"

func testConfig() *config.Config {
	cfg := &config.Config{Version: "test"}
	cfg.Service.Name = "notification"
	cfg.Auth.JWTSecret = secret
	cfg.Telemetry.MetricsEnabled = true
	cfg.Notification.MaxRetained = 50
	cfg.Notification.ToastDuration = time.Minute
	cfg.Notification.ToastStackSize = 5
	cfg.Realtime.ReconnectDelay = 10 * time.Millisecond
	cfg.Realtime.MaxAttempts = 3
	cfg.Gateway.MaxBodySize = 1 << 16
	return cfg
}

func newServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(WithConfig(cfg), WithLogger(logger.NewNop()), WithStorage(storage.NewMemory()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := middleware.NewAuthMiddleware([]byte(secret)).Sign("user-1", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func request(t *testing.T, h http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newServer(t, testConfig())
	h := srv.Handler()

	rec := request(t, h, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = request(t, h, http.MethodGet, "/api/v1/notifications", bearer(t), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, h, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendThroughAPI(t *testing.T) {
	srv := newServer(t, testConfig())
	h := srv.Handler()
	auth := bearer(t)

	rec := request(t, h, http.MethodPost, "/api/v1/notifications", auth, model.Draft{
		Type:  model.TypeSuccess,
		Title: "Saved",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, 1, srv.store.UnreadCount())
	assert.Len(t, srv.toasts.Active(), 1)

	rec = request(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notifyhub_notifications_sent_total")
}

func TestReadinessDegradesWithoutPushChannel(t *testing.T) {
	cfg := testConfig()
	cfg.Realtime.URL = "ws://127.0.0.1:1/ws"
	cfg.Realtime.MaxAttempts = 1
	srv := newServer(t, cfg)

	require.NoError(t, srv.Run(context.Background()))

	rec := request(t, srv.Handler(), http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestPushFromGatewayReachesStore(t *testing.T) {
	gwCfg := testConfig()
	gw, err := gateway.New(gateway.WithConfig(gwCfg), gateway.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	gwHTTP := httptest.NewServer(gw.Handler())
	defer func() {
		gwHTTP.Close()
		_ = gw.Shutdown(context.Background())
	}()

	cfg := testConfig()
	cfg.Auth.Disabled = true
	cfg.Notification.UserID = "alice"
	cfg.Realtime.URL = "ws" + strings.TrimPrefix(gwHTTP.URL, "http") + "/ws"
	srv := newServer(t, cfg)
	require.NoError(t, srv.Run(context.Background()))
	require.Eventually(t, srv.transport.IsOpen, time.Second, 5*time.Millisecond)

	body, err := json.Marshal(map[string]string{"userId": "alice", "title": "From backend", "type": "message"})
	require.NoError(t, err)
	resp, err := http.Post(gwHTTP.URL+"/api/v1/push", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool { return srv.store.UnreadCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "From backend", srv.store.Notifications()[0].Title)

	// local sends are forwarded upstream while the channel is open
	rec := request(t, srv.Handler(), http.MethodPost, "/api/v1/notifications", "", model.Draft{Title: "Local"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 2, srv.store.UnreadCount())
}
