package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/wordbiz/internal/client"
	"github.com/danmuck/wordbiz/internal/supervisor"
	"github.com/danmuck/wordbiz/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	snap atomic.Pointer[supervisor.Snapshot]
}

func newSource(snap supervisor.Snapshot) *staticSource {
	s := &staticSource{}
	s.snap.Store(&snap)
	return s
}

func (s *staticSource) Snapshot() supervisor.Snapshot { return *s.snap.Load() }

func (s *staticSource) set(snap supervisor.Snapshot) { s.snap.Store(&snap) }

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	log.Info().Msgf("server/http: %s %s status=%d", method, path, rr.Code)
	return rr, body
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestHealthAlwaysOK(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{}, newSource(supervisor.Snapshot{}), log.Logger)

	rr, body := do(t, srv.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.NotEmpty(t, body["uptime"])
}

func TestReadyFollowsAuthentication(t *testing.T) {
	testlog.Start(t)
	src := newSource(supervisor.Snapshot{State: client.StateConnected})
	srv := New(Config{}, src, log.Logger)

	rr, body := do(t, srv.Handler(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "connected", body["state"])

	src.set(supervisor.Snapshot{State: client.StateAuthenticated})
	rr, body = do(t, srv.Handler(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "authenticated", body["state"])
}

func TestSessionReportsSnapshot(t *testing.T) {
	testlog.Start(t)
	src := newSource(supervisor.Snapshot{
		State:           client.StateAuthenticated,
		Phase:           supervisor.PhaseSteady,
		Running:         true,
		Iterations:      42,
		ConnectFailures: 3,
		ConnID:          "c-1",
		Since:           time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	srv := New(Config{}, src, log.Logger)

	rr, body := do(t, srv.Handler(), http.MethodGet, "/session")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "authenticated", body["state"])
	assert.Equal(t, "steady", body["phase"])
	assert.Equal(t, true, body["running"])
	assert.Equal(t, 42.0, body["iterations"])
	assert.Equal(t, 3.0, body["connect_failures"])
	assert.Equal(t, "c-1", body["conn_id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["since"])
	assert.NotContains(t, body, "last_error")
}

func TestMetricsExposed(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{}, newSource(supervisor.Snapshot{}), log.Logger)
	do(t, srv.Handler(), http.MethodGet, "/health")

	rr, _ := do(t, srv.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "wordbiz_http_requests_total")
}

func TestCorsHeadersWhenOriginsConfigured(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{CorsOrigins: []string{" http://localhost:3000 ", ""}}, newSource(supervisor.Snapshot{}), log.Logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{Addr: "127.0.0.1:0"}, newSource(supervisor.Snapshot{}), log.Logger)
	ln, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", ln.Addr().String()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("admin server did not stop")
	}
}

func TestRunFailsOnBadAddress(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{Addr: "256.0.0.1:bad"}, newSource(supervisor.Snapshot{}), log.Logger)
	assert.Error(t, srv.Run(context.Background()))
}

func TestTokenGuardsSessionAndMetrics(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{Token: "t0k"}, newSource(supervisor.Snapshot{State: client.StateAuthenticated}), log.Logger)

	rr, _ := do(t, srv.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = do(t, srv.Handler(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = do(t, srv.Handler(), http.MethodGet, "/session")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr, _ = do(t, srv.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer t0k")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
