package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pixelboard/internal/auth"
	"github.com/sakif/pixelboard/internal/config"
	"github.com/sakif/pixelboard/internal/model"
)

const testSecret = "server-test-secret-0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.JWTSecret = testSecret
	cfg.AdminUserID = "1000"
	cfg.CanvasDefaults = []config.CanvasDefault{
		{Key: model.KeyGridWidth, Value: 4, Public: true},
		{Key: model.KeyGridHeight, Value: 3, Public: true},
		{Key: "motd", Value: "hello", Public: true},
	}
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.sockets.CloseAll()
		ts.Close()
		s.db.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRoutes(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/api/grid", http.StatusOK, `"width":4,"height":3`},
		{"/api/config/motd", http.StatusOK, `"value":"hello"`},
		{"/api/config/automod_strict", http.StatusNotFound, `not_found`},
		{"/api/me", http.StatusUnauthorized, `unauthorized`},
		{"/metrics", http.StatusOK, `pixelboard_stat{key="connected_users"`},
		{"/auth/discord/login", http.StatusServiceUnavailable, `login_unavailable`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := get(t, ts.URL+tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Contains(t, body, tt.wantBody)
		})
	}
}

func TestAuthRoutesNeedSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	_, ts := newTestServer(t, cfg)

	status, _ := get(t, ts.URL+"/auth/discord/login")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = get(t, ts.URL+"/api/me")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSocketEndToEnd(t *testing.T) {
	s, ts := newTestServer(t, testConfig())

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	token, err := tokens.Generate(&model.Identity{SubjectID: "42", DisplayName: "painter"})
	require.NoError(t, err)

	header := http.Header{}
	header.Add("Cookie", auth.CookieName+"="+token)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	type frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	next := func() frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	hello := next()
	require.Equal(t, "identity", hello.Type)
	assert.JSONEq(t, `{"user_id":"42","name":"painter","avatar_url":null}`, string(hello.Payload))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "pixel_update",
		"payload": map[string]any{"x": 3, "y": 2, "color": "#ABCDEF"},
	}))
	for next().Type != "pixel_update" {
	}

	// The write is durable: a refresh from the database sees it.
	require.Eventually(t, func() bool {
		v, _ := s.canvas.Stats.Get(model.StatTotalPixelsPlaced)
		return v == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, err = s.canvas.Grid.Load(context.Background(), model.Size{Width: 4, Height: 3})
	require.NoError(t, err)
	cell, ok := s.canvas.Grid.Cell(3, 2)
	require.True(t, ok)
	assert.Equal(t, "#ABCDEF", cell.Color)
	require.NotNil(t, cell.Author)
	assert.Equal(t, "painter", cell.Author.Name)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 18931
	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:18931/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
