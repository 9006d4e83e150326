package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubHistory struct {
	msgs  []domain.ChatMessage
	err   error
	room  domain.RoomID
	limit int
}

func (s *stubHistory) RecentMessages(_ context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	s.room, s.limit = room, limit
	return s.msgs, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) IsClosed() bool           { return false }
func (nopConn) Close()                   {}

func testConfig() *config.Config {
	return &config.Config{
		Mode:        "test",
		ReadLimit:   4096,
		PingPeriod:  time.Hour,
		IdleTimeout: 2 * time.Hour,
		WriteWait:   time.Second,
		SendBuffer:  4,
	}
}

func do(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	o := orch.New(nil, nil)
	o.Connect(nopConn{})

	r := SetupRouter(context.Background(), testConfig(), o, nil, stubPinger{})
	w := do(t, r, "/healthz")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["connections"])

	r = SetupRouter(context.Background(), testConfig(), o, nil, stubPinger{err: errors.New("db down")})
	w = do(t, r, "/healthz")
	assert.Equal(t, nethttp.StatusServiceUnavailable, w.Code)
}

func TestListRooms(t *testing.T) {
	o := orch.New(nil, nil)
	a := o.Connect(nopConn{})
	b := o.Connect(nopConn{})
	o.Rooms.Join("lobby", a)
	o.Rooms.Join("lobby", b)
	o.Rooms.Join("dev", a)

	r := SetupRouter(context.Background(), testConfig(), o, nil, nil)
	w := do(t, r, "/api/rooms")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":[{"id":"dev","member_count":1},{"id":"lobby","member_count":2}]}`, w.Body.String())
}

func TestRoomHistory(t *testing.T) {
	hist := &stubHistory{msgs: []domain.ChatMessage{{ID: "m1", RoomID: "lobby", Content: "hi"}}}
	r := SetupRouter(context.Background(), testConfig(), orch.New(nil, nil), hist, nil)

	w := do(t, r, "/api/rooms/lobby/messages?limit=10")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Equal(t, domain.RoomID("lobby"), hist.room)
	assert.Equal(t, 10, hist.limit)
	assert.Contains(t, w.Body.String(), `"content":"hi"`)

	w = do(t, r, "/api/rooms/lobby/messages?limit=abc")
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)

	hist.err = errors.New("boom")
	w = do(t, r, "/api/rooms/lobby/messages")
	assert.Equal(t, nethttp.StatusInternalServerError, w.Code)
	assert.Equal(t, 50, hist.limit)
}

func TestRoomHistoryDisabled(t *testing.T) {
	r := SetupRouter(context.Background(), testConfig(), orch.New(nil, nil), nil, nil)
	w := do(t, r, "/api/rooms/lobby/messages")
	assert.Equal(t, nethttp.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := SetupRouter(context.Background(), testConfig(), orch.New(nil, nil), nil, nil)
	w := do(t, r, "/metrics")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
