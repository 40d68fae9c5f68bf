package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetranscendence/matchmaking/internal/auth"
	"github.com/thetranscendence/matchmaking/internal/gameclient"
	"github.com/thetranscendence/matchmaking/internal/gateway"
	"github.com/thetranscendence/matchmaking/internal/matchqueue"
	"github.com/thetranscendence/matchmaking/internal/notifier"
	"github.com/thetranscendence/matchmaking/internal/penalty"
	"github.com/thetranscendence/matchmaking/internal/readycheck"
	"github.com/thetranscendence/matchmaking/internal/sessionlog"
	"github.com/thetranscendence/matchmaking/internal/usersclient"
)

const jwtSecret = "test-secret"

type noopPenaltyStore struct{}

func (noopPenaltyStore) GetActivePenalty(string) (*penalty.Penalty, error) { return nil, nil }
func (noopPenaltyStore) AddPenalty(string, int, string) error             { return nil }

type noopSessionLog struct{}

func (noopSessionLog) Append(sessionlog.Entry) error { return nil }

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{"id": float64(mustAtoi(t, userID))}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func mustAtoi(t *testing.T, s string) int64 {
	t.Helper()
	var n int64
	for _, r := range s {
		require.True(t, r >= '0' && r <= '9')
		n = n*10 + int64(r-'0')
	}
	return n
}

func newTestServer(t *testing.T) (*httptest.Server, *matchqueue.Queue, *notifier.Registry) {
	t.Helper()
	penaltyStore := noopPenaltyStore{}
	registry := notifier.NewRegistry()
	n := notifier.NewWSNotifier(registry)
	queue := matchqueue.NewQueue(penaltyStore, matchqueue.WithNotifier(n))
	gc := gameclient.NewClient("http://127.0.0.1:1", 50*time.Millisecond)
	fsm := readycheck.NewFSM(queue, n, penaltyStore, noopSessionLog{}, gc, 15*time.Second, 300)
	uc := usersclient.NewClient("http://127.0.0.1:1", 50*time.Millisecond)
	tokens := auth.NewTokenValidator(jwtSecret)

	adapter := gateway.NewAdapter(queue, fsm, n, registry, uc, tokens, nil)
	server := httptest.NewServer(adapter)
	return server, queue, registry
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + server.URL[len("http"):] + "?token=" + signToken(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	return conn
}

func TestGateway_RejectsMissingToken(t *testing.T) {
	server, _, _ := newTestServer(t)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_JoinQueue_AddsPlayerToQueue(t *testing.T) {
	server, queue, _ := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "1")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_queue", "data": map[string]any{"elo": 1600}}))

	require.Eventually(t, func() bool {
		size, _ := queue.Stats()
		return size == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_LeaveQueue_RemovesPlayer(t *testing.T) {
	server, queue, _ := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "2")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_queue", "data": map[string]any{}}))
	require.Eventually(t, func() bool {
		size, _ := queue.Stats()
		return size == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "leave_queue"}))
	require.Eventually(t, func() bool {
		size, _ := queue.Stats()
		return size == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_Disconnect_RemovesPlayerFromQueue(t *testing.T) {
	server, queue, _ := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "3")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_queue", "data": map[string]any{}}))
	require.Eventually(t, func() bool {
		size, _ := queue.Stats()
		return size == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		size, _ := queue.Stats()
		return size == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_AcceptMatch_InvalidMatchID_EmitsError(t *testing.T) {
	server, _, _ := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "4")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "accept_match", "data": map[string]any{"matchId": "not-a-uuid"}}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
}

func TestGateway_UnknownEventType_EmitsError(t *testing.T) {
	server, _, _ := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "5")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "not_a_real_event"}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
}
