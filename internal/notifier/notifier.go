// Package notifier implements C7: translation of matchmaking-core events
// into outbound WebSocket frames (spec.md §4.5). Grounded on the
// sendMessage/sendError envelope pattern and gorilla/websocket usage of
// internal/gameserver/matching_handler.go.
package notifier

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thetranscendence/matchmaking/internal/logger"
)

// Notifier is the event-emission contract the matchmaking core depends
// on. Implementations must not block the caller on a slow or dead socket
// for longer than a short write deadline; a failed emission is logged and
// otherwise ignored (the core's correctness never depends on delivery).
type Notifier interface {
	QueueJoined(userID string, elo int, priority bool)
	QueueLeft(userID string)
	QueueStats(size, pending int)
	MatchProposal(userID, matchID string, expiresAt time.Time, opponentElo int)
	MatchConfirmed(userID, gameID, player1ID, player2ID string)
	MatchFailed(userID, matchID, reason, errorCode, message string)
	MatchCancelled(userID, matchID, reason string)
	Error(userID, message string, details map[string]any)
}

// envelope is the outbound frame shape: {"type": "...", "data": {...}}.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const writeDeadline = 5 * time.Second

// conn pairs a socket with the mutex gorilla/websocket requires around
// concurrent writers on the same connection.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteJSON(v)
}

// Registry maps a userId to its live socket. The Gateway Adapter (C8)
// registers on connect and unregisters on disconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*conn
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*conn)}
}

// Register associates userID with ws, replacing any prior connection for
// that user (a reconnect supersedes the stale socket).
func (r *Registry) Register(userID string, ws *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = &conn{ws: ws}
}

// Unregister removes userID's connection, if present.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, userID)
}

func (r *Registry) get(userID string) (*conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// snapshot returns every currently registered connection, for broadcasts.
func (r *Registry) snapshot() []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// WSNotifier is the gorilla/websocket-backed Notifier.
type WSNotifier struct {
	registry *Registry
}

// NewWSNotifier constructs a WSNotifier over registry.
func NewWSNotifier(registry *Registry) *WSNotifier {
	return &WSNotifier{registry: registry}
}

func (n *WSNotifier) send(userID, eventType string, data interface{}) {
	c, ok := n.registry.get(userID)
	if !ok {
		return
	}
	if err := c.writeJSON(envelope{Type: eventType, Data: data}); err != nil {
		logger.GetLogger().LogMatchEvent("notify_failed", "", logger.Fields{
			"userId": userID, "eventType": eventType, "error": err.Error(),
		})
	}
}

func (n *WSNotifier) QueueJoined(userID string, elo int, priority bool) {
	n.send(userID, "queue_joined", map[string]interface{}{
		"userId": userID, "elo": elo, "timestamp": time.Now().UnixMilli(), "priority": priority,
	})
}

func (n *WSNotifier) QueueLeft(userID string) {
	n.send(userID, "queue_left", map[string]interface{}{
		"userId": userID, "timestamp": time.Now().UnixMilli(),
	})
}

func (n *WSNotifier) QueueStats(size, pending int) {
	payload := envelope{Type: "queue_stats", Data: map[string]interface{}{"size": size, "pending": pending}}
	for _, c := range n.registry.snapshot() {
		if err := c.writeJSON(payload); err != nil {
			logger.GetLogger().LogMatchEvent("notify_failed", "", logger.Fields{
				"eventType": "queue_stats", "error": err.Error(),
			})
		}
	}
}

func (n *WSNotifier) MatchProposal(userID, matchID string, expiresAt time.Time, opponentElo int) {
	n.send(userID, "match_proposal", map[string]interface{}{
		"matchId": matchID, "expiresAt": expiresAt.UnixMilli(), "opponentElo": opponentElo,
	})
}

func (n *WSNotifier) MatchConfirmed(userID, gameID, player1ID, player2ID string) {
	n.send(userID, "match_confirmed", map[string]interface{}{
		"gameId": gameID, "player1Id": player1ID, "player2Id": player2ID,
	})
}

func (n *WSNotifier) MatchFailed(userID, matchID, reason, errorCode, message string) {
	n.send(userID, "match_failed", map[string]interface{}{
		"matchId": matchID, "reason": reason, "errorCode": errorCode, "message": message,
	})
}

func (n *WSNotifier) MatchCancelled(userID, matchID, reason string) {
	n.send(userID, "match_cancelled", map[string]interface{}{
		"matchId": matchID, "reason": reason,
	})
}

func (n *WSNotifier) Error(userID, message string, details map[string]any) {
	n.send(userID, "error", map[string]interface{}{
		"message": message, "details": details,
	})
}
