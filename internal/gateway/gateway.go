// Package gateway implements C8: the per-connection WebSocket lifecycle
// that bridges inbound client events onto the matchmaking core (spec.md
// §4.6). Grounded on the upgrade/read-loop/dispatch shape of
// internal/gameserver/matching_handler.go, generalized from its
// untyped map[string]interface{} messages to validated payload structs
// using the struct-tag validation idiom the teacher applies via gin's
// ShouldBindJSON elsewhere (internal/handler/*.go).
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/thetranscendence/matchmaking/internal/apperrors"
	"github.com/thetranscendence/matchmaking/internal/auth"
	"github.com/thetranscendence/matchmaking/internal/logger"
	"github.com/thetranscendence/matchmaking/internal/matchqueue"
	"github.com/thetranscendence/matchmaking/internal/notifier"
	"github.com/thetranscendence/matchmaking/internal/readycheck"
	"github.com/thetranscendence/matchmaking/internal/usersclient"
)

// inboundEnvelope is the shape every inbound frame is first decoded into
// before dispatch.
type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinQueuePayload struct {
	Elo *int `json:"elo" validate:"omitempty,gte=0"`
}

type matchIDPayload struct {
	MatchID string `json:"matchId" validate:"required,uuid"`
}

// Adapter owns the WebSocket upgrade and per-connection event dispatch.
type Adapter struct {
	queue       *matchqueue.Queue
	readyCheck  *readycheck.FSM
	notifier    notifier.Notifier
	registry    *notifier.Registry
	usersClient *usersclient.Client
	tokens      *auth.TokenValidator
	validate    *validator.Validate
	upgrader    websocket.Upgrader
}

// NewAdapter constructs a gateway Adapter.
func NewAdapter(
	queue *matchqueue.Queue,
	rc *readycheck.FSM,
	n notifier.Notifier,
	registry *notifier.Registry,
	usersClient *usersclient.Client,
	tokens *auth.TokenValidator,
	allowedOrigins map[string]bool,
) *Adapter {
	return &Adapter{
		queue:       queue,
		readyCheck:  rc,
		notifier:    n,
		registry:    registry,
		usersClient: usersClient,
		tokens:      tokens,
		validate:    validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return allowedOrigins[r.Header.Get("Origin")]
			},
		},
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the
// client disconnects or a fatal protocol error occurs.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := a.tokens.ValidateConnectToken(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	// On failure GetUserElo already returns the client's configured
	// fallback rating, which is used as the session elo.
	elo, _ := a.usersClient.GetUserElo(ctx, userID)
	cancel()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.GetLogger().LogMatchEvent("upgrade_failed", "", logger.Fields{"userId": userID, "error": err.Error()})
		return
	}
	defer conn.Close()

	a.registry.Register(userID, conn)
	defer func() {
		a.registry.Unregister(userID)
		a.queue.RemovePlayer(userID)
	}()

	socketID := userID + ":" + r.RemoteAddr

	for {
		var env inboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		a.dispatch(userID, socketID, elo, env)
	}
}

func (a *Adapter) dispatch(userID, socketID string, sessionElo int, env inboundEnvelope) {
	switch env.Type {
	case "join_queue":
		a.handleJoinQueue(userID, socketID, sessionElo, env.Data)
	case "leave_queue":
		a.queue.RemovePlayer(userID)
		a.notifier.QueueLeft(userID)
	case "accept_match":
		a.handleMatchID(userID, env.Data, a.readyCheck.Accept)
	case "decline_match":
		a.handleMatchID(userID, env.Data, a.readyCheck.Decline)
	default:
		a.notifier.Error(userID, "unknown event type: "+env.Type, nil)
	}
}

func (a *Adapter) handleJoinQueue(userID, socketID string, sessionElo int, raw json.RawMessage) {
	payload := joinQueuePayload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			a.notifier.Error(userID, "invalid join_queue payload", map[string]any{"error": err.Error()})
			return
		}
	}
	if err := a.validate.Struct(payload); err != nil {
		a.notifier.Error(userID, "invalid join_queue payload", map[string]any{"error": err.Error()})
		return
	}

	elo := sessionElo
	if payload.Elo != nil {
		elo = *payload.Elo
	}

	player, err := a.queue.AddPlayer(userID, socketID, elo, false)
	if err != nil {
		a.emitError(userID, err)
		return
	}
	a.notifier.QueueJoined(player.UserID, player.Elo, player.Priority)
}

func (a *Adapter) handleMatchID(userID string, raw json.RawMessage, action func(userID, matchID string) error) {
	var payload matchIDPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		a.notifier.Error(userID, "invalid payload: matchId is required", map[string]any{"error": err.Error()})
		return
	}
	if err := a.validate.Struct(payload); err != nil {
		a.notifier.Error(userID, "invalid payload: matchId must be a uuid", map[string]any{"error": err.Error()})
		return
	}
	if err := action(userID, payload.MatchID); err != nil {
		a.emitError(userID, err)
	}
}

func (a *Adapter) emitError(userID string, err error) {
	if kind, ok := apperrors.KindOf(err); ok {
		a.notifier.Error(userID, err.Error(), map[string]any{"kind": string(kind)})
		return
	}
	a.notifier.Error(userID, err.Error(), nil)
}
