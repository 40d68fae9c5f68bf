// Package gameclient implements C3: the remote create-game call with
// timeout and resilient fallback, grounded on the request/response and
// status-code handling of internal/portone/client.go, and on the
// context-aware, normalized-error shape of internal/kakao/client.go.
//
// The contract (spec.md §4.4) is that CreateGame never returns a
// transport error to the caller: network failures, timeouts, non-2xx
// responses, and schema-invalid bodies are all folded into a
// CreateGameResult{Success: false} carrying the "fallback" marker
// substring, so Finalize can react uniformly.
package gameclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thetranscendence/matchmaking/internal/logger"
	"github.com/thetranscendence/matchmaking/internal/metrics"
)

// Business error codes the real Game service may report (spec.md §4.4).
const (
	ErrGameAlreadyExists   = "GAME_ALREADY_EXISTS"
	ErrPlayerAlreadyInGame = "PLAYER_ALREADY_IN_GAME"
	ErrInvalidPlayers      = "INVALID_PLAYERS"
	fallbackMarker         = "fallback"
)

// CreateGameRequest is the body posted to {GAME_SERVICE_URL}/games.
type CreateGameRequest struct {
	GameID    string `json:"gameId"`
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
}

// CreateGameResult is the discriminated outcome returned by CreateGame.
// Exactly one of the success or failure field group is meaningful,
// selected by Success.
type CreateGameResult struct {
	Success bool   `json:"success"`
	GameID  string `json:"gameId,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsFallback reports whether this result was synthesized locally rather
// than returned by the real Game service.
func (r CreateGameResult) IsFallback() bool {
	return !r.Success && containsFallbackMarker(r.Message)
}

// Client is the Game service client. It never returns a transport error
// from CreateGame; transport/validation failures are translated into a
// fallback CreateGameResult.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (used by tests to
// point at an httptest.Server with a custom transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a Client against baseURL with the given request
// timeout (spec.md recommends 3000ms).
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateGame invokes POST {baseURL}/games. It is safe to call without a
// deadline on ctx: the client's own http.Client.Timeout bounds the call
// independently of the ready-check timer (spec.md §5).
func (c *Client) CreateGame(ctx context.Context, req CreateGameRequest) (result CreateGameResult) {
	start := time.Now()
	defer func() {
		metrics.ObserveRemoteCall("game", time.Since(start), result.IsFallback())
	}()

	if req.GameID == "" || req.Player1ID == "" || req.Player2ID == "" {
		return fallbackResult(fmt.Sprintf("invalid request (%s): gameId, player1Id and player2Id are required", fallbackMarker))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fallbackResult(fmt.Sprintf("failed to marshal request (%s)", fallbackMarker))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/games", bytes.NewReader(body))
	if err != nil {
		return fallbackResult(fmt.Sprintf("failed to build request (%s)", fallbackMarker))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		transportFailure := fallbackResult(fmt.Sprintf("transport error calling game service (%s): %v", fallbackMarker, err))
		logger.GetLogger().LogRemoteCall("game", "createGame", time.Since(start), true, err)
		return transportFailure
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fallbackResult(fmt.Sprintf("failed to read response body (%s)", fallbackMarker))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusFailure := fallbackResult(fmt.Sprintf("game service returned HTTP %d (%s)", resp.StatusCode, fallbackMarker))
		logger.GetLogger().LogRemoteCall("game", "createGame", time.Since(start), true, nil)
		return statusFailure
	}

	var parsed CreateGameResult
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fallbackResult(fmt.Sprintf("malformed response body (%s): %v", fallbackMarker, err))
	}
	if parsed.Success && parsed.GameID == "" {
		return fallbackResult(fmt.Sprintf("success response missing gameId (%s)", fallbackMarker))
	}

	logger.GetLogger().LogRemoteCall("game", "createGame", time.Since(start), parsed.IsFallback(), nil)
	return parsed
}

// HealthCheck probes GET {baseURL}/health with a short timeout and
// returns whether the Game service is reachable and healthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func fallbackResult(message string) CreateGameResult {
	return CreateGameResult{
		Success: false,
		Error:   ErrGameAlreadyExists,
		Message: message,
	}
}

func containsFallbackMarker(message string) bool {
	return strings.Contains(strings.ToLower(message), fallbackMarker)
}
