// Package usersclient implements the Users service sibling of C3:
// getUserElo, consulted once at connection time by the Gateway Adapter.
// Grounded on the same resilient-HTTP-client shape as internal/gameclient.
package usersclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/thetranscendence/matchmaking/internal/logger"
	"github.com/thetranscendence/matchmaking/internal/metrics"
)

// DefaultElo is returned when the real lookup fails validation or
// transport; spec.md §4.4 recommends 1000.
const DefaultElo = 1000

type eloResponse struct {
	Elo int `json:"elo"`
}

// Client is the Users service client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	defaultElo int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDefaultElo overrides the fallback rating used on failure.
func WithDefaultElo(elo int) Option {
	return func(c *Client) {
		c.defaultElo = elo
	}
}

// NewClient constructs a Client against baseURL with the given request
// timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		defaultElo: DefaultElo,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUserElo fetches GET {baseURL}/users/{userId}/elo. On transport or
// validation failure it returns (defaultElo, false) rather than an error:
// the caller (Gateway Adapter) decides whether a fallback rating is
// acceptable or the connection should be rejected.
func (c *Client) GetUserElo(ctx context.Context, userID string) (elo int, ok bool) {
	start := time.Now()
	defer func() {
		metrics.ObserveRemoteCall("users", time.Since(start), !ok)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%s/elo", c.baseURL, userID), nil)
	if err != nil {
		return c.defaultElo, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.GetLogger().LogRemoteCall("users", "getUserElo", time.Since(start), true, err)
		return c.defaultElo, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.GetLogger().LogRemoteCall("users", "getUserElo", time.Since(start), true, nil)
		return c.defaultElo, false
	}

	var body eloResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Elo < 0 {
		logger.GetLogger().LogRemoteCall("users", "getUserElo", time.Since(start), true, nil)
		return c.defaultElo, false
	}

	logger.GetLogger().LogRemoteCall("users", "getUserElo", time.Since(start), false, nil)
	return body.Elo, true
}
