package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitOptions configures NewRateLimiter. Unlike a generic multi-tenant
// gateway, this core only ever fronts two routes (the WebSocket upgrade at
// C8 and the admin queue-stats endpoint), so the knobs are narrowed to what
// those two surfaces actually need: no CIDR whitelist, no pluggable 429
// responder, no entry cap — a matchmaking queue has at most a few thousand
// concurrent sockets, far below where an unbounded client map matters.
type RateLimitOptions struct {
	Enabled bool
	RPS     float64       // requests per second
	Burst   int           // token bucket burst
	TTL     time.Duration // idle TTL per client key (e.g., 10m)
	Cleanup time.Duration // cleanup interval (e.g., 1m)

	// KeyFunc determines how to identify a client. Defaults to
	// wsClientKey, which keys WebSocket upgrades by their connect token
	// (so one flaky client can't exhaust another player's budget behind
	// the same NAT) and everything else by IP.
	KeyFunc func(c *gin.Context) string

	// Skipper returns true to bypass rate limiting for this request (e.g.
	// /healthz, /metrics).
	Skipper func(c *gin.Context) bool
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	options RateLimitOptions
	stopCh  chan struct{}
}

// NewRateLimiter builds a per-client token-bucket gin middleware guarding
// the matchmaking core's join and admin surfaces from abusive reconnect or
// poll loops (spec.md §9's "resource model" concern, generalized from the
// teacher's admin-API rate limiter to this service's socket-keyed clients).
func NewRateLimiter(opts RateLimitOptions) gin.HandlerFunc {
	if !opts.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Cleanup <= 0 {
		opts.Cleanup = time.Minute
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = wsClientKey
	}
	if opts.Skipper == nil {
		opts.Skipper = func(c *gin.Context) bool { return false }
	}

	store := &limiterStore{
		clients: make(map[string]*clientLimiter),
		options: opts,
		stopCh:  make(chan struct{}),
	}
	store.startCleanup()

	return func(c *gin.Context) {
		if opts.Skipper(c) {
			c.Next()
			return
		}

		key := opts.KeyFunc(c)
		lim := store.getLimiter(key, rate.Limit(opts.RPS), opts.Burst)

		if lim.Allow() {
			c.Next()
			return
		}

		// Reserve() without consuming, purely to compute Retry-After.
		r := lim.Reserve()
		if !r.OK() {
			writeTooManyRequests(c, 1*time.Second)
			return
		}
		delay := r.DelayFrom(time.Now())
		r.Cancel()

		writeTooManyRequests(c, delay)
	}
}

func (s *limiterStore) getLimiter(key string, limit rate.Limit, burst int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl, ok := s.clients[key]; ok {
		cl.lastSeen = time.Now()
		return cl.limiter
	}

	lim := rate.NewLimiter(limit, burst)
	s.clients[key] = &clientLimiter{limiter: lim, lastSeen: time.Now()}
	return lim
}

func (s *limiterStore) startCleanup() {
	ticker := time.NewTicker(s.options.Cleanup)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanup()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *limiterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, v := range s.clients {
		if now.Sub(v.lastSeen) > s.options.TTL {
			delete(s.clients, k)
		}
	}
}

func (s *limiterStore) Stop() { close(s.stopCh) }

// wsClientKey keys a WebSocket-upgrade request by its connect token
// (spec.md §6's "token" query parameter, validated later by
// auth.TokenValidator) so a reconnect storm from one player doesn't starve
// every other player sharing its NAT. Every other request keys by IP.
func wsClientKey(c *gin.Context) string {
	if c.FullPath() == "/ws/matchmaking" {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			return "token:" + token
		}
	}
	return "ip:" + c.ClientIP()
}

func writeTooManyRequests(c *gin.Context, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	c.Header("Retry-After", itoa(int(retryAfter.Round(time.Second)/time.Second)))

	traceID := requestID(c)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": gin.H{
			"code":    "RATE_LIMITED",
			"message": "too many requests",
			"details": gin.H{
				"retry_after_ms": retryAfter.Milliseconds(),
			},
			"traceId": traceID,
		},
	})
}

func requestID(c *gin.Context) string {
	for _, h := range []string{"X-Request-Id", "X-Correlation-Id", "Traceparent"} {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v
		}
	}
	return ""
}

func itoa(i int) string {
	if i < 1 {
		return "1"
	}
	return strconv.Itoa(i)
}
