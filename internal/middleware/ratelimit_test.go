package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetranscendence/matchmaking/internal/middleware"
)

func newRouter(opts middleware.RateLimitOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewRateLimiter(opts))
	r.GET("/ws/matchmaking", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiter_Disabled_NeverLimits(t *testing.T) {
	r := newRouter(middleware.RateLimitOptions{Enabled: false})

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ws/matchmaking", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiter_ExceedsBurst_Returns429WithRetryAfter(t *testing.T) {
	r := newRouter(middleware.RateLimitOptions{Enabled: true, RPS: 1, Burst: 1})

	req := httptest.NewRequest(http.MethodGet, "/ws/matchmaking?token=abc", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "the single burst token must allow the first request")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_Skipper_BypassesHealthz(t *testing.T) {
	r := newRouter(middleware.RateLimitOptions{
		Enabled: true, RPS: 1, Burst: 1,
		Skipper: func(c *gin.Context) bool { return c.FullPath() == "/healthz" },
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "skipped route must never be rate-limited")
	}
}

func TestRateLimiter_DistinctTokens_GetIndependentBudgets(t *testing.T) {
	r := newRouter(middleware.RateLimitOptions{Enabled: true, RPS: 1, Burst: 1})

	// Two distinct WS connect tokens behind the same IP must not share a
	// bucket, since wsClientKey keys by token when one is present.
	reqA := httptest.NewRequest(http.MethodGet, "/ws/matchmaking?token=playerA", nil)
	reqA.RemoteAddr = "10.0.0.9:1"
	reqB := httptest.NewRequest(http.MethodGet, "/ws/matchmaking?token=playerB", nil)
	reqB.RemoteAddr = "10.0.0.9:1"

	wA := httptest.NewRecorder()
	r.ServeHTTP(wA, reqA)
	assert.Equal(t, http.StatusOK, wA.Code)

	wB := httptest.NewRecorder()
	r.ServeHTTP(wB, reqB)
	assert.Equal(t, http.StatusOK, wB.Code, "a distinct connect token must get its own budget")
}
