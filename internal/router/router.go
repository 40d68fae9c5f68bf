// Package router wires the matchmaking core's HTTP surface: the
// WebSocket upgrade endpoint (C8), the admin debug endpoint (spec.md §6
// "GET /matchmaking/queue"), and health/metrics. Grounded on the
// teacher's internal/router gin composition (CORS + rate limit
// middleware, grouped routes).
package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/thetranscendence/matchmaking/internal/container"
	"github.com/thetranscendence/matchmaking/internal/middleware"
)

// Setup configures the application's routes.
func Setup(r *gin.Engine, c *container.Container) {
	corsConfig := cors.DefaultConfig()
	if c.Config.AllowedOrigins == "*" || c.Config.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(c.Config.AllowedOrigins, ",")
	}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	r.Use(middleware.NewRateLimiter(middleware.RateLimitOptions{
		Enabled: true,
		RPS:     c.Config.RateRPS,
		Burst:   c.Config.RateBurst,
		Skipper: func(ctx *gin.Context) bool {
			return ctx.FullPath() == "/healthz" || ctx.FullPath() == "/metrics"
		},
	}))

	// C8 Gateway Adapter: the WebSocket upgrade endpoint (spec.md §6).
	// gorilla/websocket does its own upgrade on the raw ResponseWriter, so
	// it is mounted as a plain http.Handler rather than a gin handler func.
	r.GET("/ws/matchmaking", gin.WrapH(c.Gateway))

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Admin debug endpoint (spec.md §6): GET /matchmaking/queue.
	r.GET("/matchmaking/queue", func(ctx *gin.Context) {
		size, pending := c.Queue.Stats()
		ctx.JSON(http.StatusOK, gin.H{"size": size, "pending": pending})
	})
}
