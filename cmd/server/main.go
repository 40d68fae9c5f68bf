// Command server boots the matchmaking core: it loads configuration,
// assembles the container, starts the periodic matcher tick (C5) as a
// background goroutine, and serves the WebSocket gateway (C8) plus the
// admin/health/metrics HTTP surface until an interrupt signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thetranscendence/matchmaking/internal/config"
	"github.com/thetranscendence/matchmaking/internal/container"
	"github.com/thetranscendence/matchmaking/internal/logger"
	"github.com/thetranscendence/matchmaking/internal/router"
)

var healthCheckFlag = flag.Bool("healthcheck", false, "Run health check and exit")

func main() {
	flag.Parse()

	if *healthCheckFlag {
		if err := healthCheck(); err != nil {
			log.Fatal("Health check failed:", err)
		}
		fmt.Println("Health check passed")
		os.Exit(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		ServiceName:   "matchmaking",
		Environment:   os.Getenv("GO_ENV"),
		EnableConsole: true,
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	log := logger.GetLogger()

	c, err := container.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer c.DBConn.Close()

	// C5 Matcher Tick: runs until the root context is cancelled on
	// shutdown.
	tickCtx, stopTick := context.WithCancel(context.Background())
	go c.Matcher.Run(tickCtx)

	gin.SetMode(ginModeFor(os.Getenv("GO_ENV")))
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Setup(r, c)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("matchmaking server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down matchmaking server...")

	stopTick()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("matchmaking server exited gracefully")
}

func ginModeFor(env string) string {
	if env == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

func healthCheck() error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:8080/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
