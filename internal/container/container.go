// Package container wires the matchmaking core's dependencies by explicit
// constructor composition, grounded on the teacher's internal/container
// pattern (parameter-passed dependency injection, no reflection).
package container

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/thetranscendence/matchmaking/internal/auth"
	"github.com/thetranscendence/matchmaking/internal/config"
	"github.com/thetranscendence/matchmaking/internal/db"
	"github.com/thetranscendence/matchmaking/internal/gameclient"
	"github.com/thetranscendence/matchmaking/internal/gateway"
	"github.com/thetranscendence/matchmaking/internal/matcher"
	"github.com/thetranscendence/matchmaking/internal/matchqueue"
	"github.com/thetranscendence/matchmaking/internal/notifier"
	"github.com/thetranscendence/matchmaking/internal/penalty"
	"github.com/thetranscendence/matchmaking/internal/readycheck"
	"github.com/thetranscendence/matchmaking/internal/sessionlog"
	"github.com/thetranscendence/matchmaking/internal/usersclient"
)

// Container holds every long-lived collaborator the matchmaking core
// needs, assembled once at process start (spec.md §9: "one long-lived
// instance per process, owned by the bootstrap code").
type Container struct {
	Config *config.Config
	DBConn *sql.DB

	PenaltyStore penalty.Store
	SessionLog   sessionlog.Log
	GameClient   *gameclient.Client
	UsersClient  *usersclient.Client

	Queue      *matchqueue.Queue
	Registry   *notifier.Registry
	Notifier   notifier.Notifier
	ReadyCheck *readycheck.FSM
	Matcher    *matcher.Matcher

	TokenValidator *auth.TokenValidator
	Gateway        *gateway.Adapter
}

// New constructs a Container with every matchmaking-core collaborator
// wired per spec.md §9's explicit-construction rule.
func New(cfg *config.Config) (*Container, error) {
	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	tuneDBPool(dbConn, cfg)

	penaltyStore := penalty.NewPostgresStore(dbConn)
	sessionLog := sessionlog.NewPostgresLog(dbConn)

	gameClient := gameclient.NewClient(cfg.GameServiceURL, time.Duration(cfg.GameClientTimeoutMS)*time.Millisecond)
	usersClient := usersclient.NewClient(
		cfg.UserServiceURL,
		time.Duration(cfg.UsersClientTimeoutMS)*time.Millisecond,
		usersclient.WithDefaultElo(cfg.DefaultElo),
	)

	registry := notifier.NewRegistry()
	wsNotifier := notifier.NewWSNotifier(registry)
	queue := matchqueue.NewQueue(penaltyStore, matchqueue.WithNotifier(wsNotifier))

	readyCheck := readycheck.NewFSM(
		queue,
		wsNotifier,
		penaltyStore,
		sessionLog,
		gameClient,
		time.Duration(cfg.MatchAcceptTimeoutMS)*time.Millisecond,
		cfg.PenaltyDurationSeconds,
	)

	m := matcher.NewMatcher(
		queue,
		readyCheck,
		wsNotifier,
		time.Duration(cfg.TickIntervalMS)*time.Millisecond,
		float64(cfg.BaseToleranceElo),
		time.Duration(cfg.ExpansionIntervalMS)*time.Millisecond,
		cfg.ExpansionStep,
	)

	tokenValidator := auth.NewTokenValidator(cfg.JWTSecret)

	gw := gateway.NewAdapter(queue, readyCheck, wsNotifier, registry, usersClient, tokenValidator, parseAllowedOrigins(cfg.AllowedOrigins))

	return &Container{
		Config:         cfg,
		DBConn:         dbConn,
		PenaltyStore:   penaltyStore,
		SessionLog:     sessionLog,
		GameClient:     gameClient,
		UsersClient:    usersClient,
		Queue:          queue,
		Registry:       registry,
		Notifier:       wsNotifier,
		ReadyCheck:     readyCheck,
		Matcher:        m,
		TokenValidator: tokenValidator,
		Gateway:        gw,
	}, nil
}

// tuneDBPool sets connection-pool bounds from config, falling back to
// conservative defaults sized for this core's narrow read/write pattern
// (penalty lookups + session-log inserts only).
func tuneDBPool(conn *sql.DB, cfg *config.Config) {
	maxOpen := 25
	maxIdle := 25
	maxLife := 2 * time.Hour
	maxIdleTime := 5 * time.Minute

	if cfg.DBMaxOpenConns > 0 {
		maxOpen = cfg.DBMaxOpenConns
	}
	if cfg.DBMaxIdleConns > 0 {
		maxIdle = cfg.DBMaxIdleConns
	}
	if cfg.DBConnMaxLifetime > 0 {
		maxLife = time.Duration(cfg.DBConnMaxLifetime) * time.Hour
	}
	if cfg.DBConnMaxIdleTime > 0 {
		maxIdleTime = time.Duration(cfg.DBConnMaxIdleTime) * time.Minute
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(maxLife)
	conn.SetConnMaxIdleTime(maxIdleTime)
}

// parseAllowedOrigins turns the comma-separated CORS_ORIGINS config value
// into the set gateway.NewAdapter's WebSocket upgrader checks against.
// "*" (or empty) means no origin restriction, signalled by a nil set.
func parseAllowedOrigins(raw string) map[string]bool {
	if raw == "" || raw == "*" {
		return nil
	}
	out := make(map[string]bool)
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out[origin] = true
		}
	}
	return out
}
