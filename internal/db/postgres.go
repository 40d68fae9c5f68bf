package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thetranscendence/matchmaking/internal/config"
	"github.com/thetranscendence/matchmaking/internal/logger"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver, the connection penalty.Store and sessionlog.Log run on
)

// NewConnection opens the single *sql.DB pool this core's penalty store and
// session log share, tuned from config rather than pgx defaults.
func NewConnection(cfg *config.Config) (*sql.DB, error) {
	conn, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not open database connection: %w", err)
	}

	conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
	conn.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Minute)
	conn.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Hour)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	logger.Info("database connection pool ready", logger.Fields{
		"max_open_conns": cfg.DBMaxOpenConns,
		"max_idle_conns": cfg.DBMaxIdleConns,
	})

	return conn, nil
}