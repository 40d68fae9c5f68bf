// Package sessionlog implements C2 Session Log: an append-only record of
// started matches, grounded on the same repository pattern as
// internal/penalty.
package sessionlog

import (
	"fmt"
	"time"

	appdb "github.com/thetranscendence/matchmaking/internal/db"
)

// Entry is a SessionLog entry (spec.md §3).
type Entry struct {
	ID        string
	Player1ID string
	Player2ID string
	Status    string
	StartedAt time.Time
}

// Log is the interface Finalize (§4.4) depends on. A write failure is
// best-effort and must never abort finalization.
type Log interface {
	Append(entry Entry) error
}

type postgresLog struct {
	db appdb.DBTX
}

// NewPostgresLog constructs a Log backed by the matchmaking_sessions table.
func NewPostgresLog(db appdb.DBTX) Log {
	return &postgresLog{db: db}
}

func (l *postgresLog) Append(entry Entry) error {
	query := `INSERT INTO matchmaking_sessions (id, player_1_id, player_2_id, status, started_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := l.db.Exec(query, entry.ID, entry.Player1ID, entry.Player2ID, entry.Status, entry.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to append session log entry: %w", err)
	}
	return nil
}
