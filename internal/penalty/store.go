// Package penalty implements C1 Penalty Store: lookup and insertion of
// time-bounded user bans, grounded on the repository pattern in
// internal/repository/game_repo.go (DBTX, $N placeholders, sql.ErrNoRows
// mapped to a sentinel).
package penalty

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	appdb "github.com/thetranscendence/matchmaking/internal/db"
)

// ErrNoActivePenalty is returned by GetActivePenalty when the user has no
// currently active ban. Callers in the matchmaking core treat this as
// "not banned", not as a failure.
var ErrNoActivePenalty = errors.New("no active penalty")

// Penalty is a ban record (spec.md §3).
type Penalty struct {
	ID        uuid.UUID
	UserID    string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store is the interface the matchmaking core depends on. addPlayer and
// Cancel() are the only callers.
type Store interface {
	GetActivePenalty(userID string) (*Penalty, error)
	AddPenalty(userID string, durationSeconds int, reason string) error
}

type postgresStore struct {
	db appdb.DBTX
}

// NewPostgresStore constructs a Store backed by the penalties table.
func NewPostgresStore(db appdb.DBTX) Store {
	return &postgresStore{db: db}
}

// GetActivePenalty returns the user's active ban, or ErrNoActivePenalty if
// none is currently in effect (expires_at > now).
func (s *postgresStore) GetActivePenalty(userID string) (*Penalty, error) {
	query := `SELECT id, user_id, reason, expires_at, created_at
	          FROM penalties
	          WHERE user_id = $1 AND expires_at > NOW()
	          ORDER BY expires_at DESC
	          LIMIT 1`

	var p Penalty
	err := s.db.QueryRow(query, userID).Scan(&p.ID, &p.UserID, &p.Reason, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActivePenalty
		}
		return nil, fmt.Errorf("failed to get active penalty: %w", err)
	}
	return &p, nil
}

// AddPenalty inserts a new ban expiring durationSeconds from now.
func (s *postgresStore) AddPenalty(userID string, durationSeconds int, reason string) error {
	query := `INSERT INTO penalties (id, user_id, reason, expires_at, created_at)
	          VALUES ($1, $2, $3, NOW() + ($4 || ' seconds')::interval, NOW())`

	id := uuid.New()
	_, err := s.db.Exec(query, id, userID, reason, durationSeconds)
	if err != nil {
		return fmt.Errorf("failed to add penalty: %w", err)
	}
	return nil
}
