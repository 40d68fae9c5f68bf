package sessionlog_test

import (
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetranscendence/matchmaking/internal/config"
	appdb "github.com/thetranscendence/matchmaking/internal/db"
	"github.com/thetranscendence/matchmaking/internal/sessionlog"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load test config: %v", err)
	}

	testDB, err = appdb.NewConnection(cfg)
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}
	defer testDB.Close()

	os.Exit(m.Run())
}

func withLog(t *testing.T, testFunc func(l sessionlog.Log)) {
	tx, err := testDB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	l := sessionlog.NewPostgresLog(tx)
	testFunc(l)
}

func TestPostgresLog_Append_Success(t *testing.T) {
	withLog(t, func(l sessionlog.Log) {
		entry := sessionlog.Entry{
			ID:        uuid.New().String(),
			Player1ID: "p1",
			Player2ID: "p2",
			Status:    "STARTED",
			StartedAt: time.Now(),
		}
		assert.NoError(t, l.Append(entry))
	})
}

func TestPostgresLog_Append_DuplicateID(t *testing.T) {
	withLog(t, func(l sessionlog.Log) {
		entry := sessionlog.Entry{
			ID:        uuid.New().String(),
			Player1ID: "p1",
			Player2ID: "p2",
			Status:    "STARTED",
			StartedAt: time.Now(),
		}
		require.NoError(t, l.Append(entry))

		err := l.Append(entry)
		assert.Error(t, err, "a second insert with the same matchId must fail the primary key constraint")
	})
}
