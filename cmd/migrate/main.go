package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/thetranscendence/matchmaking/internal/config"
)

const migrationsTable = "matchmaking_schema_migrations"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[MIGRATE] failed to load configuration: ", err)
	}

	if len(os.Args) < 2 {
		log.Fatal("[MIGRATE] usage: migrate <up|down|version|create|force|drop> [args...]")
	}

	switch os.Args[1] {
	case "up":
		if err := runUp(cfg.DSN); err != nil {
			log.Fatal("[MIGRATE] up failed: ", err)
		}

	case "down":
		steps := 1
		if len(os.Args) > 2 {
			if s, err := strconv.Atoi(os.Args[2]); err == nil && s > 0 {
				steps = s
			}
		}
		if err := runDown(cfg.DSN, steps); err != nil {
			log.Fatal("[MIGRATE] down failed: ", err)
		}
		log.Printf("[MIGRATE] rolled back %d step(s)", steps)

	case "version":
		version, dirty, err := currentVersion(cfg.DSN)
		if err != nil {
			log.Fatal("[MIGRATE] failed to read version: ", err)
		}
		state := "clean"
		if dirty {
			state = "dirty"
		}
		fmt.Printf("schema version %d (%s)\n", version, state)

	case "create":
		if len(os.Args) < 3 {
			log.Fatal("[MIGRATE] usage: migrate create <name>")
		}
		if err := createMigrationFiles(os.Args[2]); err != nil {
			log.Fatal("[MIGRATE] failed to create migration: ", err)
		}

	case "force":
		if len(os.Args) < 3 {
			log.Fatal("[MIGRATE] usage: migrate force <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal("[MIGRATE] invalid version: ", err)
		}
		if err := forceVersion(cfg.DSN, version); err != nil {
			log.Fatal("[MIGRATE] force failed: ", err)
		}
		log.Printf("[MIGRATE] forced schema version to %d", version)

	case "drop":
		fmt.Print("drop every matchmaking-core table? this cannot be undone (y/N): ")
		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			log.Fatal("[MIGRATE] failed to read confirmation: ", err)
		}
		if response != "y" && response != "Y" {
			log.Println("[MIGRATE] drop cancelled")
			return
		}
		if err := dropSchema(cfg.DSN); err != nil {
			log.Fatal("[MIGRATE] drop failed: ", err)
		}
		log.Println("[MIGRATE] schema dropped")

	default:
		log.Fatal("[MIGRATE] unknown command; use: up, down, version, create, force, or drop")
	}
}

// newMigrator opens its own short-lived *sql.DB via lib/pq — a second,
// independent connection from the pgx pool internal/db.NewConnection hands
// the running server, since this CLI never shares a process with it.
func newMigrator(dsn string) (*migrate.Migrate, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer conn.Close()

	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("building postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://internal/migrations", "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("building migrate instance: %w", err)
	}
	return m, nil
}

func runUp(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			log.Println("[MIGRATE] schema already up to date")
			return nil
		}
		return fmt.Errorf("applying up migrations: %w", err)
	}
	log.Println("[MIGRATE] schema migrated up")
	return nil
}

func runDown(dsn string, steps int) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("applying down migrations: %w", err)
	}
	return nil
}

func currentVersion(dsn string) (uint, bool, error) {
	m, err := newMigrator(dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("reading version: %w", err)
	}
	return version, dirty, nil
}

func forceVersion(dsn string, version int) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("forcing version: %w", err)
	}
	return nil
}

func dropSchema(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	return nil
}

// createMigrationFiles writes a timestamped up/down stub pair, the same
// naming golang-migrate's own source/file driver expects to find under
// internal/migrations.
func createMigrationFiles(name string) error {
	timestamp := time.Now().Unix()
	upPath := fmt.Sprintf("internal/migrations/%06d_%s.up.sql", timestamp, name)
	downPath := fmt.Sprintf("internal/migrations/%06d_%s.down.sql", timestamp, name)

	stamp := time.Now().Format("2006-01-02 15:04:05")
	if err := os.WriteFile(upPath, []byte(fmt.Sprintf("-- %s (%s) up\n", name, stamp)), 0o644); err != nil {
		return fmt.Errorf("writing up file: %w", err)
	}
	if err := os.WriteFile(downPath, []byte(fmt.Sprintf("-- %s (%s) down\n", name, stamp)), 0o644); err != nil {
		return fmt.Errorf("writing down file: %w", err)
	}

	log.Printf("[MIGRATE] created %s", upPath)
	log.Printf("[MIGRATE] created %s", downPath)
	return nil
}
