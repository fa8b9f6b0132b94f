package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Connect opens the database for driver ("postgres" or "sqlite") and runs migrations.
func Connect(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*sqlx.DB, error) {
	db, err := Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Str("driver", driver).Msg("database migrations applied")
	return db, nil
}

// Open connects without migrating.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "postgres":
	case "sqlite":
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == "sqlite" {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Migrate applies the schema. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	timestamp := "TIMESTAMP"
	blob := "BLOB"
	if db.DriverName() == "postgres" {
		timestamp = "TIMESTAMPTZ"
		blob = "BYTEA"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS room_sequences (
            room_id TEXT PRIMARY KEY,
            last_id BIGINT NOT NULL
        );`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS messages (
            room_id TEXT NOT NULL,
            id BIGINT NOT NULL,
            author_name TEXT NOT NULL,
            text TEXT NOT NULL DEFAULT '',
            media_url TEXT NOT NULL DEFAULT '',
            correlation_id TEXT NOT NULL DEFAULT '',
            created_at %s NOT NULL,
            PRIMARY KEY (room_id, id)
        );`, timestamp),
		`CREATE UNIQUE INDEX IF NOT EXISTS messages_correlation_idx
            ON messages (room_id, correlation_id) WHERE correlation_id <> '';`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS blobs (
            key TEXT PRIMARY KEY,
            content_type TEXT NOT NULL,
            size BIGINT NOT NULL,
            data %s NOT NULL,
            created_at %s NOT NULL
        );`, blob, timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS remote_config (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at %s NOT NULL
        );`, timestamp),
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
