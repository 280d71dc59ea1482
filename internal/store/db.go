package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names accepted by NewDB.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open(DriverPostgres, connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db, Driver: DriverPostgres}, db.PingContext(context.Background())
}

// NewSQLite opens (and creates) a local database file for development kiosks.
func NewSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open(DriverSQLite, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer keeps the conditional upserts serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{Client: db, Driver: DriverSQLite}, nil
}

// Migrate creates the attendance schema for the connection's driver.
func (d *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.Driver == DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seminar_attendance (
	id                TEXT PRIMARY KEY,
	seminar_id        TEXT NOT NULL,
	participant_email TEXT NOT NULL,
	time_in           TIMESTAMPTZ,
	time_out          TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (seminar_id, participant_email),
	CHECK (time_out IS NULL OR time_in IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_seminar_attendance_created ON seminar_attendance (seminar_id, created_at);

-- RPC entry points for PostgREST deployments
CREATE OR REPLACE FUNCTION record_time_in(p_seminar_id TEXT, p_participant_email TEXT, p_at TIMESTAMPTZ)
RETURNS SETOF seminar_attendance
LANGUAGE sql AS $$
	INSERT INTO seminar_attendance AS a (id, seminar_id, participant_email, time_in, created_at)
	VALUES (gen_random_uuid()::text, p_seminar_id, p_participant_email, p_at, p_at)
	ON CONFLICT (seminar_id, participant_email) DO UPDATE
	SET time_in = COALESCE(a.time_in, EXCLUDED.time_in)
	RETURNING a.*;
$$;

CREATE OR REPLACE FUNCTION record_time_out(p_seminar_id TEXT, p_participant_email TEXT, p_at TIMESTAMPTZ)
RETURNS SETOF seminar_attendance
LANGUAGE sql AS $$
	WITH upd AS (
		UPDATE seminar_attendance
		SET time_out = p_at
		WHERE seminar_id = p_seminar_id AND participant_email = p_participant_email
		  AND time_in IS NOT NULL AND time_out IS NULL
		RETURNING *
	)
	SELECT * FROM upd
	UNION ALL
	SELECT * FROM seminar_attendance
	WHERE seminar_id = p_seminar_id AND participant_email = p_participant_email
	  AND NOT EXISTS (SELECT 1 FROM upd);
$$;
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seminar_attendance (
	id                TEXT PRIMARY KEY,
	seminar_id        TEXT NOT NULL,
	participant_email TEXT NOT NULL,
	time_in           TIMESTAMP,
	time_out          TIMESTAMP,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (seminar_id, participant_email),
	CHECK (time_out IS NULL OR time_in IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_seminar_attendance_created ON seminar_attendance (seminar_id, created_at);
`
