package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the SQLite database connections for the event store.
// Separate read and write pools leverage WAL mode's concurrency model:
// unlimited concurrent readers plus a single writer.
type SQLite struct {
	WriteDB *sql.DB // write-only pool, MaxOpenConns=1 for the WAL single writer
	ReadDB  *sql.DB // read-only pool for concurrent reads
	Path    string
	Logger  *zap.SugaredLogger
}

// configureConnection sets up WAL mode, foreign keys and busy timeout on a
// connection pool.
func configureConnection(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite disables foreign keys by default
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// In-memory databases report "memory" journal mode, not "wal"
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got: %s)", journalMode)
	}

	return nil
}

// NewSQLite opens the database, configures both pools and runs migrations.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath
	if dbPath == ":memory:" {
		// Shared cache so both pools see the same in-memory database
		dsn = "file::memory:?cache=shared"
	}

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write pool: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read pool: %w", err)
	}
	readDB.SetMaxOpenConns(10)

	s := &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}

	if err := configureConnection(writeDB, dbPath); err != nil {
		s.Close()
		return nil, err
	}
	if err := configureConnection(readDB, dbPath); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Infow("SQLite store ready", "path", dbPath)
	return s, nil
}

// Close closes both connection pools.
func (s *SQLite) Close() error {
	var firstErr error
	if s.WriteDB != nil {
		if err := s.WriteDB.Close(); err != nil {
			firstErr = err
		}
	}
	if s.ReadDB != nil {
		if err := s.ReadDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// migrate creates the schema. Statements are idempotent.
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			device_ref TEXT,
			user_ref TEXT,
			threat_level TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			raw_data TEXT,
			is_resolved INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_unresolved
			ON security_events(is_resolved, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_device
			ON security_events(device_ref)`,

		`CREATE TABLE IF NOT EXISTS devices (
			device_ref TEXT PRIMARY KEY,
			device_name TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT '',
			ip_address TEXT,
			owner_ref TEXT,
			trust_score REAL NOT NULL DEFAULT 0,
			is_compliant INTEGER NOT NULL DEFAULT 0,
			is_quarantined INTEGER NOT NULL DEFAULT 0,
			last_seen TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			user_ref TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS user_sessions (
			session_id TEXT PRIMARY KEY,
			user_ref TEXT NOT NULL REFERENCES users(user_ref),
			device_ref TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user
			ON user_sessions(user_ref, is_active)`,

		`CREATE TABLE IF NOT EXISTS threat_intel (
			ioc_type TEXT NOT NULL,
			ioc_value TEXT NOT NULL,
			threat_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (ioc_type, ioc_value)
		)`,

		`CREATE TABLE IF NOT EXISTS response_actions (
			action_id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			is_automated INTEGER NOT NULL DEFAULT 1,
			fail_reason TEXT,
			created_at TIMESTAMP NOT NULL,
			executed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_event
			ON response_actions(event_id)`,

		`CREATE TABLE IF NOT EXISTS incidents (
			incident_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL,
			assigned_to TEXT NOT NULL DEFAULT '',
			escalation_level INTEGER NOT NULL DEFAULT 0,
			device_ref TEXT,
			user_ref TEXT,
			source_events TEXT,
			correlations TEXT,
			response_actions TEXT,
			timeline TEXT,
			resolution TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_status
			ON incidents(status, priority)`,
	}

	for _, stmt := range stmts {
		if _, err := s.WriteDB.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
