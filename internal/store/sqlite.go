// ABOUTME: SQLite audit store using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore records tool calls and relay deliveries in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_calls (
			id          TEXT PRIMARY KEY,
			tool        TEXT NOT NULL,
			rpc_id      TEXT NOT NULL,
			status      TEXT NOT NULL,
			error       TEXT,
			duration_ms INTEGER NOT NULL,
			created_at  TEXT NOT NULL,

			CHECK (status IN ('ok', 'error', 'invalid', 'not_found'))
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool);

		CREATE TABLE IF NOT EXISTS relay_events (
			id         TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			delivered  INTEGER NOT NULL,
			error      TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_relay_events_created ON relay_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_relay_events_request ON relay_events(request_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}
