package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps session records in a local SQLite database. It is
// the default store for single-node deployments; multi-node setups
// point every instance at the RedisStore instead.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (and if needed creates) the session database at
// the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_sessions (
		connection_key TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_sessions_updated_at ON tool_sessions(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, connectionKey, sessionID string) error {
	query := `
	INSERT INTO tool_sessions (connection_key, session_id, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(connection_key) DO UPDATE SET
		session_id = excluded.session_id,
		updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, connectionKey, sessionID, s.now().Unix())
	return err
}

func (s *SQLiteStore) Find(ctx context.Context, connectionKey string) (string, bool, error) {
	query := `SELECT session_id FROM tool_sessions WHERE connection_key = ?`

	var sessionID string
	err := s.db.QueryRowContext(ctx, query, connectionKey).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sessionID, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, connectionKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tool_sessions WHERE connection_key = ?`, connectionKey)
	return err
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan).Unix()

	result, err := s.db.ExecContext(ctx, `DELETE FROM tool_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
