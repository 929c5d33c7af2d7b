package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLitePersistence is a swappable ports.PersistencePort backed by
// github.com/mattn/go-sqlite3 — the pack's only embedded-SQL-driver
// example — for deployments that want queryable history instead of
// append-only JSONL files.
type SQLitePersistence struct {
	db *sql.DB
}

// OpenSQLitePersistence opens (creating if needed) a SQLite database at
// path and ensures its two append-only tables exist.
func OpenSQLitePersistence(path string) (*SQLitePersistence, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("adapters: open sqlite db: %w", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS file_modifications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id TEXT NOT NULL,
	path TEXT NOT NULL,
	recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS reward_signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id TEXT NOT NULL,
	reward REAL NOT NULL,
	payload TEXT,
	recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("adapters: create sqlite schema: %w", err)
	}
	return &SQLitePersistence{db: db}, nil
}

func (s *SQLitePersistence) RecordFileModification(ctx context.Context, groupID, path string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO file_modifications (group_id, path) VALUES (?, ?)`, groupID, path)
	if err != nil {
		return fmt.Errorf("adapters: insert file modification: %w", err)
	}
	return nil
}

func (s *SQLitePersistence) RecordRewardSignal(ctx context.Context, groupID string, reward float64, payload map[string]any) error {
	var payloadJSON []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("adapters: encode reward payload: %w", err)
		}
		payloadJSON = encoded
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO reward_signals (group_id, reward, payload) VALUES (?, ?, ?)`, groupID, reward, string(payloadJSON))
	if err != nil {
		return fmt.Errorf("adapters: insert reward signal: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLitePersistence) Close() error {
	return s.db.Close()
}
