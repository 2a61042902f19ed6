package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := validateSQLiteFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes appends from this process, which keeps
	// insertion order equal to call order and the pragmas below in effect.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS queue_entries (
  seq        INTEGER PRIMARY KEY AUTOINCREMENT,
  id         TEXT NOT NULL UNIQUE,
  queue_key  TEXT NOT NULL,
  payload    JSON NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS queue_entries_key_seq_idx ON queue_entries(queue_key, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

// SQLiteStore keeps each queue as rows of queue_entries ordered by seq.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already bootstrapped database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append inserts entry as a single row; the insert is atomic.
func (s *SQLiteStore) Append(ctx context.Context, key string, entry []byte) error {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO queue_entries(id, queue_key, payload, created_at)
VALUES(?, ?, ?, ?);
`, id, key, string(entry), now)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries WHERE queue_key = ?;`, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	n, err := s.Len(ctx, key)
	if err != nil {
		return nil, err
	}
	offset, limit, ok := normalizeRange(start, stop, n)
	if !ok {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM queue_entries
WHERE queue_key = ?
ORDER BY seq ASC
LIMIT ? OFFSET ?;
`, key, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("range queue entries: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, []byte(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range queue entries: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
