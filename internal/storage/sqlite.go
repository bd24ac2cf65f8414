package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID`

// SQLiteStore is a Store on a single SQLite table keyed by the encoded key.
// Prefix scans are primary-key range reads over [prefix, PrefixEnd(prefix)).
type SQLiteStore struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	mu     sync.Mutex

	upsertStmt *sql.Stmt
}

// NewSQLiteStore opens (or creates) the database file at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to initialize schema: %w", err)
	}

	// The file exists now, so read-only connections can attach to it.
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	upsert, err := db.Prepare(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to prepare upsert statement: %w", err)
	}

	return &SQLiteStore{db: db, readDB: readDB, upsertStmt: upsert}, nil
}

// Put writes all entries in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, entries ...Entry) error {
	keys := make([][]byte, len(entries))
	for i, e := range entries {
		enc, err := EncodeKey(e.Key)
		if err != nil {
			return err
		}
		keys[i] = enc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return putFailed(err)
	}
	stmt := tx.StmtContext(ctx, s.upsertStmt)
	for i, e := range entries {
		value := e.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, keys[i], value); err != nil {
			tx.Rollback()
			return putFailed(err)
		}
	}
	return putFailed(tx.Commit())
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key Key) ([]byte, error) {
	enc, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = s.readDB.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", enc).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

// ScanPrefix reads the key range covered by prefix in key order.
func (s *SQLiteStore) ScanPrefix(ctx context.Context, prefix Key, fn ScanFunc) error {
	enc, err := EncodeKey(prefix)
	if err != nil {
		return err
	}

	var rows *sql.Rows
	if end := PrefixEnd(enc); end != nil {
		rows, err = s.readDB.QueryContext(ctx,
			"SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key", enc, end)
	} else {
		rows, err = s.readDB.QueryContext(ctx,
			"SELECT key, value FROM kv WHERE key >= ? ORDER BY key", enc)
	}
	if err != nil {
		return scanFailed(prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rawKey, value []byte
		if err := rows.Scan(&rawKey, &value); err != nil {
			return scanFailed(prefix, err)
		}
		key, err := DecodeKey(rawKey)
		if err != nil {
			return scanFailed(prefix, err)
		}
		if err := fn(Entry{Key: key, Value: value}); err != nil {
			return err
		}
	}
	return scanFailed(prefix, rows.Err())
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	s.upsertStmt.Close()
	readErr := s.readDB.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return readErr
}
