package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cache_namespaces (
	namespace  TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Ensure SQLiteBackend implements Backend
var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackend stores persisted namespaces in a local SQLite file, one row
// per namespace.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend opens (or creates) the database at path.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	backend, err := NewSQLiteBackend(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

// NewSQLiteBackend wraps an open database and ensures the schema exists.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Load returns the namespace blob or ErrCacheMiss.
func (b *SQLiteBackend) Load(ctx context.Context, namespace string) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM cache_namespaces WHERE namespace = ?`, namespace,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("sqlite select: %w", err)
	}
	return payload, nil
}

// Save upserts the namespace blob.
func (b *SQLiteBackend) Save(ctx context.Context, namespace string, payload []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO cache_namespaces (namespace, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		namespace, payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite upsert: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
