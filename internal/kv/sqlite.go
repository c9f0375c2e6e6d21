package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const defaultCacheSize = 1024 * 1024 // 1MB

// SQLiteStore implements Store on a single SQLite table shared by namespaces.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	cache     *cache
	logger    zerolog.Logger
	mu        sync.RWMutex
	closed    bool
}

// SQLiteOption configures the store.
type SQLiteOption func(*SQLiteStore)

// WithCacheSize sets the read cache budget in bytes. Zero disables caching.
func WithCacheSize(n int) SQLiteOption {
	return func(s *SQLiteStore) { s.cache = newCache(n) }
}

// OpenSQLite opens (or creates) the database at dbPath and runs migrations.
func OpenSQLite(dbPath, namespace string, logger zerolog.Logger, opts ...SQLiteOption) (*SQLiteStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("kv: namespace required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		namespace: namespace,
		cache:     newCache(defaultCacheSize),
		logger:    logger.With().Str("component", "kv.sqlite").Str("namespace", namespace).Logger(),
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("store initialized")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}

	steps := []func() error{s.migrateV1}
	for i := version; i < len(steps); i++ {
		if err := steps[i](); err != nil {
			return fmt.Errorf("migrate v%d: %w", i+1, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, i+1); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);`)
	return err
}

// Get returns the stored bytes for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := s.cache.get(key); ok {
		return v, true, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	var val []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	// Filled under the read lock: Set holds the write lock, so no newer value
	// can land between the query and the fill.
	s.cache.put(key, val)
	return val, true, nil
}

// Set writes through to the database and the cache.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.namespace, key, value, time.Now().UnixMilli())
	if err != nil {
		s.cache.delete(key)
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	s.cache.put(key, value)
	return nil
}

// Delete removes key from the namespace.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.cache.delete(key)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every key of this namespace. Other namespaces are untouched.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.cache.clear()
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ?`, s.namespace)
	if err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info().Int64("keys", n).Msg("namespace cleared")
	return nil
}

// Keys lists the namespace's keys in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE namespace = ? ORDER BY key`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.clear()
	return s.db.Close()
}
