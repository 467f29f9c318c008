package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding sensor history, learned
// priors and aggregates. Readers never block writers: the journal
// runs in WAL mode and every logical operation uses its own
// connection from the pool.
type Store struct {
	// mu guards the handle itself: Close runs from the shutdown path
	// while queued storage tasks may still be in flight.
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// handle returns the current database handle, or nil after Close.
func (s *Store) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Open opens (or creates) the store at the given path, configures
// pragmas and ensures the schema. A schema-version mismatch deletes
// and rebuilds the database file; there is no in-place migration.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s, err := open(path, logger)
	if err != nil {
		return nil, err
	}

	if err := s.ensureSchema(); err != nil {
		// Version mismatch or unreadable schema: rebuild from scratch.
		logger.Warn("Rebuilding store", "path", path, "reason", err)
		s.close()
		if rmErr := removeDatabaseFiles(path); rmErr != nil {
			return nil, fmt.Errorf("failed to remove store for rebuild: %w", rmErr)
		}
		s, err = open(path, logger)
		if err != nil {
			return nil, err
		}
		if err := s.createSchema(); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to recreate schema: %w", err)
		}
	}

	return s, nil
}

// OpenMemory opens an in-memory store for testing.
func OpenMemory(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := open(":memory:", logger)
	if err != nil {
		return nil, err
	}
	// A single connection keeps the in-memory database alive and
	// visible to every operation.
	s.db.SetMaxOpenConns(1)
	if err := s.createSchema(); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the store.
func (s *Store) Close() error {
	s.logger.Info("Closing store", "path", s.path)
	return s.close()
}

func (s *Store) close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

// Exec executes a statement without returning rows.
func (s *Store) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db := s.handle()
	if db == nil {
		return nil, fmt.Errorf("store not open")
	}
	return db.ExecContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	db := s.handle()
	if db == nil {
		return nil, fmt.Errorf("store not open")
	}
	return db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns a single row. Only valid on
// an open store.
func (s *Store) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.handle().QueryRowContext(ctx, query, args...)
}

// Transaction executes a function within a database transaction with
// automatic rollback on error.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	db := s.handle()
	if db == nil {
		return fmt.Errorf("store not open")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetMetadata reads a metadata value; ok reports whether the key exists.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.QueryRow(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, true, nil
}

// SetMetadata writes a metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.Exec(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}
	return nil
}

// removeDatabaseFiles deletes the database together with its WAL
// and shared-memory sidecars.
func removeDatabaseFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
