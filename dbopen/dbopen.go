// Package dbopen opens the SQLite database behind the chapter store.
//
// Pragmas travel in the DSN as modernc.org/sqlite "_pragma" parameters so
// that every pooled connection gets them, not only the first one:
//
//	foreign_keys(1)      chapters cascade with their ebook
//	busy_timeout(10000)
//	journal_mode(WAL)
//	synchronous(NORMAL)
//
// Transactions begin IMMEDIATE: a writer waits on busy_timeout for the lock
// up front instead of failing when a read transaction upgrades.
//
//	db, err := dbopen.Open("data/ebookimport.db", dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)) // tests
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

type settings struct {
	busyTimeout time.Duration
	synchronous string
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*settings)

// WithBusyTimeout sets how long a connection waits for a lock (default 10s).
func WithBusyTimeout(d time.Duration) Option { return func(s *settings) { s.busyTimeout = d } }

// WithSynchronous sets PRAGMA synchronous (default NORMAL).
func WithSynchronous(mode string) Option { return func(s *settings) { s.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithSchema queues DDL run once after opening. It must be idempotent
// (CREATE ... IF NOT EXISTS).
func WithSchema(ddl string) Option { return func(s *settings) { s.schemas = append(s.schemas, ddl) } }

// DSN returns the driver data source name for path with the pragmas of opts.
func DSN(path string, opts ...Option) string {
	return dsn(path, resolve(opts))
}

func resolve(opts []Option) *settings {
	s := &settings{busyTimeout: 10 * time.Second, synchronous: "NORMAL"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func dsn(path string, s *settings) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous("+s.synchronous+")")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Open opens the database at path, runs the queued schemas and pings it.
// ":memory:" is limited to one connection, since each connection to it is a
// separate database.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := resolve(opts)

	if s.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create dir for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, s))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	for i, ddl := range s.schemas {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed on t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
