// Package sqlstore implements core.Store on database/sql, for SQLite
// (modernc.org/sqlite) and Postgres (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/aretw0/churn/pkg/core"
)

// Store is a SQL-backed core.Store.
type Store struct {
	db      *sql.DB
	q       *queries
	dialect Dialect
	logger  *slog.Logger
	source  string

	// txMu serializes WithTransaction.
	txMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens a store for dialect d. The schema is not touched until
// Initialize.
func Open(d Dialect, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}

	s := &Store{
		db:      db,
		q:       newQueries(d),
		dialect: d,
		logger:  slog.New(slog.DiscardHandler),
		source:  dsn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file at path.
// SQLite admits one writer, so the pool is limited to a single connection.
func OpenSQLite(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "churn.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	s, err := Open(SQLite, dsn, opts...)
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(1)
	s.source = path
	return s, nil
}

// OpenPostgres opens a Postgres database.
func OpenPostgres(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = "postgres://localhost/churn?sslmode=disable"
	}
	return Open(Postgres, dsn, opts...)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Initialize implements core.Store by applying the schema.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name, err)
	}
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	s.logger.Debug("schema ready", "dialect", s.dialect.Name)
	return nil
}

// Close implements core.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.ErrClosed
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.q.Count(ctx, s.db)
}

func (s *Store) GetByOffset(ctx context.Context, i int) (core.Record, error) {
	if err := s.check(); err != nil {
		return core.Record{}, err
	}
	return s.q.GetByOffset(ctx, s.db, i)
}

func (s *Store) GetFirst(ctx context.Context) (core.Record, error) {
	if err := s.check(); err != nil {
		return core.Record{}, err
	}
	return s.q.GetFirst(ctx, s.db)
}

func (s *Store) Get(ctx context.Context, id core.ID) (core.Record, error) {
	if err := s.check(); err != nil {
		return core.Record{}, err
	}
	return s.q.Get(ctx, s.db, id)
}

func (s *Store) Page(ctx context.Context, offset, limit int) ([]core.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.q.Page(ctx, s.db, offset, limit)
}

// InsertMany implements core.Store. Large inserts are split into several
// statements inside one transaction.
func (s *Store) InsertMany(ctx context.Context, records ...core.Record) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.InsertMany(ctx, records...)
	})
}

func (s *Store) Update(ctx context.Context, r core.Record) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.q.Update(ctx, s.db, r)
}

func (s *Store) Delete(ctx context.Context, id core.ID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.q.Delete(ctx, s.db, id)
}

// WithTransaction implements core.Store.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) (retErr error) {
	if err := s.check(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	t := &transaction{tx: sqlTx, q: s.q}
	defer func() {
		if retErr != nil {
			if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", "error", err)
			}
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ core.Store = (*Store)(nil)
