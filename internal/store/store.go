package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Options configures Open.
type Options struct {
	// Backend selects the database engine. Defaults to BackendSQLite.
	Backend Backend

	// DSN is the SQLite database path or the PostgreSQL connection string.
	DSN string

	// MaxOpenConns bounds the connection pool. SQLite always uses one.
	MaxOpenConns int

	// StatementTimeout bounds every operation started through InTx or
	// ReadTx. Zero disables the bound.
	StatementTimeout time.Duration

	// Logger receives store diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store provides durable, commit-versioned storage for ledger state.
//
// One Store wraps one database/sql pool. All version bookkeeping is done in
// SQL that both backends accept; the Backend value only rewrites
// placeholders, picks lock clauses and classifies driver errors.
type Store struct {
	db      *sql.DB
	backend Backend
	dsn     string
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects to the configured database, applies backend settings and
// brings the schema up to date.
//
// SQLite databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - BEGIN IMMEDIATE transactions
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Backend == "" {
		opts.Backend = BackendSQLite
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DSN == "" {
		return nil, NewInvalidInputError("database", "", "dsn is empty")
	}

	db, err := sql.Open(opts.Backend.driverName(), opts.Backend.dsn(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Code: CodeConnection, Op: "open", Message: "failed to connect to database", Err: err, Transient: true}
	}

	switch opts.Backend {
	case BackendSQLite:
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	case BackendPostgres:
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
			db.SetMaxIdleConns(opts.MaxOpenConns)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	s := &Store{db: db, backend: opts.Backend, dsn: opts.DSN, timeout: opts.StatementTimeout, logger: opts.Logger}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	opts.Logger.Debug("store opened", "backend", string(opts.Backend))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backend reports the engine behind the store.
func (s *Store) Backend() Backend {
	return s.backend
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.backend.classify("ping", "", "", err)
	}
	return nil
}

// InTx runs fn inside a read-write transaction. The transaction commits when
// fn returns nil and rolls back otherwise, including when fn panics.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, nil, fn)
}

// ReadTx runs fn inside a snapshot read transaction so that multi-query reads
// (a parent row and its attribute tree) observe one consistent state.
func (s *Store) ReadTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, s.backend.readTxOptions(), fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx *Tx) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return s.backend.classify("begin tx", "", "", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{tx: sqlTx, backend: s.backend}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.backend.classify("commit tx", "", "", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
