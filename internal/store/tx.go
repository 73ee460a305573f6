package store

import (
	"context"
	"database/sql"
)

// Tx is a transaction handle bound to one operation. SQL passed to its
// methods uses '?' placeholders regardless of backend.
//
// A Tx must not be shared between goroutines.
type Tx struct {
	tx      *sql.Tx
	backend Backend
}

// Backend reports the engine the transaction runs on.
func (t *Tx) Backend() Backend {
	return t.backend
}

// ExecContext executes a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.backend.rebind(query), args...)
}

// QueryContext runs a query inside the transaction.
// Callers are responsible for closing the returned rows.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.backend.rebind(query), args...)
}

// QueryRowContext runs a single-row query inside the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.backend.rebind(query), args...)
}

// Classify maps a raw driver error into the store taxonomy. Errors that
// already carry a code are returned unchanged.
func (t *Tx) Classify(op, entity, key string, err error) error {
	return t.backend.classify(op, entity, key, err)
}
