package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gridstate/internal/model"
)

// Filter narrows a list read.
type Filter struct {
	// Prefix matches the leading Table.Key columns, for example the parent
	// key of a child table.
	Prefix []any

	// Page windows the result. The zero Page returns every row.
	Page model.Page
}

// predicate accumulates a WHERE clause.
type predicate struct {
	clauses []string
	args    []any
}

func (p *predicate) eq(col string, v any) {
	p.clauses = append(p.clauses, col+" = ?")
	p.args = append(p.args, v)
}

func (p *predicate) add(clause string, args ...any) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

// prefix matches vals against the leading key columns of t.
func (p *predicate) prefix(t *Table, vals []any) {
	for i, v := range vals {
		p.eq(t.Key[i], v)
	}
}

// scope applies the tenant rule: a nil scope only sees rows stored without a
// service id, and a non-nil scope only sees its own rows.
func (p *predicate) scope(scope *string) {
	if scope == nil {
		p.add(colService + " IS NULL")
		return
	}
	p.eq(colService, *scope)
}

// current matches open versions.
func (p *predicate) current() {
	p.eq(colEnd, model.MaxCommit)
}

// at matches the version visible at commit. MaxCommit selects the current
// version, since no closed-open interval contains the sentinel itself.
func (p *predicate) at(commit model.Commit) {
	if commit == model.MaxCommit {
		p.current()
		return
	}
	p.add(colStart+" <= ? AND ? < "+colEnd, commit, commit)
}

func (p *predicate) String() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

func scopeArg(scope *string) any {
	if scope == nil {
		return nil
	}
	return *scope
}

func checkCommit(op string, t *Table, commit model.Commit) error {
	if !commit.Valid() {
		return NewInvalidInputError(t.Entity, "", "%s: commit %d out of range", op, commit)
	}
	return nil
}

func checkKey(op string, t *Table, key []any) error {
	if len(key) != len(t.Key) {
		return NewInvalidInputError(t.Entity, keyString(key), "%s: expected %d key values, got %d", op, len(t.Key), len(key))
	}
	return nil
}

// InsertCurrent writes v as the current version of its key in scope,
// starting at commit.
//
// It fails with ErrInvariantViolation when the key already has a current
// version in scope. The partial unique index on each table enforces the same
// rule against concurrent writers.
func InsertCurrent[T any](ctx context.Context, tx *Tx, c *Codec[T], scope *string, commit model.Commit, v T) error {
	const op = "insert current"
	t := c.Table
	if err := checkCommit(op, t, commit); err != nil {
		return err
	}
	key := c.Key(&v)
	if err := checkKey(op, t, key); err != nil {
		return err
	}

	var p predicate
	p.prefix(t, key)
	p.scope(scope)
	p.current()
	n, err := count(ctx, tx, t, &p)
	if err != nil {
		return tx.Classify(op, t.Entity, keyString(key), err)
	}
	if n > 0 {
		return NewInvariantError(op, t.Entity, keyString(key), "a current version already exists in scope %s", model.ScopeName(scope))
	}

	args := make([]any, 0, len(t.Key)+len(t.Columns)+3)
	args = append(args, key...)
	args = append(args, c.Values(&v)...)
	args = append(args, commit, model.MaxCommit, scopeArg(scope))
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, t.selectColumns(), placeholders)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return tx.Classify(op, t.Entity, keyString(key), err)
	}
	return nil
}

// CloseCurrent ends the current version of key in scope at commit and
// returns it as it was before closing. ok is false when no version was
// current.
//
// A version born at the same commit is removed instead of closed, since it is
// not visible at any committed height. A current version born after commit
// is an ErrInvariantViolation.
//
// Callers record the chain's commit in tx first (ledger.RecordCommit, as the
// sync applier does). That serializes writers of one scope, so the row lock
// below never waits on another writer and a missing row means the key really
// has no current version.
func CloseCurrent[T any](ctx context.Context, tx *Tx, c *Codec[T], key []any, scope *string, commit model.Commit) (v T, ok bool, err error) {
	const op = "close current"
	t := c.Table
	if err := checkCommit(op, t, commit); err != nil {
		return v, false, err
	}
	if err := checkKey(op, t, key); err != nil {
		return v, false, err
	}

	var p predicate
	p.prefix(t, key)
	p.scope(scope)
	p.current()

	query := fmt.Sprintf("SELECT %s FROM %s%s%s", t.selectColumns(), t.Name, p.String(), tx.backend.lockSuffix())
	v, err = c.scanInto(tx.QueryRowContext(ctx, query, p.args...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		return v, false, tx.Classify(op, t.Entity, keyString(key), err)
	}

	start := c.Version(&v).StartCommit
	switch {
	case start > commit:
		return v, false, NewInvariantError(op, t.Entity, keyString(key),
			"current version starts at commit %d, after closing commit %d", start, commit)
	case start == commit:
		query = fmt.Sprintf("DELETE FROM %s%s", t.Name, p.String())
		_, err = expectOne(tx.ExecContext(ctx, query, p.args...))
	default:
		args := append([]any{commit}, p.args...)
		query = fmt.Sprintf("UPDATE %s SET %s = ?%s", t.Name, colEnd, p.String())
		_, err = expectOne(tx.ExecContext(ctx, query, args...))
	}
	if err != nil {
		return v, false, tx.Classify(op, t.Entity, keyString(key), err)
	}
	return v, true, nil
}

// errConcurrentWrite is returned when a row read under lock changed before
// the following statement ran.
var errConcurrentWrite = &Error{Code: CodeTransaction, Message: "current version changed concurrently", Transient: true}

func expectOne(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return n, errConcurrentWrite
	}
	return n, nil
}

// ReplaceCurrent closes the current version of v's key at commit and inserts
// v as the new current version. It fails with ErrNotFound when there is
// nothing to replace.
func ReplaceCurrent[T any](ctx context.Context, tx *Tx, c *Codec[T], scope *string, commit model.Commit, v T) error {
	key := c.Key(&v)
	_, ok, err := CloseCurrent(ctx, tx, c, key, scope, commit)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError(c.Table.Entity, keyString(key))
	}
	return InsertCurrent(ctx, tx, c, scope, commit, v)
}

// CloseAll ends every current row of t whose leading key columns match
// prefix, returning how many rows were closed or removed. Child collections
// are replaced wholesale by closing them and inserting the new set.
func CloseAll(ctx context.Context, tx *Tx, t *Table, prefix []any, scope *string, commit model.Commit) (int64, error) {
	const op = "close all"
	if err := checkCommit(op, t, commit); err != nil {
		return 0, err
	}
	if len(prefix) > len(t.Key) {
		return 0, NewInvalidInputError(t.Entity, keyString(prefix), "%s: prefix longer than key", op)
	}

	base := func() *predicate {
		var p predicate
		p.prefix(t, prefix)
		p.scope(scope)
		p.current()
		return &p
	}

	future := base()
	future.add(colStart+" > ?", commit)
	n, err := count(ctx, tx, t, future)
	if err != nil {
		return 0, tx.Classify(op, t.Entity, keyString(prefix), err)
	}
	if n > 0 {
		return 0, NewInvariantError(op, t.Entity, keyString(prefix),
			"%d current rows start after closing commit %d", n, commit)
	}

	born := base()
	born.add(colStart+" = ?", commit)
	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", t.Name, born.String()), born.args...)
	if err != nil {
		return 0, tx.Classify(op, t.Entity, keyString(prefix), err)
	}
	removed, _ := res.RowsAffected()

	older := base()
	older.add(colStart+" < ?", commit)
	args := append([]any{commit}, older.args...)
	res, err = tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ?%s", t.Name, colEnd, older.String()), args...)
	if err != nil {
		return 0, tx.Classify(op, t.Entity, keyString(prefix), err)
	}
	closed, _ := res.RowsAffected()

	return removed + closed, nil
}

// ReadCurrent returns the current version of key in scope.
func ReadCurrent[T any](ctx context.Context, tx *Tx, c *Codec[T], key []any, scope *string) (T, error) {
	return ReadAsOf(ctx, tx, c, key, scope, model.MaxCommit)
}

// ReadAsOf returns the version of key in scope visible at commit, or
// ErrNotFound when none is.
func ReadAsOf[T any](ctx context.Context, tx *Tx, c *Codec[T], key []any, scope *string, commit model.Commit) (T, error) {
	const op = "read"
	t := c.Table
	if err := checkKey(op, t, key); err != nil {
		var zero T
		return zero, err
	}

	var p predicate
	p.prefix(t, key)
	p.scope(scope)
	p.at(commit)

	query := fmt.Sprintf("SELECT %s FROM %s%s", t.selectColumns(), t.Name, p.String())
	v, err := c.scanInto(tx.QueryRowContext(ctx, query, p.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return v, NewNotFoundError(t.Entity, keyString(key))
	}
	if err != nil {
		return v, tx.Classify(op, t.Entity, keyString(key), err)
	}
	return v, nil
}

// ListCurrent returns the current rows in scope, in the table's
// deterministic order.
func ListCurrent[T any](ctx context.Context, tx *Tx, c *Codec[T], scope *string, f Filter) ([]T, error) {
	return ListAsOf(ctx, tx, c, scope, model.MaxCommit, f)
}

// ListAsOf returns the rows in scope visible at commit.
//
// Returns an empty slice (not nil) if no rows are visible.
func ListAsOf[T any](ctx context.Context, tx *Tx, c *Codec[T], scope *string, commit model.Commit, f Filter) ([]T, error) {
	t := c.Table
	var p predicate
	p.prefix(t, f.Prefix)
	p.scope(scope)
	p.at(commit)

	limit, limitArgs := tx.backend.limitClause(f.Page.Normalize())
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s%s",
		t.selectColumns(), t.Name, p.String(), strings.Join(t.order(), ", "), limit)
	return queryAll(ctx, tx, c, query, append(p.args, limitArgs...)...)
}

// History returns every stored version of key in scope, oldest first.
func History[T any](ctx context.Context, tx *Tx, c *Codec[T], key []any, scope *string) ([]T, error) {
	t := c.Table
	if err := checkKey("history", t, key); err != nil {
		return nil, err
	}
	var p predicate
	p.prefix(t, key)
	p.scope(scope)

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s ASC", t.selectColumns(), t.Name, p.String(), colStart)
	return queryAll(ctx, tx, c, query, p.args...)
}

// CountAsOf returns how many rows in scope matching prefix are visible at
// commit.
func CountAsOf(ctx context.Context, tx *Tx, t *Table, scope *string, commit model.Commit, prefix []any) (int, error) {
	var p predicate
	p.prefix(t, prefix)
	p.scope(scope)
	p.at(commit)
	n, err := count(ctx, tx, t, &p)
	if err != nil {
		return 0, tx.Classify("count", t.Entity, keyString(prefix), err)
	}
	return int(n), nil
}

func count(ctx context.Context, tx *Tx, t *Table, p *predicate) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.Name, p.String())
	if err := tx.QueryRowContext(ctx, query, p.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func queryAll[T any](ctx context.Context, tx *Tx, c *Codec[T], query string, args ...any) ([]T, error) {
	t := c.Table
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tx.Classify("list", t.Entity, "", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := c.scanInto(rows)
		if err != nil {
			return nil, tx.Classify("scan", t.Entity, "", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, tx.Classify("iterate", t.Entity, "", err)
	}
	return out, nil
}

// limitClause renders a page as LIMIT/OFFSET. SQLite requires a LIMIT before
// OFFSET; -1 means unbounded there.
func (b Backend) limitClause(page model.Page) (string, []any) {
	switch {
	case page.Limit > 0 && page.Offset > 0:
		return " LIMIT ? OFFSET ?", []any{page.Limit, page.Offset}
	case page.Limit > 0:
		return " LIMIT ?", []any{page.Limit}
	case page.Offset > 0 && b == BackendSQLite:
		return " LIMIT -1 OFFSET ?", []any{page.Offset}
	case page.Offset > 0:
		return " OFFSET ?", []any{page.Offset}
	}
	return "", nil
}
