// Package ledger tracks which ledger commits have been applied to the state
// store and rolls the store back when the ledger forks.
//
// A Ledger is bound to one scope. In shared mode that is the nil scope; in
// multi-circuit mode each service id has its own commit chain, and a rollback
// of one chain never touches rows of another.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// CommitRecord is one applied ledger commit.
type CommitRecord struct {
	Num         model.Commit `json:"commit_num"`
	ID          string       `json:"commit_id"`
	Predecessor model.Commit `json:"predecessor"`
}

// ForkError reports a commit whose predecessor is not the recorded head.
// It matches store.ErrForkDetected under errors.Is.
type ForkError struct {
	Scope       *string
	Head        model.Commit
	Commit      model.Commit
	Predecessor model.Commit
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("%s: commit %d extends %d but head of %s is %d",
		store.CodeForkDetected, e.Commit, e.Predecessor, model.ScopeName(e.Scope), e.Head)
}

// Unwrap exposes the store sentinel so store.IsForkDetected recognizes the
// error.
func (e *ForkError) Unwrap() error {
	return store.ErrForkDetected
}

// Behind reports whether the incoming commit forks below the head, which is
// recoverable by rolling back to its predecessor. Otherwise commits between
// the head and the predecessor are missing.
func (e *ForkError) Behind() bool {
	return e.Predecessor < e.Head
}

// Ledger is the commit track of one scope.
type Ledger struct {
	db     *store.Store
	scope  *string
	logger *slog.Logger
}

// New binds a ledger to scope. A nil scope is the shared chain.
func New(db *store.Store, scope *string) *Ledger {
	return &Ledger{db: db, scope: model.NormalizeScope(scope), logger: slog.Default()}
}

// WithLogger returns a copy of l logging to logger.
func (l *Ledger) WithLogger(logger *slog.Logger) *Ledger {
	cp := *l
	cp.logger = logger
	return &cp
}

// Scope returns the service id the ledger is bound to.
func (l *Ledger) Scope() *string {
	return l.scope
}

// CurrentHeight returns the highest recorded commit, or model.NoCommit when
// nothing has been applied.
func (l *Ledger) CurrentHeight(ctx context.Context) (model.Commit, error) {
	var head model.Commit
	err := l.db.ReadTx(ctx, func(tx *store.Tx) error {
		var err error
		head, err = l.head(ctx, tx)
		return err
	})
	return head, err
}

// HeightTx returns the recorded head as seen by tx.
func (l *Ledger) HeightTx(ctx context.Context, tx *store.Tx) (model.Commit, error) {
	return l.head(ctx, tx)
}

func (l *Ledger) head(ctx context.Context, tx *store.Tx) (model.Commit, error) {
	where, args := scopeWhere(l.scope)
	var head sql.NullInt64
	query := "SELECT MAX(commit_num) FROM " + store.CommitsTable + " WHERE " + where
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&head); err != nil {
		return model.NoCommit, tx.Classify("read head", "commit", "", err)
	}
	if !head.Valid {
		return model.NoCommit, nil
	}
	return model.Commit(head.Int64), nil
}

// RecordCommit appends rec to the commit track inside tx, the same
// transaction that applies the commit's state changes.
//
// It fails with a *ForkError when rec.Predecessor is not the current head,
// and with a retryable store.CodeTransaction error when a concurrent
// transaction recorded a successor of the same head first. The commit track
// allows one successor per commit, so two writers of one chain serialize on
// this insert and the loser's state writes are rolled back with it.
func (l *Ledger) RecordCommit(ctx context.Context, tx *store.Tx, rec CommitRecord) error {
	if !rec.Num.Valid() {
		return store.NewInvalidInputError("commit", rec.Num.String(), "commit number out of range")
	}
	if rec.Predecessor < model.NoCommit || rec.Num <= rec.Predecessor {
		return store.NewInvalidInputError("commit", rec.Num.String(),
			"commit must be greater than its predecessor %d", rec.Predecessor)
	}

	head, err := l.head(ctx, tx)
	if err != nil {
		return err
	}
	if rec.Predecessor != head {
		return &ForkError{Scope: l.scope, Head: head, Commit: rec.Num, Predecessor: rec.Predecessor}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+store.CommitsTable+" (commit_num, commit_id, predecessor, service_id) VALUES (?, ?, ?, ?)",
		rec.Num, rec.ID, rec.Predecessor, scopeArg(l.scope))
	if err != nil {
		err = tx.Classify("record commit", "commit", rec.Num.String(), err)
		if store.IsInvariantViolation(err) {
			// Another transaction extended the same head after it was read.
			return store.NewConflictError("record commit", "commit", rec.Num.String(), err)
		}
		return err
	}
	return nil
}

// Commits lists the recorded commits of the scope, oldest first.
//
// Returns an empty slice (not nil) when nothing has been applied.
func (l *Ledger) Commits(ctx context.Context) ([]CommitRecord, error) {
	out := []CommitRecord{}
	err := l.db.ReadTx(ctx, func(tx *store.Tx) error {
		where, args := scopeWhere(l.scope)
		rows, err := tx.QueryContext(ctx,
			"SELECT commit_num, commit_id, predecessor FROM "+store.CommitsTable+" WHERE "+where+" ORDER BY commit_num ASC",
			args...)
		if err != nil {
			return tx.Classify("list commits", "commit", "", err)
		}
		defer rows.Close()
		for rows.Next() {
			var rec CommitRecord
			if err := rows.Scan(&rec.Num, &rec.ID, &rec.Predecessor); err != nil {
				return tx.Classify("list commits", "commit", "", err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scopeWhere(scope *string) (string, []any) {
	if scope == nil {
		return "service_id IS NULL", nil
	}
	return "service_id = ?", []any{*scope}
}

func scopeArg(scope *string) any {
	if scope == nil {
		return nil
	}
	return *scope
}
