package ledger

import (
	"context"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// RollbackResult summarizes one rollback.
type RollbackResult struct {
	Target   model.Commit `json:"target"`
	Previous model.Commit `json:"previous"`
	Deleted  int64        `json:"deleted_rows"`
	Reopened int64        `json:"reopened_rows"`
	Commits  int64        `json:"pruned_commits"`
}

// RollbackTo restores the scope's state to exactly what it was after commit
// had been applied, as if no later commit was ever seen.
//
// In one transaction, for every versioned table:
//  1. rows born after commit are deleted,
//  2. rows closed after commit are reopened,
//
// and commit records above commit are pruned. Deleting first guarantees a
// reopened row never collides with a later re-add of the same key. A
// verification pass then counts rows still outside the bound; any such row
// is reported as a fatal store.ErrCorruption and the transaction is aborted.
func (l *Ledger) RollbackTo(ctx context.Context, commit model.Commit) (RollbackResult, error) {
	res := RollbackResult{Target: commit}
	if commit < model.NoCommit || commit == model.MaxCommit {
		return res, store.NewInvalidInputError("commit", commit.String(), "rollback target out of range")
	}

	where, scopeArgs := scopeWhere(l.scope)
	err := l.db.InTx(ctx, func(tx *store.Tx) error {
		head, err := l.head(ctx, tx)
		if err != nil {
			return err
		}
		res.Previous = head

		for _, t := range store.Tables {
			deleted, err := exec(ctx, tx, t.Name,
				"DELETE FROM "+t.Name+" WHERE start_commit_num > ? AND "+where,
				append([]any{commit}, scopeArgs...)...)
			if err != nil {
				return err
			}
			res.Deleted += deleted

			reopened, err := exec(ctx, tx, t.Name,
				"UPDATE "+t.Name+" SET end_commit_num = ? WHERE end_commit_num > ? AND end_commit_num <> ? AND "+where,
				append([]any{model.MaxCommit, commit, model.MaxCommit}, scopeArgs...)...)
			if err != nil {
				// A unique violation here means two versions of one key
				// would both be current again.
				if store.IsInvariantViolation(err) {
					return store.NewCorruptionError("rollback", "reopening %s rows after commit %d violates single-current: %v", t.Name, commit, err)
				}
				return err
			}
			res.Reopened += reopened
		}

		pruned, err := exec(ctx, tx, store.CommitsTable,
			"DELETE FROM "+store.CommitsTable+" WHERE commit_num > ? AND "+where,
			append([]any{commit}, scopeArgs...)...)
		if err != nil {
			return err
		}
		res.Commits = pruned

		return l.verify(ctx, tx, commit)
	})
	if err != nil {
		return res, err
	}

	l.logger.Info("rolled back",
		"scope", model.ScopeName(l.scope),
		"target", int64(commit),
		"previous", int64(res.Previous),
		"deleted_rows", res.Deleted,
		"reopened_rows", res.Reopened,
		"pruned_commits", res.Commits)
	return res, nil
}

// verify checks that no row of the scope references a commit above the
// rollback target.
func (l *Ledger) verify(ctx context.Context, tx *store.Tx, commit model.Commit) error {
	where, scopeArgs := scopeWhere(l.scope)
	for _, t := range store.Tables {
		var n int64
		query := "SELECT COUNT(*) FROM " + t.Name +
			" WHERE (start_commit_num > ? OR (end_commit_num > ? AND end_commit_num <> ?)) AND " + where
		args := append([]any{commit, commit, model.MaxCommit}, scopeArgs...)
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return tx.Classify("verify rollback", t.Name, "", err)
		}
		if n > 0 {
			return store.NewCorruptionError("verify rollback",
				"%d rows of %s still reference commits above %d", n, t.Name, commit)
		}
	}

	head, err := l.head(ctx, tx)
	if err != nil {
		return err
	}
	if head > commit {
		return store.NewCorruptionError("verify rollback", "commit track head %d above target %d", head, commit)
	}
	return nil
}

func exec(ctx context.Context, tx *store.Tx, table, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, tx.Classify("rollback", table, "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, tx.Classify("rollback", table, "", err)
	}
	return n, nil
}
