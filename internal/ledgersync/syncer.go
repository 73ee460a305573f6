package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/gridstate/internal/ledger"
	"github.com/roach88/gridstate/internal/metrics"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// ErrMissingCommits is returned for a batch whose predecessor is above the
// recorded head. The commits in between were never delivered, and skipping
// them would silently lose state.
var ErrMissingCommits = errors.New("missing commits")

// Source delivers batches in commit order. Next returns io.EOF once the
// source is drained.
type Source interface {
	Next(ctx context.Context) (Batch, error)
}

// Syncer applies batches from a Source, recovering from forks.
type Syncer struct {
	applier    *Applier
	source     Source
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithRetries sets how often a transient failure is retried and the initial
// delay, which doubles on each attempt.
func WithRetries(n int, backoff time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.maxRetries = n
		s.backoff = backoff
	}
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = l }
}

// WithSyncMetrics records rollbacks.
func WithSyncMetrics(m *metrics.Metrics) SyncerOption {
	return func(s *Syncer) { s.metrics = m }
}

// NewSyncer creates a syncer reading from src.
func NewSyncer(a *Applier, src Source, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		applier:    a,
		source:     src,
		logger:     slog.Default(),
		maxRetries: 5,
		backoff:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run applies batches until the source is drained, ctx is cancelled or a
// batch cannot be applied. A drained source returns nil.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		b, err := s.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Handle(ctx, b); err != nil {
			return err
		}
	}
}

// Handle applies one batch.
//
// A batch forking below the head rolls the chain back to the batch's
// predecessor and is then applied; the rolled-back commits are never skipped
// silently, since the source is expected to redeliver the winning branch.
// Transient store errors are retried with backoff. Everything else is
// returned to the caller with the batch untouched.
func (s *Syncer) Handle(ctx context.Context, b Batch) error {
	delay := s.backoff
	rolledBack := false
	for attempt := 0; ; attempt++ {
		err := s.applier.Apply(ctx, b)
		if err == nil {
			return nil
		}

		var fork *ledger.ForkError
		switch {
		case errors.As(err, &fork):
			if !fork.Behind() {
				return fmt.Errorf("%w: commit %d needs predecessor %d but head of %s is %d",
					ErrMissingCommits, b.Commit, b.Predecessor, model.ScopeName(fork.Scope), fork.Head)
			}
			if rolledBack {
				return fmt.Errorf("commit %d still forks after rollback: %w", b.Commit, err)
			}
			if err := s.rollback(ctx, b); err != nil {
				return err
			}
			rolledBack = true

		case store.IsRetryable(err) && attempt < s.maxRetries:
			s.logger.Warn("retrying commit",
				"commit", int64(b.Commit),
				"attempt", attempt+1,
				"delay", delay,
				"error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2

		default:
			return err
		}
	}
}

func (s *Syncer) rollback(ctx context.Context, b Batch) error {
	scope := s.applier.ScopeOf(b)
	res, err := s.applier.Ledger(scope).RollbackTo(ctx, b.Predecessor)
	if err != nil {
		return fmt.Errorf("rollback to %d: %w", b.Predecessor, err)
	}
	s.metrics.RolledBack(scope, res.Target, res.Deleted, res.Reopened)
	s.logger.Warn("fork detected, rolled back",
		"service_id", model.ScopeName(scope),
		"commit", int64(b.Commit),
		"previous_head", int64(res.Previous),
		"target", int64(res.Target))
	return nil
}
