package testutil

import (
	"sync"

	"github.com/roach88/gridstate/internal/model"
)

// CommitClock hands out a deterministic, gap-free commit sequence for tests.
//
// The first call to Next returns commit 1 with predecessor 0, mirroring a
// ledger that starts from genesis.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type CommitClock struct {
	mu   sync.Mutex
	head model.Commit
}

// NewCommitClock creates a clock whose next commit is start+1.
func NewCommitClock(start model.Commit) *CommitClock {
	return &CommitClock{head: start}
}

// Next advances the clock and returns the new commit and its predecessor.
func (c *CommitClock) Next() (commit, predecessor model.Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	predecessor = c.head
	c.head++
	return c.head, predecessor
}

// Current returns the last commit handed out without advancing.
func (c *CommitClock) Current() model.Commit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Reset rewinds the clock so the next commit is to+1. Used to replay a
// competing branch after a simulated fork.
func (c *CommitClock) Reset(to model.Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = to
}
