package model

import (
	"math"
	"strconv"
)

// Commit is a position in the ledger's totally ordered commit sequence.
type Commit int64

const (
	// NoCommit is the height of a ledger that has recorded nothing. It is
	// also the predecessor of the first commit.
	NoCommit Commit = 0

	// MaxCommit is the sentinel end bound of a version that is still current.
	MaxCommit Commit = math.MaxInt64
)

// Valid reports whether c can be recorded as a real commit.
func (c Commit) Valid() bool {
	return c > NoCommit && c < MaxCommit
}

func (c Commit) String() string {
	if c == MaxCommit {
		return "max"
	}
	return strconv.FormatInt(int64(c), 10)
}

// ParseCommit parses a decimal commit number. "max" and "current" map to
// MaxCommit.
func ParseCommit(s string) (Commit, error) {
	switch s {
	case "max", "current":
		return MaxCommit, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return NoCommit, err
	}
	return Commit(n), nil
}

// Version is the interval bookkeeping carried by every stored record.
//
// A version is visible at commit c when StartCommit <= c < EndCommit.
// EndCommit == MaxCommit means the version is current.
type Version struct {
	StartCommit Commit  `json:"start_commit_num"`
	EndCommit   Commit  `json:"end_commit_num"`
	ServiceID   *string `json:"service_id,omitempty"`
}

// IsCurrent reports whether the version has not been closed.
func (v Version) IsCurrent() bool {
	return v.EndCommit == MaxCommit
}

// VisibleAt reports whether the version is the one visible at commit c.
func (v Version) VisibleAt(c Commit) bool {
	return v.StartCommit <= c && c < v.EndCommit
}

// ServiceID returns a scope pointer for id, or nil for the empty string.
func ServiceID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// ScopeName renders a scope for logs and error messages.
func ScopeName(scope *string) string {
	if scope == nil {
		return "<shared>"
	}
	return *scope
}

// SameScope reports whether two scopes name the same tenant partition.
func SameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
