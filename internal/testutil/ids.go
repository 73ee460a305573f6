package testutil

import "fmt"

// SequentialIDs generates commit ids "commit-0001", "commit-0002", ...
//
// This keeps commit track dumps byte-identical between test runs.
//
// Thread-safety: SequentialIDs is not safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      int
}

// NewSequentialIDs creates a generator using prefix. An empty prefix
// defaults to "commit".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "commit"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
