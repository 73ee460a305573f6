// Package model defines the domain types persisted by the versioned state
// store: agents, organizations, locations, products and schemas, together
// with the commit-interval bookkeeping every stored version carries.
//
// This package contains type definitions and pure helpers only. Every other
// internal package imports model; model imports nothing internal.
//
// Key constraints:
//   - Commit numbers are int64. MaxCommit marks the open end of the current
//     version and is never a real commit.
//   - A nil ServiceID is the shared scope. It only ever matches rows stored
//     without a service id.
//   - Nested properties are plain trees here. Flattening happens in the
//     entity stores.
//   - All JSON tags use snake_case.
package model
