// Package store provides commit-versioned relational storage on SQLite or
// PostgreSQL.
//
// Every stored fact is a row carrying a half-open validity interval
// [start_commit_num, end_commit_num) and an optional tenant scope
// (service_id). Rows are never changed in place except to close them:
//   - Insert: a new current row with end_commit_num = MaxCommit
//   - Close: end_commit_num set to the closing commit
//   - Replace: close plus insert under one commit
//
// # Invariants
//
// Single current version
//   - A partial unique index on (key, COALESCE(service_id, '')) WHERE
//     end_commit_num = MaxCommit rejects a second open row per key and scope
//
// No overlapping versions
//   - CHECK (start_commit_num < end_commit_num) on every table
//   - Writes at a commit below an existing current row are rejected
//
// Deterministic reads
//   - Every list query orders by the table's natural key columns
//   - Snapshot read transactions on PostgreSQL (REPEATABLE READ)
//
// # Database Configuration
//
// SQLite:
//   - One connection, BEGIN IMMEDIATE for every transaction
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000
//
// PostgreSQL (pgx stdlib driver):
//   - Connection pool sized by Options.MaxOpenConns
//   - SELECT ... FOR UPDATE on the row being closed
//
// Schema migrations are embedded per backend and applied by Open through
// golang-migrate.
package store
