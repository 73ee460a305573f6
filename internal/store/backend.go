package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Backend selects the database engine behind a Store. Callers pick it once at
// startup; nothing above this package branches on it.
type Backend string

const (
	// BackendSQLite stores state in a single SQLite file.
	BackendSQLite Backend = "sqlite"

	// BackendPostgres stores state in PostgreSQL through pgx.
	BackendPostgres Backend = "postgres"
)

// ParseBackend validates a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(s)) {
	case BackendSQLite, "sqlite3":
		return BackendSQLite, nil
	case BackendPostgres, "postgresql", "pgx":
		return BackendPostgres, nil
	}
	return "", fmt.Errorf("unknown database backend %q: must be sqlite or postgres", s)
}

// driverName returns the database/sql driver registered for the backend.
func (b Backend) driverName() string {
	if b == BackendPostgres {
		return "pgx"
	}
	return "sqlite3"
}

// dsn adapts a configured data source name for the driver.
//
// SQLite transactions take the write lock up front (BEGIN IMMEDIATE) so that
// two writers never interleave a read-then-write on the same key. The busy
// timeout is also set here so that every pool, including the short-lived
// migration pool, waits on locks.
func (b Backend) dsn(raw string) string {
	if b != BackendSQLite {
		return raw
	}
	params := []string{}
	if !strings.Contains(raw, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(raw, "_busy_timeout=") && !strings.Contains(raw, "_timeout=") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + strings.Join(params, "&")
}

// rebind rewrites '?' placeholders to the backend's native form.
func (b Backend) rebind(query string) string {
	if b != BackendPostgres || !strings.Contains(query, "?") {
		return query
	}
	var out strings.Builder
	out.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// lockSuffix returns the row-lock clause appended to reads that precede a
// write on the same row.
func (b Backend) lockSuffix() string {
	if b == BackendPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// readTxOptions returns options for snapshot reads. SQLite reads are already
// isolated by the single connection.
func (b Backend) readTxOptions() *sql.TxOptions {
	if b == BackendPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (b Backend) isUniqueViolation(err error) bool {
	switch b {
	case BackendSQLite:
		var se sqlite3.Error
		return errors.As(err, &se) &&
			(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	case BackendPostgres:
		var pe *pgconn.PgError
		return errors.As(err, &pe) && pe.Code == "23505"
	}
	return false
}

func (b Backend) isConnectionError(err error) bool {
	switch b {
	case BackendSQLite:
		var se sqlite3.Error
		return errors.As(err, &se) && (se.Code == sqlite3.ErrCantOpen || se.Code == sqlite3.ErrNotADB)
	case BackendPostgres:
		var ce *pgconn.ConnectError
		if errors.As(err, &ce) {
			return true
		}
		var pe *pgconn.PgError
		// Class 08: connection exception.
		return errors.As(err, &pe) && strings.HasPrefix(pe.Code, "08")
	}
	return false
}

func (b Backend) isTransientTxError(err error) bool {
	switch b {
	case BackendSQLite:
		var se sqlite3.Error
		return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
	case BackendPostgres:
		var pe *pgconn.PgError
		if errors.As(err, &pe) {
			switch pe.Code {
			case "40001", "40P01", "55P03", "57014":
				return true
			}
		}
		return pgconn.Timeout(err)
	}
	return false
}
