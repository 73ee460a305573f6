package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// CommitsTable is the commit track. It is not versioned; rows are appended
// on apply and pruned on rollback.
const CommitsTable = "commits"

// TableDump is the full contents of one table rendered as strings.
type TableDump struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Dump returns every row of every versioned table and of the commit track in
// a deterministic order. Two stores holding the same state produce equal
// dumps regardless of the physical order rows were written in.
func (s *Store) Dump(ctx context.Context) ([]TableDump, error) {
	var out []TableDump
	err := s.ReadTx(ctx, func(tx *Tx) error {
		commits, err := dumpTable(ctx, tx, CommitsTable,
			[]string{"commit_num", "commit_id", "predecessor", colService},
			[]string{"COALESCE(service_id, '')", "commit_num"})
		if err != nil {
			return err
		}
		out = append(out, commits)

		for _, t := range Tables {
			cols := append(append(append([]string{}, t.Key...), t.Columns...), colStart, colEnd, colService)
			order := append(append([]string{"COALESCE(service_id, '')"}, t.Key...), colStart)
			d, err := dumpTable(ctx, tx, t.Name, cols, order)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func dumpTable(ctx context.Context, tx *Tx, name string, cols, order []string) (TableDump, error) {
	d := TableDump{Name: name, Columns: cols, Rows: [][]string{}}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), name, strings.Join(order, ", "))
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return d, tx.Classify("dump", name, "", err)
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return d, tx.Classify("dump", name, "", err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = dumpValue(v)
		}
		d.Rows = append(d.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return d, tx.Classify("dump", name, "", err)
	}
	return d, nil
}

// dumpValue renders a scanned column so that both drivers agree: SQLite
// hands back booleans as integers and text as bytes in some cases.
func dumpValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "x" + hex.EncodeToString(x)
	case string:
		return strconv.Quote(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

// Clear deletes every row from every table. Intended for tests and for
// rebuilding a replica from the ledger.
func (s *Store) Clear(ctx context.Context) error {
	return s.InTx(ctx, func(tx *Tx) error {
		names := []string{CommitsTable}
		for _, t := range Tables {
			names = append(names, t.Name)
		}
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
				return tx.Classify("clear", name, "", err)
			}
		}
		return nil
	})
}
