package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

// foreignKeyViolation is the SQLSTATE raised when a row references a table
// that no longer exists.
const foreignKeyViolation = "23503"

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanTable scans an (id, header) row.
func scanTable(row scannable) (*store.Table, error) {
	var t store.Table
	var header pq.StringArray
	if err := row.Scan(&t.ID, &header); err != nil {
		return nil, err
	}
	t.Header = []string(header)
	return &t, nil
}

// scanCells collects the cells column of every row.
func scanCells(rows *sql.Rows) ([][]string, error) {
	out := [][]string{}
	for rows.Next() {
		var cells pq.StringArray
		if err := rows.Scan(&cells); err != nil {
			return nil, err
		}
		out = append(out, []string(cells))
	}
	return out, rows.Err()
}

func cellsOrEmpty(row []string) []string {
	if row == nil {
		return []string{}
	}
	return row
}

// tableError maps a foreign key violation on t to store.ErrTableNotFound.
func tableError(t *store.Table, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
		return fmt.Errorf("%w: %s", store.ErrTableNotFound, t)
	}
	return err
}
