// Package store defines the table interface over a tutor's remote workspace.
//
// A workspace holds named tables. Each table has a header row that defines
// its column order; every following row is a data row. Positions are 1-based
// and counted from the first data row. Stores perform no client-side locking
// and there is no transaction spanning a Scan and a later UpdateRow: another
// writer may shift rows in between, and the update then lands on a different
// row. Workspaces are expected to have a single owner.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
)

var (
	ErrAuthenticationFailed = errors.New("backend authentication failed")
	ErrWorkspaceNotFound    = errors.New("workspace not found")
	ErrTableNotFound        = errors.New("table not found")
	ErrTableCreationFailed  = errors.New("table creation failed")
	ErrInvalidPosition      = errors.New("invalid row position")
	ErrRowNotFound          = errors.New("row not found")
)

// Table is a handle to a table inside a workspace.
type Table struct {
	Workspace string
	Name      string
	Header    []string
	// ID is a backend-specific identifier (sheet id, primary key).
	ID int64
}

func (t *Table) String() string {
	return t.Workspace + "/" + t.Name
}

// Store is the persistence interface for workspace tables.
type Store interface {
	// EnsureTable returns the named table, creating it with its declared
	// header when it does not exist.
	EnsureTable(ctx context.Context, workspace, name string) (*Table, error)
	// Scan returns every data row in order. Blank rows are included.
	Scan(ctx context.Context, t *Table) ([][]string, error)
	// Append adds a row after the last data row.
	Append(ctx context.Context, t *Table, row []string) error
	// UpdateRow overwrites the row at position.
	UpdateRow(ctx context.Context, t *Table, position int, row []string) error
	// Rewrite replaces all data rows, keeping the header.
	Rewrite(ctx context.Context, t *Table, rows [][]string) error

	Close() error
}

// EnsureAllTables provisions every declared table in workspace.
func EnsureAllTables(ctx context.Context, s Store, workspace string) (map[string]*Table, error) {
	tables := make(map[string]*Table, len(model.Schemas))
	for _, name := range model.TableNames() {
		t, err := s.EnsureTable(ctx, workspace, name)
		if err != nil {
			return nil, fmt.Errorf("ensure table %s: %w", name, err)
		}
		tables[name] = t
	}
	return tables, nil
}

// FindByKey returns the position of the first row whose cell at col equals
// value, or ErrRowNotFound.
func FindByKey(ctx context.Context, s Store, t *Table, col int, value string) (int, error) {
	rows, err := s.Scan(ctx, t)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if col < len(row) && row[col] == value {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %s[%d]=%q", ErrRowNotFound, t, col, value)
}

// DeleteMatching removes the first row for which match returns true by
// rewriting the table without it. It reports whether a row was removed; no
// write happens when nothing matches.
func DeleteMatching(ctx context.Context, s Store, t *Table, match func(position int, row []string) (bool, error)) (bool, error) {
	rows, err := s.Scan(ctx, t)
	if err != nil {
		return false, err
	}
	for i, row := range rows {
		ok, err := match(i+1, row)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		kept := make([][]string, 0, len(rows)-1)
		kept = append(kept, rows[:i]...)
		kept = append(kept, rows[i+1:]...)
		if err := s.Rewrite(ctx, t, kept); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// CheckPosition validates a 1-based position against an optional row count.
// Pass count < 0 when the count is unknown.
func CheckPosition(t *Table, position, count int) error {
	if position < 1 || (count >= 0 && position > count) {
		return fmt.Errorf("%w: %s row %d", ErrInvalidPosition, t, position)
	}
	return nil
}

// Pad returns row extended with empty cells to width. Longer rows are
// returned unchanged.
func Pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
