package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateWorkspace(ctx context.Context, db executor, ref string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO workspaces (ref) VALUES ($1)
		ON CONFLICT (ref) DO NOTHING`, ref)
	if err != nil {
		return fmt.Errorf("create workspace %s: %w", ref, err)
	}
	return nil
}

func queryWorkspaceExists(ctx context.Context, db executor, ref string) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workspaces WHERE ref = $1)`, ref).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("look up workspace %s: %w", ref, err)
	}
	return ok, nil
}

// queryEnsureTable inserts the table or returns the existing one. The no-op
// update makes RETURNING yield the stored row on conflict; a stored header is
// never replaced.
func queryEnsureTable(ctx context.Context, db executor, workspace, name string, header []string) (*store.Table, error) {
	if header == nil {
		header = []string{}
	}
	row := db.QueryRowContext(ctx, `
		INSERT INTO sheet_tables (workspace_ref, name, header)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_ref, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, header`,
		workspace, name, pq.Array(header))
	t, err := scanTable(row)
	if err != nil {
		return nil, err
	}
	t.Workspace = workspace
	t.Name = name
	return t, nil
}

func queryScanRows(ctx context.Context, db executor, t *store.Table) ([][]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE table_id = $1 ORDER BY position`, t.ID)
	if err != nil {
		return nil, tableError(t, err)
	}
	defer rows.Close()
	return scanCells(rows)
}

// queryAppendRow places row after the current last position. The aggregate
// yields one row even for an empty table.
func queryAppendRow(ctx context.Context, db executor, t *store.Table, row []string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sheet_rows (table_id, position, cells)
		SELECT $1, COALESCE(MAX(position), 0) + 1, $2
		FROM sheet_rows WHERE table_id = $1`,
		t.ID, pq.Array(cellsOrEmpty(row)))
	if err != nil {
		return tableError(t, err)
	}
	return nil
}

func queryInsertRow(ctx context.Context, db executor, t *store.Table, position int, row []string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sheet_rows (table_id, position, cells) VALUES ($1, $2, $3)`,
		t.ID, position, pq.Array(cellsOrEmpty(row)))
	if err != nil {
		return tableError(t, err)
	}
	return nil
}

func queryUpdateRow(ctx context.Context, db executor, t *store.Table, position int, row []string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sheet_rows SET cells = $3 WHERE table_id = $1 AND position = $2`,
		t.ID, position, pq.Array(cellsOrEmpty(row)))
	if err != nil {
		return tableError(t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s row %d", store.ErrInvalidPosition, t, position)
	}
	return nil
}

func queryDeleteRows(ctx context.Context, db executor, t *store.Table) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sheet_rows WHERE table_id = $1`, t.ID); err != nil {
		return tableError(t, err)
	}
	return nil
}
