// Package postgres implements the store.Store interface backed by PostgreSQL.
//
// Each workspace is a row in workspaces; its tables live in sheet_tables and
// their rows in sheet_rows, keyed by a dense 1-based position.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", store.ErrAuthenticationFailed, err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newWithDB(db), nil
}

func newWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateWorkspace registers ref so that its tables can be ensured. It is a
// no-op for an existing workspace.
func (s *PostgresStore) CreateWorkspace(ctx context.Context, ref string) error {
	return queryCreateWorkspace(ctx, s.db, ref)
}

func (s *PostgresStore) EnsureTable(ctx context.Context, workspace, name string) (*store.Table, error) {
	ok, err := queryWorkspaceExists(ctx, s.db, workspace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, workspace)
	}

	header, _ := model.HeaderFor(name)
	t, err := queryEnsureTable(ctx, s.db, workspace, name, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", store.ErrTableCreationFailed, workspace, name, err)
	}
	return t, nil
}

func (s *PostgresStore) Scan(ctx context.Context, t *store.Table) ([][]string, error) {
	return queryScanRows(ctx, s.db, t)
}

func (s *PostgresStore) Append(ctx context.Context, t *store.Table, row []string) error {
	return queryAppendRow(ctx, s.db, t, row)
}

func (s *PostgresStore) UpdateRow(ctx context.Context, t *store.Table, position int, row []string) error {
	if err := store.CheckPosition(t, position, -1); err != nil {
		return err
	}
	return queryUpdateRow(ctx, s.db, t, position, store.Pad(row, len(t.Header)))
}

// Rewrite replaces all rows of t in a single transaction.
func (s *PostgresStore) Rewrite(ctx context.Context, t *store.Table, rows [][]string) error {
	return s.runInTransaction(ctx, func(tx executor) error {
		if err := queryDeleteRows(ctx, tx, t); err != nil {
			return err
		}
		for i, row := range rows {
			if err := queryInsertRow(ctx, tx, t, i+1, store.Pad(row, len(t.Header))); err != nil {
				return err
			}
		}
		return nil
	})
}

// runInTransaction begins a database transaction, calls fn with it, and
// commits on success or rolls back on error.
func (s *PostgresStore) runInTransaction(ctx context.Context, fn func(tx executor) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
