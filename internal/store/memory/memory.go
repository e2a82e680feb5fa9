// Package memory is an in-process store.Store used by tests and the
// "memory" backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

// Store keeps workspaces in memory. Workspaces must be added before use
// unless AutoCreate is set.
type Store struct {
	mu         sync.RWMutex
	workspaces map[string]map[string]*table
	nextID     int64

	// AutoCreate opens unknown workspaces instead of failing with
	// store.ErrWorkspaceNotFound.
	AutoCreate bool
}

type table struct {
	id     int64
	header []string
	rows   [][]string
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates an empty store with the given workspaces.
func New(workspaces ...string) *Store {
	s := &Store{workspaces: make(map[string]map[string]*table)}
	for _, ws := range workspaces {
		s.AddWorkspace(ws)
	}
	return s
}

// AddWorkspace makes ref openable. It is a no-op for known workspaces.
func (s *Store) AddWorkspace(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[ref]; !ok {
		s.workspaces[ref] = make(map[string]*table)
	}
}

// Header returns the stored header of a table, or nil when it does not exist.
func (s *Store) Header(workspace, name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tbl, ok := s.workspaces[workspace][name]; ok {
		return append([]string(nil), tbl.header...)
	}
	return nil
}

func (s *Store) EnsureTable(_ context.Context, workspace, name string) (*store.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables, ok := s.workspaces[workspace]
	if !ok {
		if !s.AutoCreate {
			return nil, fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, workspace)
		}
		tables = make(map[string]*table)
		s.workspaces[workspace] = tables
	}

	tbl, ok := tables[name]
	if !ok {
		header, _ := model.HeaderFor(name)
		s.nextID++
		tbl = &table{id: s.nextID, header: header}
		tables[name] = tbl
	}
	return &store.Table{
		Workspace: workspace,
		Name:      name,
		Header:    append([]string(nil), tbl.header...),
		ID:        tbl.id,
	}, nil
}

func (s *Store) lookup(t *store.Table) (*table, error) {
	tbl, ok := s.workspaces[t.Workspace][t.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrTableNotFound, t)
	}
	return tbl, nil
}

func (s *Store) Scan(_ context.Context, t *store.Table) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, err := s.lookup(t)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(tbl.rows))
	for i, r := range tbl.rows {
		rows[i] = append([]string(nil), r...)
	}
	return rows, nil
}

func (s *Store) Append(_ context.Context, t *store.Table, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := s.lookup(t)
	if err != nil {
		return err
	}
	tbl.rows = append(tbl.rows, append([]string(nil), row...))
	return nil
}

func (s *Store) UpdateRow(_ context.Context, t *store.Table, position int, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := s.lookup(t)
	if err != nil {
		return err
	}
	if err := store.CheckPosition(t, position, len(tbl.rows)); err != nil {
		return err
	}
	tbl.rows[position-1] = append([]string(nil), row...)
	return nil
}

func (s *Store) Rewrite(_ context.Context, t *store.Table, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := s.lookup(t)
	if err != nil {
		return err
	}
	tbl.rows = make([][]string, len(rows))
	for i, r := range rows {
		tbl.rows[i] = append([]string(nil), r...)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
