// Package sheets implements store.Store on top of Google Sheets.
//
// A workspace is a spreadsheet id and a table is a worksheet. Row 1 of every
// worksheet is reserved for the header; data rows start at row 2, so data
// position p lives on sheet row p+1.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

// New worksheets are created with this grid size.
const (
	defaultRowCount    = 1000
	defaultColumnCount = 26
)

// valueInput is the input option for all writes; cells are stored verbatim.
const valueInput = "RAW"

// Store is a Google Sheets backed store.Store.
type Store struct {
	svc *sheetsapi.Service

	mu    sync.Mutex
	known map[string]*store.Table // workspace + "\x00" + table name
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New authenticates with the service account key at credentialsPath.
// Extra client options are appended after the credentials.
func New(ctx context.Context, credentialsPath string, opts ...option.ClientOption) (*Store, error) {
	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, fmt.Errorf("%w: credentials file %s: %v", store.ErrAuthenticationFailed, credentialsPath, err)
	}
	all := append([]option.ClientOption{
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	}, opts...)

	svc, err := sheetsapi.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrAuthenticationFailed, err)
	}
	return NewWithService(svc), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *sheetsapi.Service) *Store {
	return &Store{svc: svc, known: make(map[string]*store.Table)}
}

func cacheKey(workspace, name string) string {
	return workspace + "\x00" + name
}

func cloneTable(t *store.Table) *store.Table {
	c := *t
	c.Header = append([]string(nil), t.Header...)
	return &c
}

func (s *Store) EnsureTable(ctx context.Context, workspace, name string) (*store.Table, error) {
	key := cacheKey(workspace, name)
	s.mu.Lock()
	if t, ok := s.known[key]; ok {
		s.mu.Unlock()
		return cloneTable(t), nil
	}
	s.mu.Unlock()

	id, found, err := s.findSheet(ctx, workspace, name)
	if err != nil {
		return nil, err
	}
	header, _ := model.HeaderFor(name)
	if !found {
		id, err = s.createSheet(ctx, workspace, name, header)
		if err != nil {
			return nil, err
		}
	}
	t := &store.Table{Workspace: workspace, ID: id, Name: name, Header: header}

	s.mu.Lock()
	s.known[key] = t
	s.mu.Unlock()
	return cloneTable(t), nil
}

// findSheet looks up the id of the worksheet titled name.
func (s *Store) findSheet(ctx context.Context, workspace, name string) (int64, bool, error) {
	ss, err := s.svc.Spreadsheets.Get(workspace).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, classify(err, workspace)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == name {
			return sh.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

// createSheet adds the worksheet and writes its header. When another caller
// added the same worksheet first, its id is returned instead.
func (s *Store) createSheet(ctx context.Context, workspace, name string, header []string) (int64, error) {
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{
					Title: name,
					GridProperties: &sheetsapi.GridProperties{
						RowCount:    defaultRowCount,
						ColumnCount: defaultColumnCount,
					},
				},
			},
		}},
	}
	resp, err := s.svc.Spreadsheets.BatchUpdate(workspace, req).Context(ctx).Do()
	if alreadyExists(err) {
		id, found, ferr := s.findSheet(ctx, workspace, name)
		if ferr == nil && found {
			return id, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", store.ErrTableCreationFailed, workspace, name, err)
	}

	var id int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = resp.Replies[0].AddSheet.Properties.SheetId
	}

	if len(header) > 0 {
		vr := &sheetsapi.ValueRange{Values: [][]interface{}{cells(header)}}
		_, err := s.svc.Spreadsheets.Values.Update(workspace, a1(name, "A1"), vr).
			ValueInputOption(valueInput).Context(ctx).Do()
		if err != nil {
			return 0, fmt.Errorf("%w: write header %s/%s: %v", store.ErrTableCreationFailed, workspace, name, err)
		}
	}
	return id, nil
}

func (s *Store) Scan(ctx context.Context, t *store.Table) ([][]string, error) {
	vr, err := s.svc.Spreadsheets.Values.Get(t.Workspace, a1(t.Name, "")).Context(ctx).Do()
	if err != nil {
		return nil, s.tableError(t, err)
	}
	if len(vr.Values) <= 1 {
		return [][]string{}, nil
	}
	rows := make([][]string, 0, len(vr.Values)-1)
	for _, raw := range vr.Values[1:] {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) Append(ctx context.Context, t *store.Table, row []string) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{cells(row)}}
	_, err := s.svc.Spreadsheets.Values.Append(t.Workspace, a1(t.Name, "A1"), vr).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return s.tableError(t, err)
	}
	return nil
}

// UpdateRow writes the whole row in one request after checking position
// against the current data rows. Rows shorter than the header are padded so
// stale cells are cleared.
func (s *Store) UpdateRow(ctx context.Context, t *store.Table, position int, row []string) error {
	rows, err := s.Scan(ctx, t)
	if err != nil {
		return err
	}
	if err := store.CheckPosition(t, position, len(rows)); err != nil {
		return err
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{cells(store.Pad(row, len(t.Header)))}}
	_, err = s.svc.Spreadsheets.Values.Update(t.Workspace, a1(t.Name, fmt.Sprintf("A%d", position+1)), vr).
		ValueInputOption(valueInput).Context(ctx).Do()
	if err != nil {
		return s.tableError(t, err)
	}
	return nil
}

// Rewrite clears every data row and writes rows back starting at row 2.
func (s *Store) Rewrite(ctx context.Context, t *store.Table, rows [][]string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(t.Workspace, a1(t.Name, "A2:Z"), &sheetsapi.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return s.tableError(t, err)
	}
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = cells(store.Pad(r, len(t.Header)))
	}
	_, err = s.svc.Spreadsheets.Values.Update(t.Workspace, a1(t.Name, "A2"), &sheetsapi.ValueRange{Values: values}).
		ValueInputOption(valueInput).Context(ctx).Do()
	if err != nil {
		return s.tableError(t, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// tableError classifies err and forgets the cached handle when the
// worksheet no longer resolves.
func (s *Store) tableError(t *store.Table, err error) error {
	err = classify(err, t.Workspace)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest {
		s.mu.Lock()
		delete(s.known, cacheKey(t.Workspace, t.Name))
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", store.ErrTableNotFound, t, gerr.Message)
	}
	return err
}

// alreadyExists reports whether err is the 400 AddSheet returns for a
// duplicate worksheet title.
func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "already exists")
}

// classify maps Sheets API status codes onto store errors. Codes without a
// mapping are returned unchanged.
func classify(err error, workspace string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", store.ErrAuthenticationFailed, gerr.Message)
	case http.StatusNotFound, http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", store.ErrWorkspaceNotFound, workspace, gerr.Message)
	}
	return err
}

// a1 builds a range in A1 notation for the worksheet title. An empty cells
// part selects the whole worksheet.
func a1(title, cellRange string) string {
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if cellRange == "" {
		return quoted
	}
	return quoted + "!" + cellRange
}

func cells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
