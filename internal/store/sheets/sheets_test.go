package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

// fakeSheets is a minimal in-memory Sheets API v4 server.
type fakeSheets struct {
	mu          sync.Mutex
	spreadsheet map[string]map[string][][]string // id -> title -> rows (row 0 is the header)
	sheetIDs    map[string]int64
	nextSheetID int64
	addSheets   int

	// racedAddSheet makes the next AddSheet lose to a concurrent caller: the
	// worksheet is created with its header and the request fails with 400.
	racedAddSheet bool
}

func newFakeSheets(ids ...string) *fakeSheets {
	f := &fakeSheets{
		spreadsheet: make(map[string]map[string][][]string),
		sheetIDs:    make(map[string]int64),
	}
	for _, id := range ids {
		f.spreadsheet[id] = make(map[string][][]string)
	}
	return f
}

// sheet returns a copy of the stored rows, header included.
func (f *fakeSheets) sheet(id, title string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.spreadsheet[id][title]...)
}

func (f *fakeSheets) dropSheet(id, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.spreadsheet[id], title)
}

func (f *fakeSheets) addSheetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addSheets
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// parseRange splits "'Title'!A2:Z" into the title and the start row.
// The start row is 0 when the range names the whole worksheet.
func parseRange(rng string) (string, int) {
	title, cells := rng, ""
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		title, cells = rng[:i], rng[i+1:]
	}
	title = strings.ReplaceAll(strings.Trim(title, "'"), "''", "'")
	if cells == "" {
		return title, 0
	}
	start := strings.SplitN(cells, ":", 2)[0]
	n, _ := strconv.Atoi(strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return title, n
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	id, rest, hasValues := strings.Cut(path, "/values/")

	if !hasValues {
		id, op, _ := strings.Cut(id, ":")
		book, ok := f.spreadsheet[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Requested entity was not found.")
			return
		}
		if op == "batchUpdate" {
			var req sheetsapi.BatchUpdateSpreadsheetRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			title := req.Requests[0].AddSheet.Properties.Title
			if f.racedAddSheet {
				f.racedAddSheet = false
				f.nextSheetID++
				f.sheetIDs[cacheKey(id, title)] = f.nextSheetID
				header, _ := model.HeaderFor(title)
				book[title] = [][]string{header}
			}
			if _, exists := book[title]; exists {
				writeError(w, http.StatusBadRequest,
					"Invalid requests[0].addSheet: A sheet with the name \""+title+"\" already exists. Please enter another name.")
				return
			}
			f.nextSheetID++
			f.addSheets++
			f.sheetIDs[cacheKey(id, title)] = f.nextSheetID
			book[title] = [][]string{}
			writeJSON(w, map[string]any{"replies": []any{map[string]any{
				"addSheet": map[string]any{"properties": map[string]any{"sheetId": f.nextSheetID, "title": title}},
			}}})
			return
		}
		var sheets []any
		for title := range book {
			sheets = append(sheets, map[string]any{"properties": map[string]any{
				"title": title, "sheetId": f.sheetIDs[cacheKey(id, title)],
			}})
		}
		writeJSON(w, map[string]any{"spreadsheetId": id, "sheets": sheets})
		return
	}

	book, ok := f.spreadsheet[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	rng, op := rest, ""
	for _, suffix := range []string{"append", "clear"} {
		if strings.HasSuffix(rest, ":"+suffix) {
			rng, op = strings.TrimSuffix(rest, ":"+suffix), suffix
		}
	}
	title, start := parseRange(rng)
	rows, ok := book[title]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}

	var body struct {
		Values [][]string `json:"values"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"range": rng, "values": rows})
	case op == "append":
		book[title] = append(rows, body.Values...)
		writeJSON(w, map[string]any{})
	case op == "clear":
		if len(rows) >= start-1 {
			book[title] = rows[:start-1]
		}
		writeJSON(w, map[string]any{})
	case r.Method == http.MethodPut:
		for i, v := range body.Values {
			idx := start - 1 + i
			for len(rows) <= idx {
				rows = append(rows, []string{})
			}
			rows[idx] = v
		}
		book[title] = rows
		writeJSON(w, map[string]any{})
	default:
		writeError(w, http.StatusBadRequest, "unsupported")
	}
}

func newTestStore(t *testing.T, f *fakeSheets) *Store {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := sheetsapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc)
}

func TestEnsureTable_CreatesWithHeader(t *testing.T) {
	f := newFakeSheets("ws-1")
	s := newTestStore(t, f)
	ctx := context.Background()

	tbl, err := s.EnsureTable(ctx, "ws-1", model.TableStudents)
	if err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	want, _ := model.HeaderFor(model.TableStudents)
	if !reflect.DeepEqual(tbl.Header, want) {
		t.Errorf("header = %v, want %v", tbl.Header, want)
	}
	if got := f.sheet("ws-1", model.TableStudents)[0]; !reflect.DeepEqual(got, want) {
		t.Errorf("sheet row 1 = %v, want header", got)
	}

	// Second call is served from the cache.
	if _, err := s.EnsureTable(ctx, "ws-1", model.TableStudents); err != nil {
		t.Fatal(err)
	}
	if n := f.addSheetCount(); n != 1 {
		t.Errorf("addSheet requests = %d, want 1", n)
	}
}

func TestEnsureTable_LosesCreateRace(t *testing.T) {
	f := newFakeSheets("ws-1")
	f.racedAddSheet = true
	s := newTestStore(t, f)

	tbl, err := s.EnsureTable(context.Background(), "ws-1", model.TableLessons)
	if err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if tbl.ID != 1 {
		t.Errorf("table id = %d, want the existing sheet's id 1", tbl.ID)
	}
	want, _ := model.HeaderFor(model.TableLessons)
	if rows := f.sheet("ws-1", model.TableLessons); len(rows) != 1 || !reflect.DeepEqual(rows[0], want) {
		t.Errorf("sheet rows = %v, want only the header", rows)
	}
}

func TestEnsureTable_WorkspaceNotFound(t *testing.T) {
	s := newTestStore(t, newFakeSheets())
	_, err := s.EnsureTable(context.Background(), "missing", model.TableStudents)
	if !errors.Is(err, store.ErrWorkspaceNotFound) {
		t.Fatalf("error = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestRowOperations(t *testing.T) {
	f := newFakeSheets("ws-1")
	s := newTestStore(t, f)
	ctx := context.Background()

	tbl, err := s.EnsureTable(ctx, "ws-1", model.TableSettings)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range [][]string{{"currency", "EUR"}, {"lang", "en"}, {"tz", "UTC"}} {
		if err := s.Append(ctx, tbl, row); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rows, err := s.Scan(ctx, tbl)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "currency" {
		t.Fatalf("Scan = %v", rows)
	}

	if err := s.UpdateRow(ctx, tbl, 2, []string{"lang", "ru"}); err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}
	if got := f.sheet("ws-1", model.TableSettings)[2]; !reflect.DeepEqual(got, []string{"lang", "ru"}) {
		t.Errorf("sheet row 3 = %v", got)
	}
	for _, pos := range []int{0, 4, 5} {
		if err := s.UpdateRow(ctx, tbl, pos, []string{"ghost", "x"}); !errors.Is(err, store.ErrInvalidPosition) {
			t.Errorf("UpdateRow(%d) error = %v, want ErrInvalidPosition", pos, err)
		}
	}
	if n := len(f.sheet("ws-1", model.TableSettings)); n != 4 {
		t.Errorf("sheet has %d rows after rejected updates, want 4", n)
	}

	if err := s.Rewrite(ctx, tbl, [][]string{{"tz", "UTC"}}); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	rows, _ = s.Scan(ctx, tbl)
	if want := [][]string{{"tz", "UTC"}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("rows after rewrite = %v, want %v", rows, want)
	}
	if err := s.Rewrite(ctx, tbl, nil); err != nil {
		t.Fatal(err)
	}
	if rows, _ := s.Scan(ctx, tbl); len(rows) != 0 {
		t.Errorf("rows after empty rewrite = %v", rows)
	}
}

func TestTableRemovedRemotely(t *testing.T) {
	f := newFakeSheets("ws-1")
	s := newTestStore(t, f)
	ctx := context.Background()

	tbl, err := s.EnsureTable(ctx, "ws-1", model.TableLessons)
	if err != nil {
		t.Fatal(err)
	}
	f.dropSheet("ws-1", model.TableLessons)

	if _, err := s.Scan(ctx, tbl); !errors.Is(err, store.ErrTableNotFound) {
		t.Fatalf("Scan error = %v, want ErrTableNotFound", err)
	}
	// The cache entry is dropped, so the table is created again.
	if _, err := s.EnsureTable(ctx, "ws-1", model.TableLessons); err != nil {
		t.Fatal(err)
	}
	if n := f.addSheetCount(); n != 2 {
		t.Errorf("addSheet requests = %d, want 2", n)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "credentials.json"))
	if !errors.Is(err, store.ErrAuthenticationFailed) {
		t.Fatalf("error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestA1(t *testing.T) {
	for _, tc := range []struct {
		title, cells, want string
	}{
		{"Students", "", "'Students'"},
		{"Students", "A2", "'Students'!A2"},
		{"Bob's", "A1", "'Bob''s'!A1"},
	} {
		if got := a1(tc.title, tc.cells); got != tc.want {
			t.Errorf("a1(%q, %q) = %q, want %q", tc.title, tc.cells, got, tc.want)
		}
	}
}
