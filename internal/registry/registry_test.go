package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock(ts ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func openTemp(t *testing.T, opts ...Option) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tutors_config.json")
	r, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r, path
}

func TestOpen_InitializesMissingFile(t *testing.T) {
	_, path := openTemp(t)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading registry file: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("registry file is not JSON: %v", err)
	}
	tutors, ok := doc["tutors"].([]any)
	if !ok || len(tutors) != 0 {
		t.Errorf("expected empty tutors array, got %s", data)
	}
}

func TestOpen_InitializesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutors.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open on empty file: %v", err)
	}
	list, err := r.List()
	if err != nil || len(list) != 0 {
		t.Errorf("List() = %v, %v; want empty", list, err)
	}
}

func TestOpen_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutors.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Open() error = %v, want ErrConfiguration", err)
	}
}

func TestRegisterThenGet(t *testing.T) {
	now := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	r, _ := openTemp(t, WithClock(fixedClock(now)))

	created, err := r.Register("1001", "Anna Ivanova", "ws-42")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if created.CreatedAt != created.UpdatedAt {
		t.Errorf("created_at %q != updated_at %q", created.CreatedAt, created.UpdatedAt)
	}

	got, err := r.Get("1001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DisplayName != "Anna Ivanova" || got.WorkspaceRef != "ws-42" {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt != "2024-09-01T10:00:00Z" {
		t.Errorf("CreatedAt = %q", got.CreatedAt)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r, path := openTemp(t)
	if _, err := r.Register("1001", "Anna", "ws-1"); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	if _, err := r.Register("1001", "Someone Else", "ws-2"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second Register error = %v, want ErrAlreadyExists", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("failed Register modified the registry file")
	}
}

func TestUpdate_MergesOnlyGivenFields(t *testing.T) {
	t0 := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	r, _ := openTemp(t, WithClock(fixedClock(t0, t1)))

	if _, err := r.Register("1001", "Anna", "ws-1"); err != nil {
		t.Fatal(err)
	}
	ref := "ws-2"
	got, err := r.Update("1001", UpdateFields{WorkspaceRef: &ref})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.DisplayName != "Anna" || got.WorkspaceRef != "ws-2" {
		t.Errorf("Update() = %+v", got)
	}
	if got.UpdatedAt != "2024-09-01T11:00:00Z" || got.CreatedAt != "2024-09-01T10:00:00Z" {
		t.Errorf("timestamps = %q / %q", got.CreatedAt, got.UpdatedAt)
	}

	if _, err := r.Update("nope", UpdateFields{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(nope) error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	r, _ := openTemp(t)
	if _, err := r.Register("1001", "Anna", "ws-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete("1001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get("1001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := r.Delete("1001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if r.Exists("1001") {
		t.Error("Exists() should be false after Delete")
	}
}

func TestExists_NeverFails(t *testing.T) {
	r, path := openTemp(t)
	if _, err := r.Register("1001", "Anna", "ws-1"); err != nil {
		t.Fatal(err)
	}
	if !r.Exists("1001") {
		t.Error("Exists(1001) = false")
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if r.Exists("1001") {
		t.Error("Exists() on a corrupt file should report false")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	a, path := openTemp(t)
	if _, err := a.Register("1001", "Anna Ivanova", "ws-42"); err != nil {
		t.Fatal(err)
	}

	b, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := b.Get("1001")
	if err != nil {
		t.Fatalf("Get from second instance: %v", err)
	}
	want, _ := a.Get("1001")
	if *got != *want {
		t.Errorf("second instance read %+v, want %+v", got, want)
	}
}

func TestConcurrentRegister(t *testing.T) {
	r, path := openTemp(t)
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Register(fmt.Sprintf("id-%d", i), fmt.Sprintf("Tutor %d", i), "ws"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Register: %v", err)
	}

	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != n {
		t.Fatalf("List() has %d entries, want %d", len(list), n)
	}
	seen := map[string]bool{}
	for _, tc := range list {
		if seen[tc.ExternalID] {
			t.Errorf("duplicate entry %s", tc.ExternalID)
		}
		seen[tc.ExternalID] = true
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestObserver(t *testing.T) {
	var ops []string
	r, _ := openTemp(t, WithObserver(func(op string, err error) {
		ops = append(ops, fmt.Sprintf("%s:%v", op, err == nil))
	}))
	_, _ = r.Register("1", "Anna", "ws")
	_, _ = r.Get("2")
	want := []string{"register:true", "get:false"}
	if fmt.Sprint(ops) != fmt.Sprint(want) {
		t.Errorf("observed %v, want %v", ops, want)
	}
}
