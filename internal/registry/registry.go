// Package registry maps external identities to tutor workspaces.
//
// The registry is a single JSON document of the form {"tutors": [...]}. It is
// re-read on every call and rewritten through a temp file and rename. A
// single mutex is held across each read-modify-write cycle, which serializes
// writers inside this process only; other processes writing the same file
// are not coordinated.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
)

var (
	// ErrNotFound is returned when no entry exists for an identity.
	ErrNotFound = errors.New("tutor not found")
	// ErrAlreadyExists is returned when registering an identity twice.
	ErrAlreadyExists = errors.New("tutor already registered")
	// ErrConfiguration is returned when the registry file cannot be read,
	// parsed or written.
	ErrConfiguration = errors.New("registry configuration error")
)

// document is the on-disk layout.
type document struct {
	Tutors []model.TutorConfig `json:"tutors"`
}

// UpdateFields lists the mutable fields of a TutorConfig. Nil fields are left
// unchanged.
type UpdateFields struct {
	DisplayName  *string
	WorkspaceRef *string
}

// Observer is notified after every registry operation. It is used for metrics.
type Observer func(op string, err error)

// Registry is a file-backed table of TutorConfig entries keyed by external id.
type Registry struct {
	path     string
	mu       sync.Mutex
	now      func() time.Time
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithObserver installs a callback invoked after each operation.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// Open returns a registry backed by path, creating the file with an empty
// table if it is missing or empty. Malformed content is reported as
// ErrConfiguration.
func Open(path string, opts ...Option) (*Registry, error) {
	r := &Registry{path: path, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// Register adds a new entry with created_at and updated_at set to now.
func (r *Registry) Register(id, name, workspaceRef string) (cfg *model.TutorConfig, err error) {
	defer func() { r.observe("register", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	if indexOf(doc, id) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	ts := model.Timestamp(r.now())
	entry := model.TutorConfig{
		ExternalID:   id,
		DisplayName:  name,
		WorkspaceRef: workspaceRef,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	doc.Tutors = append(doc.Tutors, entry)
	if err := r.save(doc); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (cfg *model.TutorConfig, err error) {
	defer func() { r.observe("get", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(doc, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry := doc.Tutors[i]
	return &entry, nil
}

// Update merges the non-nil fields into the entry for id, bumps updated_at
// and returns the merged entry.
func (r *Registry) Update(id string, fields UpdateFields) (cfg *model.TutorConfig, err error) {
	defer func() { r.observe("update", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(doc, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	entry := &doc.Tutors[i]
	if fields.DisplayName != nil {
		entry.DisplayName = *fields.DisplayName
	}
	if fields.WorkspaceRef != nil {
		entry.WorkspaceRef = *fields.WorkspaceRef
	}
	entry.UpdatedAt = model.Timestamp(r.now())

	if err := r.save(doc); err != nil {
		return nil, err
	}
	merged := *entry
	return &merged, nil
}

// Delete removes the entry for id.
func (r *Registry) Delete(id string) (err error) {
	defer func() { r.observe("delete", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	i := indexOf(doc, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.Tutors = append(doc.Tutors[:i], doc.Tutors[i+1:]...)
	return r.save(doc)
}

// List returns all entries in registration order.
func (r *Registry) List() (tutors []model.TutorConfig, err error) {
	defer func() { r.observe("list", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	return doc.Tutors, nil
}

// Exists reports whether id is registered. Read failures count as absent.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return false
	}
	return indexOf(doc, id) >= 0
}

func (r *Registry) observe(op string, err error) {
	if r.observer != nil {
		r.observer(op, err)
	}
}

func indexOf(doc *document, id string) int {
	for i := range doc.Tutors {
		if doc.Tutors[i].ExternalID == id {
			return i
		}
	}
	return -1
}

// load reads the document, initializing the file when it is missing or
// empty. Callers must hold r.mu.
func (r *Registry) load() (*document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, r.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		doc := &document{Tutors: []model.TutorConfig{}}
		if err := r.save(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, r.path, err)
	}
	if doc.Tutors == nil {
		doc.Tutors = []model.TutorConfig{}
	}
	return &doc, nil
}

// save writes doc to a temp file in the target directory and renames it over
// the target. Callers must hold r.mu.
func (r *Registry) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrConfiguration, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrConfiguration, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrConfiguration, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp: %v", ErrConfiguration, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp: %v", ErrConfiguration, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp: %v", ErrConfiguration, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod temp: %v", ErrConfiguration, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %v", ErrConfiguration, err)
	}
	return nil
}
