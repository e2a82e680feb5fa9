// Package repository provides typed record access on top of a store.Store.
//
// Every operation takes the workspace ref explicitly; a Repository holds no
// per-tutor state and is safe for concurrent use.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/store"
)

// ErrDuplicateRecord is returned when a keyed record already exists.
var ErrDuplicateRecord = errors.New("duplicate record")

// MalformedDataError reports a data row that could not be decoded.
type MalformedDataError struct {
	Table    string
	Position int
	Err      error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed row %d in %s: %v", e.Position, e.Table, e.Err)
}

func (e *MalformedDataError) Unwrap() error {
	return e.Err
}

// Repository maps records onto workspace tables.
type Repository struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for best-effort writes.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithMetrics records event log failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a Repository over s.
func New(s store.Store, opts ...Option) *Repository {
	r := &Repository{store: s, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EnsureWorkspace provisions every declared table in workspace.
func (r *Repository) EnsureWorkspace(ctx context.Context, workspace string) error {
	_, err := store.EnsureAllTables(ctx, r.store, workspace)
	return err
}

func blank(row []string) bool {
	return len(row) == 0 || strings.TrimSpace(row[0]) == ""
}

func (r *Repository) add(ctx context.Context, workspace, table string, row []string) error {
	t, err := r.store.EnsureTable(ctx, workspace, table)
	if err != nil {
		return err
	}
	if err := r.store.Append(ctx, t, row); err != nil {
		return fmt.Errorf("append to %s: %w", table, err)
	}
	return nil
}

func list[T any](ctx context.Context, r *Repository, workspace, table string, decode func([]string, model.Position) (T, error)) ([]T, error) {
	t, err := r.store.EnsureTable(ctx, workspace, table)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.Scan(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		if blank(row) {
			continue
		}
		rec, err := decode(row, model.Position{Table: table, Row: i + 1})
		if err != nil {
			return nil, &MalformedDataError{Table: table, Position: i + 1, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) update(ctx context.Context, workspace, table string, pos model.Position, row []string) error {
	if !pos.IsSet() || (pos.Table != "" && pos.Table != table) {
		return fmt.Errorf("%w: %s row %d", store.ErrInvalidPosition, table, pos.Row)
	}
	t, err := r.store.EnsureTable(ctx, workspace, table)
	if err != nil {
		return err
	}
	return r.store.UpdateRow(ctx, t, pos.Row, row)
}

func deleteMatching[T any](ctx context.Context, r *Repository, workspace, table string, decode func([]string, model.Position) (T, error), pred func(T) bool) (bool, error) {
	t, err := r.store.EnsureTable(ctx, workspace, table)
	if err != nil {
		return false, err
	}
	return store.DeleteMatching(ctx, r.store, t, func(position int, row []string) (bool, error) {
		if blank(row) {
			return false, nil
		}
		rec, err := decode(row, model.Position{Table: table, Row: position})
		if err != nil {
			return false, &MalformedDataError{Table: table, Position: position, Err: err}
		}
		return pred(rec), nil
	})
}

// Students

// AddStudent appends s to the Students table.
func (r *Repository) AddStudent(ctx context.Context, workspace string, s model.Student) error {
	return r.add(ctx, workspace, model.TableStudents, s.Row())
}

// ListStudents returns every non-blank Students row.
func (r *Repository) ListStudents(ctx context.Context, workspace string) ([]model.Student, error) {
	return list(ctx, r, workspace, model.TableStudents, model.DecodeStudent)
}

// UpdateStudent rewrites the row s was read from.
func (r *Repository) UpdateStudent(ctx context.Context, workspace string, s model.Student) error {
	return r.update(ctx, workspace, model.TableStudents, s.Position, s.Row())
}

// DeleteStudent removes the first student matching pred.
func (r *Repository) DeleteStudent(ctx context.Context, workspace string, pred func(model.Student) bool) (bool, error) {
	return deleteMatching(ctx, r, workspace, model.TableStudents, model.DecodeStudent, pred)
}

// Lessons

// AddLesson appends l to the Lessons table.
func (r *Repository) AddLesson(ctx context.Context, workspace string, l model.Lesson) error {
	return r.add(ctx, workspace, model.TableLessons, l.Row())
}

// ListLessons returns every non-blank Lessons row.
func (r *Repository) ListLessons(ctx context.Context, workspace string) ([]model.Lesson, error) {
	return list(ctx, r, workspace, model.TableLessons, model.DecodeLesson)
}

// UpdateLesson rewrites the row l was read from.
func (r *Repository) UpdateLesson(ctx context.Context, workspace string, l model.Lesson) error {
	return r.update(ctx, workspace, model.TableLessons, l.Position, l.Row())
}

// DeleteLesson removes the first lesson matching pred.
func (r *Repository) DeleteLesson(ctx context.Context, workspace string, pred func(model.Lesson) bool) (bool, error) {
	return deleteMatching(ctx, r, workspace, model.TableLessons, model.DecodeLesson, pred)
}

// Payments

// AddPayment appends p to the Payments table.
func (r *Repository) AddPayment(ctx context.Context, workspace string, p model.Payment) error {
	return r.add(ctx, workspace, model.TablePayments, p.Row())
}

// ListPayments returns every non-blank Payments row.
func (r *Repository) ListPayments(ctx context.Context, workspace string) ([]model.Payment, error) {
	return list(ctx, r, workspace, model.TablePayments, model.DecodePayment)
}

// UpdatePayment rewrites the row p was read from.
func (r *Repository) UpdatePayment(ctx context.Context, workspace string, p model.Payment) error {
	return r.update(ctx, workspace, model.TablePayments, p.Position, p.Row())
}

// DeletePayment removes the first payment matching pred.
func (r *Repository) DeletePayment(ctx context.Context, workspace string, pred func(model.Payment) bool) (bool, error) {
	return deleteMatching(ctx, r, workspace, model.TablePayments, model.DecodePayment, pred)
}

// Assignments

// AddAssignment appends a, or returns ErrDuplicateRecord when the
// (parent, student) pair is already assigned.
func (r *Repository) AddAssignment(ctx context.Context, workspace string, a model.StudentAssignment) error {
	existing, err := r.ListAssignments(ctx, workspace)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Matches(a.ParentName, a.StudentName) {
			return fmt.Errorf("%w: %s / %s", ErrDuplicateRecord, a.ParentName, a.StudentName)
		}
	}
	return r.add(ctx, workspace, model.TableAssignments, a.Row())
}

// ListAssignments returns every non-blank StudentAssignments row.
func (r *Repository) ListAssignments(ctx context.Context, workspace string) ([]model.StudentAssignment, error) {
	return list(ctx, r, workspace, model.TableAssignments, model.DecodeAssignment)
}

// UpdateAssignment rewrites the row a was read from.
func (r *Repository) UpdateAssignment(ctx context.Context, workspace string, a model.StudentAssignment) error {
	return r.update(ctx, workspace, model.TableAssignments, a.Position, a.Row())
}

// DeleteAssignment removes the assignment keyed by parent and student.
func (r *Repository) DeleteAssignment(ctx context.Context, workspace, parent, student string) (bool, error) {
	return deleteMatching(ctx, r, workspace, model.TableAssignments, model.DecodeAssignment,
		func(a model.StudentAssignment) bool { return a.Matches(parent, student) })
}

// Settings

// GetSetting returns the value stored under key.
func (r *Repository) GetSetting(ctx context.Context, workspace, key string) (string, bool, error) {
	t, err := r.store.EnsureTable(ctx, workspace, model.TableSettings)
	if err != nil {
		return "", false, err
	}
	rows, err := r.store.Scan(ctx, t)
	if err != nil {
		return "", false, fmt.Errorf("scan %s: %w", model.TableSettings, err)
	}
	for _, row := range rows {
		if blank(row) {
			continue
		}
		s, err := model.DecodeSetting(row)
		if err == nil && s.Key == key {
			return s.Value, true, nil
		}
	}
	return "", false, nil
}

// SetSetting writes value under key, in place when the key exists.
func (r *Repository) SetSetting(ctx context.Context, workspace, key, value string) error {
	t, err := r.store.EnsureTable(ctx, workspace, model.TableSettings)
	if err != nil {
		return err
	}
	row := model.Setting{Key: key, Value: value}.Row()
	pos, err := store.FindByKey(ctx, r.store, t, 0, key)
	switch {
	case errors.Is(err, store.ErrRowNotFound):
		return r.store.Append(ctx, t, row)
	case err != nil:
		return err
	}
	return r.store.UpdateRow(ctx, t, pos, row)
}

// Events

// LogEvent appends an Events row. Failures are logged and never returned.
func (r *Repository) LogEvent(ctx context.Context, workspace, event, detail string) {
	row := model.Event{Timestamp: model.Timestamp(r.now().UTC()), Event: event, Detail: detail}.Row()
	if err := r.add(ctx, workspace, model.TableEvents, row); err != nil {
		r.logger.Error("failed to log event", "workspace", workspace, "event", event, "err", err)
		if r.metrics != nil {
			r.metrics.EventLogFailures.Inc()
		}
	}
}

// ListEvents returns the event history in write order.
func (r *Repository) ListEvents(ctx context.Context, workspace string) ([]model.Event, error) {
	return list(ctx, r, workspace, model.TableEvents, func(row []string, _ model.Position) (model.Event, error) {
		return model.DecodeEvent(row)
	})
}
