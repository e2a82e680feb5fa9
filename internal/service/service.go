// Package service composes the tutor registry, the record repository and the
// event publisher into the operations exposed to callers (CLI, flows).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/tutorsheets/internal/events"
	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/registry"
	"github.com/alfredjeanlab/tutorsheets/internal/repository"
)

// ErrNotRegistered is returned when an identity has no registry entry.
var ErrNotRegistered = errors.New("not registered")

// Names written to the Events table.
const (
	eventTutorRegistered  = "Tutor registered"
	eventTutorUpdated     = "Tutor updated"
	eventStudentAdded     = "Student added"
	eventStudentUpdated   = "Student updated"
	eventStudentDeleted   = "Student deleted"
	eventLessonAdded      = "Lesson added"
	eventLessonUpdated    = "Lesson updated"
	eventPaymentAdded     = "Payment added"
	eventPaymentUpdated   = "Payment updated"
	eventAssignmentAdded  = "Assignment added"
	eventAssignmentDelete = "Assignment deleted"
	eventSettingChanged   = "Setting changed"
)

// Service is the application facade.
type Service struct {
	registry  *registry.Registry
	repo      *repository.Repository
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where domain events are published.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records publish failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New returns a Service. Without WithPublisher events are dropped.
func New(reg *registry.Registry, repo *repository.Repository, opts ...Option) *Service {
	s := &Service{
		registry:  reg,
		repo:      repo,
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Repository exposes the underlying record repository.
func (s *Service) Repository() *repository.Repository {
	return s.repo
}

// publish emits event on topic. It is best-effort; failures are logged.
func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "err", err)
		if s.metrics != nil {
			s.metrics.PublishFailures.Inc()
		}
	}
}

// recordAndPublish appends an Events row to workspace and publishes event.
// Both operations are best-effort.
func (s *Service) recordAndPublish(ctx context.Context, workspace, name, detail, topic string, event any) {
	s.repo.LogEvent(ctx, workspace, name, detail)
	s.publish(ctx, topic, event)
}

// Publish emits an event that has no Events row, such as a finished flow.
func (s *Service) Publish(ctx context.Context, topic string, event any) {
	s.publish(ctx, topic, event)
}

// Tutors

// Register validates the inputs, provisions the workspace and then adds the
// registry entry. A workspace that cannot be opened leaves the registry
// untouched.
func (s *Service) Register(ctx context.Context, id, name, workspaceInput string) (*model.TutorConfig, error) {
	name, err := model.ValidateName(name)
	if err != nil {
		return nil, err
	}
	ref, ok := model.NormalizeWorkspaceRef(workspaceInput)
	if !ok {
		return nil, &model.FieldError{Field: "workspace", Message: "must be a spreadsheet link or workspace ref"}
	}
	if s.registry.Exists(id) {
		return nil, fmt.Errorf("%w: %s", registry.ErrAlreadyExists, id)
	}
	if err := s.repo.EnsureWorkspace(ctx, ref); err != nil {
		return nil, fmt.Errorf("provision workspace: %w", err)
	}

	cfg, err := s.registry.Register(id, name, ref)
	if err != nil {
		return nil, err
	}
	s.recordAndPublish(ctx, ref, eventTutorRegistered, name,
		events.TopicTutorRegistered, events.TutorRegistered{Tutor: cfg})
	return cfg, nil
}

// GetTutor returns the registry entry for id.
func (s *Service) GetTutor(id string) (*model.TutorConfig, error) {
	return s.registry.Get(id)
}

// ListTutors returns every registry entry.
func (s *Service) ListTutors() ([]model.TutorConfig, error) {
	return s.registry.List()
}

// UpdateTutor applies the non-nil fields. A new workspace is validated and
// provisioned before the entry changes.
func (s *Service) UpdateTutor(ctx context.Context, id string, fields registry.UpdateFields) (*model.TutorConfig, error) {
	changes := map[string]any{}
	if fields.DisplayName != nil {
		name, err := model.ValidateName(*fields.DisplayName)
		if err != nil {
			return nil, err
		}
		fields.DisplayName = &name
		changes["display_name"] = name
	}
	if fields.WorkspaceRef != nil {
		ref, ok := model.NormalizeWorkspaceRef(*fields.WorkspaceRef)
		if !ok {
			return nil, &model.FieldError{Field: "workspace", Message: "must be a spreadsheet link or workspace ref"}
		}
		if err := s.repo.EnsureWorkspace(ctx, ref); err != nil {
			return nil, fmt.Errorf("provision workspace: %w", err)
		}
		fields.WorkspaceRef = &ref
		changes["workspace_ref"] = ref
	}

	cfg, err := s.registry.Update(id, fields)
	if err != nil {
		return nil, err
	}
	s.recordAndPublish(ctx, cfg.WorkspaceRef, eventTutorUpdated, cfg.DisplayName,
		events.TopicTutorUpdated, events.TutorUpdated{Tutor: cfg, Changes: changes})
	return cfg, nil
}

// DeleteTutor removes the registry entry. The workspace is left as is.
func (s *Service) DeleteTutor(ctx context.Context, id string) error {
	if err := s.registry.Delete(id); err != nil {
		return err
	}
	s.publish(ctx, events.TopicTutorDeleted, events.TutorDeleted{ExternalID: id})
	return nil
}

// IsRegistered reports whether id has a registry entry.
func (s *Service) IsRegistered(id string) bool {
	return s.registry.Exists(id)
}

// WorkspaceFor returns the workspace ref registered for id, or
// ErrNotRegistered.
func (s *Service) WorkspaceFor(id string) (string, error) {
	cfg, err := s.registry.Get(id)
	if errors.Is(err, registry.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	if err != nil {
		return "", err
	}
	return cfg.WorkspaceRef, nil
}

// EnsureWorkspace provisions every table of workspace.
func (s *Service) EnsureWorkspace(ctx context.Context, workspace string) error {
	return s.repo.EnsureWorkspace(ctx, workspace)
}

// Students

func requireName(field, v string) (string, error) {
	v = model.SanitizeName(v)
	if v == "" {
		return "", &model.FieldError{Field: field, Message: "is required"}
	}
	return v, nil
}

// ListStudents returns the Students rows of workspace.
func (s *Service) ListStudents(ctx context.Context, workspace string) ([]model.Student, error) {
	return s.repo.ListStudents(ctx, workspace)
}

// AddStudent requires a name and appends st.
func (s *Service) AddStudent(ctx context.Context, workspace string, st model.Student) error {
	name, err := requireName("name", st.Name)
	if err != nil {
		return err
	}
	st.Name = name
	if err := s.repo.AddStudent(ctx, workspace, st); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventStudentAdded, st.Name,
		events.TopicStudentAdded, events.StudentAdded{Workspace: workspace, Student: &st})
	return nil
}

// UpdateStudent rewrites the row st was read from.
func (s *Service) UpdateStudent(ctx context.Context, workspace string, st model.Student) error {
	if err := s.repo.UpdateStudent(ctx, workspace, st); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventStudentUpdated, st.Name,
		events.TopicStudentUpdated, events.StudentUpdated{Workspace: workspace, Student: &st})
	return nil
}

// DeleteStudent removes the first student whose name matches, ignoring case.
func (s *Service) DeleteStudent(ctx context.Context, workspace, name string) (bool, error) {
	name = model.SanitizeName(name)
	deleted, err := s.repo.DeleteStudent(ctx, workspace, func(st model.Student) bool {
		return strings.EqualFold(model.SanitizeName(st.Name), name)
	})
	if err != nil || !deleted {
		return deleted, err
	}
	s.recordAndPublish(ctx, workspace, eventStudentDeleted, name,
		events.TopicStudentDeleted, events.StudentDeleted{Workspace: workspace, Name: name})
	return true, nil
}

// Lessons and payments

// ListLessons returns the Lessons rows of workspace.
func (s *Service) ListLessons(ctx context.Context, workspace string) ([]model.Lesson, error) {
	return s.repo.ListLessons(ctx, workspace)
}

func normalizeLesson(l *model.Lesson) error {
	student, err := requireName("student", l.StudentName)
	if err != nil {
		return err
	}
	date, err := model.ValidateDate("date", l.Date)
	if err != nil {
		return err
	}
	l.StudentName, l.Date = student, date
	return nil
}

// AddLesson normalizes the date and appends l.
func (s *Service) AddLesson(ctx context.Context, workspace string, l model.Lesson) error {
	if err := normalizeLesson(&l); err != nil {
		return err
	}
	if err := s.repo.AddLesson(ctx, workspace, l); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventLessonAdded, l.StudentName+" "+l.Date,
		events.TopicLessonAdded, events.LessonAdded{Workspace: workspace, Lesson: &l})
	return nil
}

// UpdateLesson validates l and rewrites the row it was read from.
func (s *Service) UpdateLesson(ctx context.Context, workspace string, l model.Lesson) error {
	if err := normalizeLesson(&l); err != nil {
		return err
	}
	if err := s.repo.UpdateLesson(ctx, workspace, l); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventLessonUpdated, l.StudentName+" "+l.Date,
		events.TopicLessonUpdated, events.LessonUpdated{Workspace: workspace, Lesson: &l})
	return nil
}

// ListPayments returns the Payments rows of workspace.
func (s *Service) ListPayments(ctx context.Context, workspace string) ([]model.Payment, error) {
	return s.repo.ListPayments(ctx, workspace)
}

func normalizePayment(p *model.Payment) error {
	student, err := requireName("student", p.StudentName)
	if err != nil {
		return err
	}
	amount, err := model.ValidateAmount("amount", p.Amount)
	if err != nil {
		return err
	}
	date, err := model.ValidateDate("date", p.Date)
	if err != nil {
		return err
	}
	p.StudentName, p.Amount, p.Date = student, amount, date
	return nil
}

// AddPayment normalizes the amount and date and appends p.
func (s *Service) AddPayment(ctx context.Context, workspace string, p model.Payment) error {
	if err := normalizePayment(&p); err != nil {
		return err
	}
	if err := s.repo.AddPayment(ctx, workspace, p); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventPaymentAdded, p.StudentName+" "+p.Amount,
		events.TopicPaymentAdded, events.PaymentAdded{Workspace: workspace, Payment: &p})
	return nil
}

// UpdatePayment validates p and rewrites the row it was read from.
func (s *Service) UpdatePayment(ctx context.Context, workspace string, p model.Payment) error {
	if err := normalizePayment(&p); err != nil {
		return err
	}
	if err := s.repo.UpdatePayment(ctx, workspace, p); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventPaymentUpdated, p.StudentName+" "+p.Amount,
		events.TopicPaymentUpdated, events.PaymentUpdated{Workspace: workspace, Payment: &p})
	return nil
}

// Assignments

// ListAssignments returns the StudentAssignments rows of workspace.
func (s *Service) ListAssignments(ctx context.Context, workspace string) ([]model.StudentAssignment, error) {
	return s.repo.ListAssignments(ctx, workspace)
}

// AddAssignment validates and stores a. Names are sanitized and the cost is
// normalized before the duplicate check.
func (s *Service) AddAssignment(ctx context.Context, workspace string, a model.StudentAssignment) error {
	if err := model.ValidateAssignment(&a); err != nil {
		return err
	}
	a.ParentName = model.SanitizeName(a.ParentName)
	a.StudentName = model.SanitizeName(a.StudentName)
	a.LessonCost, _ = model.ValidateAmount("lesson_cost", a.LessonCost)

	if err := s.repo.AddAssignment(ctx, workspace, a); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventAssignmentAdded, a.ParentName+" - "+a.StudentName,
		events.TopicAssignmentAdded, events.AssignmentAdded{Workspace: workspace, Assignment: &a})
	return nil
}

// DeleteAssignment removes the assignment keyed by parent and student.
func (s *Service) DeleteAssignment(ctx context.Context, workspace, parent, student string) (bool, error) {
	parent, student = model.SanitizeName(parent), model.SanitizeName(student)
	deleted, err := s.repo.DeleteAssignment(ctx, workspace, parent, student)
	if err != nil || !deleted {
		return deleted, err
	}
	s.recordAndPublish(ctx, workspace, eventAssignmentDelete, parent+" - "+student,
		events.TopicAssignmentDeleted, events.AssignmentDeleted{Workspace: workspace, ParentName: parent, StudentName: student})
	return true, nil
}

// Settings and events

// GetSetting returns the value stored under key.
func (s *Service) GetSetting(ctx context.Context, workspace, key string) (string, bool, error) {
	return s.repo.GetSetting(ctx, workspace, key)
}

// SetSetting stores value under key.
func (s *Service) SetSetting(ctx context.Context, workspace, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return &model.FieldError{Field: "key", Message: "is required"}
	}
	if err := s.repo.SetSetting(ctx, workspace, key, value); err != nil {
		return err
	}
	s.recordAndPublish(ctx, workspace, eventSettingChanged, key,
		events.TopicSettingChanged, events.SettingChanged{Workspace: workspace, Key: key, Value: value})
	return nil
}

// LogEvent appends a caller-defined Events row.
func (s *Service) LogEvent(ctx context.Context, workspace, event, detail string) {
	s.repo.LogEvent(ctx, workspace, event, detail)
}

// ListEvents returns the Events rows of workspace.
func (s *Service) ListEvents(ctx context.Context, workspace string) ([]model.Event, error) {
	return s.repo.ListEvents(ctx, workspace)
}
