package events

import (
	"context"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
)

// Event topic constants
const (
	TopicTutorRegistered = "tutors.tutor.registered"
	TopicTutorUpdated    = "tutors.tutor.updated"
	TopicTutorDeleted    = "tutors.tutor.deleted"

	TopicStudentAdded   = "tutors.student.added"
	TopicStudentUpdated = "tutors.student.updated"
	TopicStudentDeleted = "tutors.student.deleted"
	TopicLessonAdded    = "tutors.lesson.added"
	TopicLessonUpdated  = "tutors.lesson.updated"
	TopicPaymentAdded   = "tutors.payment.added"
	TopicPaymentUpdated = "tutors.payment.updated"

	TopicAssignmentAdded   = "tutors.assignment.added"
	TopicAssignmentDeleted = "tutors.assignment.deleted"

	TopicSettingChanged = "tutors.setting.changed"

	// Conversation lifecycle, emitted when a flow reaches a terminal state.
	TopicFlowFinished = "tutors.flow.finished"
)

// TopicAll matches every tutorsheets topic.
const TopicAll = "tutors.>"

// Event types

type TutorRegistered struct {
	Tutor *model.TutorConfig `json:"tutor"`
}

type TutorUpdated struct {
	Tutor   *model.TutorConfig `json:"tutor"`
	Changes map[string]any     `json:"changes"` // field name -> new value
}

type TutorDeleted struct {
	ExternalID string `json:"external_id"`
}

type StudentAdded struct {
	Workspace string         `json:"workspace"`
	Student   *model.Student `json:"student"`
}

type StudentUpdated struct {
	Workspace string         `json:"workspace"`
	Student   *model.Student `json:"student"`
}

type StudentDeleted struct {
	Workspace string `json:"workspace"`
	Name      string `json:"name"`
}

type LessonAdded struct {
	Workspace string        `json:"workspace"`
	Lesson    *model.Lesson `json:"lesson"`
}

type LessonUpdated struct {
	Workspace string        `json:"workspace"`
	Lesson    *model.Lesson `json:"lesson"`
}

type PaymentAdded struct {
	Workspace string         `json:"workspace"`
	Payment   *model.Payment `json:"payment"`
}

type PaymentUpdated struct {
	Workspace string         `json:"workspace"`
	Payment   *model.Payment `json:"payment"`
}

type AssignmentAdded struct {
	Workspace  string                   `json:"workspace"`
	Assignment *model.StudentAssignment `json:"assignment"`
}

type AssignmentDeleted struct {
	Workspace   string `json:"workspace"`
	ParentName  string `json:"parent_name"`
	StudentName string `json:"student_name"`
}

type SettingChanged struct {
	Workspace string `json:"workspace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type FlowFinished struct {
	Identity string `json:"identity"`
	Flow     string `json:"flow"`
	Outcome  string `json:"outcome"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
