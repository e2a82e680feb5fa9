package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField is returned by the Decode functions when a required cell
// is empty.
var ErrMissingField = errors.New("required field is empty")

// Position is a weak back-reference to the row a record was read from.
// Row is 1-based and counted from the first data row; zero means unset.
// A position is only valid until the next write to the same table.
type Position struct {
	Table string `json:"table,omitempty"`
	Row   int    `json:"row,omitempty"`
}

// IsSet reports whether the position was obtained from a read.
func (p Position) IsSet() bool {
	return p.Row > 0
}

// Student is a row of the Students table.
// Optional fields are nil when absent; an empty cell always decodes to nil.
type Student struct {
	Name       string   `json:"name"`
	ExternalID *string  `json:"external_id,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	Position   Position `json:"position"`
}

// Lesson is a row of the Lessons table.
type Lesson struct {
	StudentName string   `json:"student_name"`
	Date        string   `json:"date"`
	Time        *string  `json:"time,omitempty"`
	Duration    *string  `json:"duration,omitempty"`
	Topic       *string  `json:"topic,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	Position    Position `json:"position"`
}

// Payment is a row of the Payments table.
type Payment struct {
	StudentName string   `json:"student_name"`
	Amount      string   `json:"amount"`
	Date        string   `json:"date"`
	Method      *string  `json:"method,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	Position    Position `json:"position"`
}

// StudentAssignment links a parent to a student together with the agreed
// lesson cost. (ParentName, StudentName) identifies an assignment.
type StudentAssignment struct {
	ParentName  string   `json:"parent_name"`
	StudentName string   `json:"student_name"`
	LessonCost  string   `json:"lesson_cost"`
	Notes       *string  `json:"notes,omitempty"`
	Position    Position `json:"position"`
}

// Matches reports whether the assignment is keyed by parent and student.
// Comparison ignores case and surrounding whitespace.
func (a StudentAssignment) Matches(parent, student string) bool {
	return strings.EqualFold(strings.TrimSpace(a.ParentName), strings.TrimSpace(parent)) &&
		strings.EqualFold(strings.TrimSpace(a.StudentName), strings.TrimSpace(student))
}

// Setting is a row of the key-value Settings table.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a row of the append-only Events table.
type Event struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
}

// Opt returns a pointer to s, or nil when s is empty.
func Opt(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func required(row []string, i int, column string) (string, error) {
	v := cell(row, i)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("column %s: %w", column, ErrMissingField)
	}
	return v, nil
}

// Row encodes the student in Students column order.
func (s Student) Row() []string {
	return []string{s.Name, deref(s.ExternalID), deref(s.Email), deref(s.Phone), deref(s.Notes)}
}

// DecodeStudent decodes a Students row read at pos.
func DecodeStudent(row []string, pos Position) (Student, error) {
	name, err := required(row, 0, "Name")
	if err != nil {
		return Student{}, err
	}
	return Student{
		Name:       name,
		ExternalID: Opt(cell(row, 1)),
		Email:      Opt(cell(row, 2)),
		Phone:      Opt(cell(row, 3)),
		Notes:      Opt(cell(row, 4)),
		Position:   pos,
	}, nil
}

// Row encodes the lesson in Lessons column order.
func (l Lesson) Row() []string {
	return []string{l.StudentName, l.Date, deref(l.Time), deref(l.Duration), deref(l.Topic), deref(l.Notes)}
}

// DecodeLesson decodes a Lessons row read at pos.
func DecodeLesson(row []string, pos Position) (Lesson, error) {
	student, err := required(row, 0, "StudentName")
	if err != nil {
		return Lesson{}, err
	}
	date, err := required(row, 1, "Date")
	if err != nil {
		return Lesson{}, err
	}
	return Lesson{
		StudentName: student,
		Date:        date,
		Time:        Opt(cell(row, 2)),
		Duration:    Opt(cell(row, 3)),
		Topic:       Opt(cell(row, 4)),
		Notes:       Opt(cell(row, 5)),
		Position:    pos,
	}, nil
}

// Row encodes the payment in Payments column order.
func (p Payment) Row() []string {
	return []string{p.StudentName, p.Amount, p.Date, deref(p.Method), deref(p.Notes)}
}

// DecodePayment decodes a Payments row read at pos.
func DecodePayment(row []string, pos Position) (Payment, error) {
	student, err := required(row, 0, "StudentName")
	if err != nil {
		return Payment{}, err
	}
	amount, err := required(row, 1, "Amount")
	if err != nil {
		return Payment{}, err
	}
	date, err := required(row, 2, "Date")
	if err != nil {
		return Payment{}, err
	}
	return Payment{
		StudentName: student,
		Amount:      amount,
		Date:        date,
		Method:      Opt(cell(row, 3)),
		Notes:       Opt(cell(row, 4)),
		Position:    pos,
	}, nil
}

// Row encodes the assignment in StudentAssignments column order.
func (a StudentAssignment) Row() []string {
	return []string{a.ParentName, a.StudentName, a.LessonCost, deref(a.Notes)}
}

// DecodeAssignment decodes a StudentAssignments row read at pos.
func DecodeAssignment(row []string, pos Position) (StudentAssignment, error) {
	parent, err := required(row, 0, "ParentName")
	if err != nil {
		return StudentAssignment{}, err
	}
	student, err := required(row, 1, "StudentName")
	if err != nil {
		return StudentAssignment{}, err
	}
	cost, err := required(row, 2, "LessonCost")
	if err != nil {
		return StudentAssignment{}, err
	}
	return StudentAssignment{
		ParentName:  parent,
		StudentName: student,
		LessonCost:  cost,
		Notes:       Opt(cell(row, 3)),
		Position:    pos,
	}, nil
}

// Row encodes the setting in Settings column order.
func (s Setting) Row() []string {
	return []string{s.Key, s.Value}
}

// DecodeSetting decodes a Settings row.
func DecodeSetting(row []string) (Setting, error) {
	key, err := required(row, 0, "Key")
	if err != nil {
		return Setting{}, err
	}
	return Setting{Key: key, Value: cell(row, 1)}, nil
}

// Row encodes the event in Events column order.
func (e Event) Row() []string {
	return []string{e.Timestamp, e.Event, e.Detail}
}

// DecodeEvent decodes an Events row.
func DecodeEvent(row []string) (Event, error) {
	ts, err := required(row, 0, "Timestamp")
	if err != nil {
		return Event{}, err
	}
	return Event{Timestamp: ts, Event: cell(row, 1), Detail: cell(row, 2)}, nil
}

// RowMap zips a row with the declared header of table. Cells beyond the
// header are dropped and missing cells map to "". Tables without a schema
// yield an empty map.
func RowMap(table string, row []string) map[string]string {
	header, _ := HeaderFor(table)
	m := make(map[string]string, len(header))
	for i, col := range header {
		m[col] = cell(row, i)
	}
	return m
}

// MapRow is the inverse of RowMap: it lays out m in header order.
func MapRow(table string, m map[string]string) []string {
	header, _ := HeaderFor(table)
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = m[col]
	}
	return row
}
