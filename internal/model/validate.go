package model

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the field error as "field: message".
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

var (
	workspaceURLPattern = regexp.MustCompile(`docs\.google\.com/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	workspaceIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	namePattern         = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ0-9\s\-']+$`)
	amountPattern       = regexp.MustCompile(`^\d+([.,]\d{1,2})?$`)
)

// ExtractWorkspaceRef pulls a spreadsheet id out of a share URL, or accepts
// a bare id longer than ten characters. ok is false for anything else.
func ExtractWorkspaceRef(input string) (ref string, ok bool) {
	input = strings.TrimSpace(input)
	if m := workspaceURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if len(input) > 10 && workspaceIDPattern.MatchString(input) {
		return input, true
	}
	return "", false
}

// NormalizeWorkspaceRef pulls the id out of a share URL and otherwise
// accepts the trimmed input as an opaque ref. ok is false for blank input or
// input containing whitespace.
func NormalizeWorkspaceRef(input string) (ref string, ok bool) {
	input = strings.TrimSpace(input)
	if m := workspaceURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	if input == "" || strings.ContainsAny(input, " \t\r\n") {
		return "", false
	}
	return input, true
}

// SanitizeName trims name and collapses internal whitespace runs.
func SanitizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// ValidateName checks a display name: 2 to 100 characters of Latin or
// Cyrillic letters, digits, spaces, hyphens and apostrophes. It returns the
// sanitized name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 100 {
		return "", &FieldError{Field: "name", Message: "must be between 2 and 100 characters"}
	}
	if !namePattern.MatchString(name) {
		return "", &FieldError{Field: "name", Message: "may contain only letters, digits, spaces, hyphens and apostrophes"}
	}
	return SanitizeName(name), nil
}

// ValidateAmount checks a non-negative decimal with at most two fraction
// digits and normalizes a decimal comma to a dot.
func ValidateAmount(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return "", &FieldError{Field: field, Message: "must be a number like 1500 or 1500.50"}
	}
	return strings.Replace(s, ",", ".", 1), nil
}

// ValidateDate accepts YYYY-MM-DD or DD.MM.YYYY and returns YYYY-MM-DD.
func ValidateDate(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", &FieldError{Field: field, Message: "must be a date like 2024-09-01 or 01.09.2024"}
}

// ValidateAssignment checks an assignment before it is written.
// It returns a *ValidationError if any rules fail, or nil if it is valid.
func ValidateAssignment(a *StudentAssignment) error {
	var ve ValidationError

	if SanitizeName(a.ParentName) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "parent_name", Message: "is required"})
	}
	if SanitizeName(a.StudentName) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "student_name", Message: "is required"})
	}
	if _, err := ValidateAmount("lesson_cost", a.LessonCost); err != nil {
		ve.Errors = append(ve.Errors, *err.(*FieldError))
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
