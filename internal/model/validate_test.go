package model

import "testing"

func TestExtractWorkspaceRef(t *testing.T) {
	for _, tc := range []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-dEf_123/edit#gid=0", "1AbC-dEf_123", true},
		{"  1AbCdEfGhIjKl  ", "1AbCdEfGhIjKl", true},
		{"short", "", false},
		{"not an id at all", "", false},
		{"", "", false},
	} {
		got, ok := ExtractWorkspaceRef(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ExtractWorkspaceRef(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestNormalizeWorkspaceRef(t *testing.T) {
	for _, tc := range []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-dEf_123/edit", "1AbC-dEf_123", true},
		{" ws-42 ", "ws-42", true},
		{"1AbCdEfGhIjKl", "1AbCdEfGhIjKl", true},
		{"two words", "", false},
		{"   ", "", false},
	} {
		got, ok := NormalizeWorkspaceRef(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("NormalizeWorkspaceRef(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestValidateName(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Anna Ivanova", "Anna Ivanova", false},
		{"  Анна   Иванова ", "Анна Иванова", false},
		{"O'Neil-Smith", "O'Neil-Smith", false},
		{"Пётр", "Пётр", false},
		{"A", "", true},
		{"Robert; DROP", "", true},
	} {
		got, err := ValidateName(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ValidateName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1500", "1500", false},
		{"1500,5", "1500.5", false},
		{" 99.99 ", "99.99", false},
		{"-10", "", true},
		{"12.345", "", true},
		{"abc", "", true},
	} {
		got, err := ValidateAmount("amount", tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ValidateAmount(%q) = %q, %v; want %q, wantErr %v", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestValidateDate(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-09-01", "2024-09-01", false},
		{"01.09.2024", "2024-09-01", false},
		{"2024/09/01", "", true},
		{"31.02.2024", "", true},
	} {
		got, err := ValidateDate("date", tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ValidateDate(%q) = %q, %v; want %q, wantErr %v", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestValidateAssignment(t *testing.T) {
	if err := ValidateAssignment(&StudentAssignment{ParentName: "Anna", StudentName: "Ivan", LessonCost: "2000"}); err != nil {
		t.Errorf("valid assignment: %v", err)
	}
	err := ValidateAssignment(&StudentAssignment{ParentName: " ", LessonCost: "x"})
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("expected 3 field errors, got %v", ve.Errors)
	}
}

func TestValidationError_Error(t *testing.T) {
	ve := &ValidationError{
		Errors: []FieldError{
			{Field: "parent_name", Message: "is required"},
			{Field: "lesson_cost", Message: "must be a number like 1500 or 1500.50"},
		},
	}
	want := "validation failed: parent_name: is required; lesson_cost: must be a number like 1500 or 1500.50"
	if got := ve.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
