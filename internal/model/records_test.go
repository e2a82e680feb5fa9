package model

import (
	"errors"
	"reflect"
	"testing"
)

func strp(s string) *string { return &s }

func TestStudent_RoundTrip(t *testing.T) {
	pos := Position{Table: TableStudents, Row: 3}
	for _, s := range []Student{
		{Name: "Oleg", Position: pos},
		{Name: "Oleg", Email: strp("o@x.com"), Position: pos},
		{Name: "Maria", ExternalID: strp("42"), Email: strp("m@x.com"), Phone: strp("+7 900"), Notes: strp("weekends"), Position: pos},
	} {
		got, err := DecodeStudent(s.Row(), pos)
		if err != nil {
			t.Fatalf("DecodeStudent(%v): %v", s.Row(), err)
		}
		if !reflect.DeepEqual(got, s) {
			t.Errorf("round trip = %+v, want %+v", got, s)
		}
	}
}

func TestLesson_RoundTrip(t *testing.T) {
	pos := Position{Table: TableLessons, Row: 1}
	for _, l := range []Lesson{
		{StudentName: "Oleg", Date: "2024-09-01", Position: pos},
		{StudentName: "Oleg", Date: "2024-09-01", Time: strp("15:00"), Duration: strp("60"), Topic: strp("Algebra"), Notes: strp("hw"), Position: pos},
	} {
		got, err := DecodeLesson(l.Row(), pos)
		if err != nil {
			t.Fatalf("DecodeLesson: %v", err)
		}
		if !reflect.DeepEqual(got, l) {
			t.Errorf("round trip = %+v, want %+v", got, l)
		}
	}
}

func TestPayment_RoundTrip(t *testing.T) {
	pos := Position{Table: TablePayments, Row: 7}
	for _, p := range []Payment{
		{StudentName: "Oleg", Amount: "1500", Date: "2024-09-01", Position: pos},
		{StudentName: "Oleg", Amount: "1500.50", Date: "2024-09-01", Method: strp("card"), Notes: strp("sept"), Position: pos},
	} {
		got, err := DecodePayment(p.Row(), pos)
		if err != nil {
			t.Fatalf("DecodePayment: %v", err)
		}
		if !reflect.DeepEqual(got, p) {
			t.Errorf("round trip = %+v, want %+v", got, p)
		}
	}
}

func TestAssignment_RoundTrip(t *testing.T) {
	pos := Position{Table: TableAssignments, Row: 2}
	for _, a := range []StudentAssignment{
		{ParentName: "Anna Petrova", StudentName: "Ivan", LessonCost: "2000", Position: pos},
		{ParentName: "Anna Petrova", StudentName: "Ivan", LessonCost: "2000", Notes: strp("twice a week"), Position: pos},
	} {
		got, err := DecodeAssignment(a.Row(), pos)
		if err != nil {
			t.Fatalf("DecodeAssignment: %v", err)
		}
		if !reflect.DeepEqual(got, a) {
			t.Errorf("round trip = %+v, want %+v", got, a)
		}
	}
}

func TestSettingAndEvent_RoundTrip(t *testing.T) {
	s := Setting{Key: "currency", Value: "RUB"}
	gotS, err := DecodeSetting(s.Row())
	if err != nil || gotS != s {
		t.Errorf("DecodeSetting = %+v, %v; want %+v", gotS, err, s)
	}

	e := Event{Timestamp: "2024-09-01T10:00:00Z", Event: "student_added", Detail: "Oleg"}
	gotE, err := DecodeEvent(e.Row())
	if err != nil || gotE != e {
		t.Errorf("DecodeEvent = %+v, %v; want %+v", gotE, err, e)
	}
}

func TestDecode_ShortRowsPadOptionals(t *testing.T) {
	s, err := DecodeStudent([]string{"Oleg"}, Position{Row: 1})
	if err != nil {
		t.Fatalf("DecodeStudent: %v", err)
	}
	if s.Email != nil || s.Phone != nil || s.Notes != nil || s.ExternalID != nil {
		t.Errorf("expected nil optionals, got %+v", s)
	}
}

func TestDecode_MissingRequired(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func() error
	}{
		{"lesson date", func() error { _, err := DecodeLesson([]string{"Oleg", ""}, Position{}); return err }},
		{"payment amount", func() error { _, err := DecodePayment([]string{"Oleg", " ", "2024-09-01"}, Position{}); return err }},
		{"assignment cost", func() error { _, err := DecodeAssignment([]string{"Anna", "Ivan"}, Position{}); return err }},
		{"student name", func() error { _, err := DecodeStudent(nil, Position{}); return err }},
	} {
		if err := tc.fn(); !errors.Is(err, ErrMissingField) {
			t.Errorf("%s: err = %v, want ErrMissingField", tc.name, err)
		}
	}
}

func TestRowMap_MapRow(t *testing.T) {
	row := []string{"Oleg", "2024-09-01", "", "60"}
	m := RowMap(TableLessons, row)
	if m["StudentName"] != "Oleg" || m["Duration"] != "60" || m["Notes"] != "" {
		t.Errorf("RowMap = %v", m)
	}
	want := []string{"Oleg", "2024-09-01", "", "60", "", ""}
	if got := MapRow(TableLessons, m); !reflect.DeepEqual(got, want) {
		t.Errorf("MapRow = %v, want %v", got, want)
	}
	if len(RowMap("Unknown", row)) != 0 {
		t.Error("RowMap for an undeclared table should be empty")
	}
}

func TestAssignment_Matches(t *testing.T) {
	a := StudentAssignment{ParentName: "Anna Petrova", StudentName: "Ivan"}
	if !a.Matches(" anna petrova", "IVAN ") {
		t.Error("Matches should ignore case and surrounding space")
	}
	if a.Matches("Anna Petrova", "Oleg") {
		t.Error("Matches should not match a different student")
	}
}

func TestHeaderFor(t *testing.T) {
	h, ok := HeaderFor(TableSettings)
	if !ok || !reflect.DeepEqual(h, []string{"Key", "Value"}) {
		t.Errorf("HeaderFor(Settings) = %v, %v", h, ok)
	}
	h[0] = "mutated"
	if again, _ := HeaderFor(TableSettings); again[0] != "Key" {
		t.Error("HeaderFor must return a copy")
	}
	if _, ok := HeaderFor("Nope"); ok {
		t.Error("HeaderFor(Nope) should report false")
	}
	if n := len(TableNames()); n != len(Schemas) {
		t.Errorf("TableNames() has %d entries, want %d", n, len(Schemas))
	}
}

func TestFormatLocal(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"2024-09-01T15:04:05Z", "01.09.2024 15:04"},
		{"2024-09-01 garbage", "2024-09-01"},
		{"short", "short"},
	} {
		if got := FormatLocal(tc.in); got != tc.want {
			t.Errorf("FormatLocal(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
