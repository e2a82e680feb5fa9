package model

// Table names as they appear in a tutor's workspace.
const (
	TableStudents    = "Students"
	TableLessons     = "Lessons"
	TablePayments    = "Payments"
	TableEvents      = "Events"
	TableSettings    = "Settings"
	TableAssignments = "StudentAssignments"
)

// Schema is the ordered header of a table. Column order is the field order
// used when rows are encoded and decoded.
type Schema struct {
	Table   string
	Columns []string
}

// Schemas lists every table a workspace is provisioned with, in creation order.
var Schemas = []Schema{
	{Table: TableStudents, Columns: []string{"Name", "ExternalID", "Email", "Phone", "Notes"}},
	{Table: TableLessons, Columns: []string{"StudentName", "Date", "Time", "Duration", "Topic", "Notes"}},
	{Table: TablePayments, Columns: []string{"StudentName", "Amount", "Date", "Method", "Notes"}},
	{Table: TableEvents, Columns: []string{"Timestamp", "Event", "Detail"}},
	{Table: TableSettings, Columns: []string{"Key", "Value"}},
	{Table: TableAssignments, Columns: []string{"ParentName", "StudentName", "LessonCost", "Notes"}},
}

// HeaderFor returns a copy of the declared header for table. The second
// result is false when the table has no declared schema.
func HeaderFor(table string) ([]string, bool) {
	for _, s := range Schemas {
		if s.Table == table {
			return append([]string(nil), s.Columns...), true
		}
	}
	return nil, false
}

// TableNames returns the names of all declared tables in creation order.
func TableNames() []string {
	names := make([]string, len(Schemas))
	for i, s := range Schemas {
		names[i] = s.Table
	}
	return names
}
