package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// emit writes v as JSON under --json, otherwise calls table.
func emit(w io.Writer, v any, table func(io.Writer)) error {
	if jsonOutput {
		return printJSON(w, v)
	}
	table(w)
	return nil
}

func or(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printTutor(w io.Writer, cfg *model.TutorConfig) {
	fmt.Fprintf(w, "ID:          %s\n", cfg.ExternalID)
	fmt.Fprintf(w, "Name:        %s\n", cfg.DisplayName)
	fmt.Fprintf(w, "Workspace:   %s\n", cfg.WorkspaceRef)
	fmt.Fprintf(w, "Registered:  %s\n", model.FormatLocal(cfg.CreatedAt))
	fmt.Fprintf(w, "Updated:     %s\n", model.FormatLocal(cfg.UpdatedAt))
}

// printProfile renders the tutor's profile the way the chat shows it.
func printProfile(w io.Writer, cfg *model.TutorConfig) {
	fmt.Fprintln(w, ui.RenderAccent("Your profile"))
	fmt.Fprintf(w, "Name: %s\n", cfg.DisplayName)
	fmt.Fprintf(w, "Spreadsheet: https://docs.google.com/spreadsheets/d/%s\n", cfg.WorkspaceRef)
	fmt.Fprintf(w, "Registered: %s\n", model.FormatLocal(cfg.CreatedAt))
}

func printTutorTable(w io.Writer, tutors []model.TutorConfig) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWORKSPACE\tREGISTERED")
	for _, t := range tutors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ExternalID, truncate(t.DisplayName, 40), t.WorkspaceRef, model.FormatLocal(t.CreatedAt))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d tutors\n", len(tutors))
}

func printStudentTable(w io.Writer, students []model.Student) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tNAME\tEMAIL\tPHONE\tNOTES")
	for _, s := range students {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Position.Row, s.Name, or(s.Email), or(s.Phone), truncate(or(s.Notes), 40))
	}
	tw.Flush()
}

func printLessonTable(w io.Writer, lessons []model.Lesson) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTUDENT\tDATE\tTIME\tDURATION\tTOPIC")
	for _, l := range lessons {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", l.Position.Row, l.StudentName, l.Date, or(l.Time), or(l.Duration), truncate(or(l.Topic), 40))
	}
	tw.Flush()
}

func printPaymentTable(w io.Writer, payments []model.Payment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTUDENT\tAMOUNT\tDATE\tMETHOD")
	for _, p := range payments {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.Position.Row, p.StudentName, p.Amount, p.Date, or(p.Method))
	}
	tw.Flush()
}

// formatAssignments renders one numbered line per assignment.
func formatAssignments(list []model.StudentAssignment) []string {
	lines := make([]string, len(list))
	for i, a := range list {
		lines[i] = fmt.Sprintf("%d. %s – %s: %s", i+1, a.ParentName, a.StudentName, a.LessonCost)
	}
	return lines
}

func printAssignments(w io.Writer, list []model.StudentAssignment) {
	if len(list) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No students yet."))
		return
	}
	fmt.Fprintln(w, strings.Join(formatAssignments(list), "\n"))
}

func printEventTable(w io.Writer, evs []model.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tDETAIL")
	for _, e := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", model.FormatLocal(e.Timestamp), e.Event, truncate(e.Detail, 60))
	}
	tw.Flush()
}
