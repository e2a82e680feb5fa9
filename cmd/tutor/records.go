package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

// inWorkspace wires the app, resolves the workspace and calls fn.
func inWorkspace(cmd *cobra.Command, fn func(a *app, ws string) error) error {
	a, err := getApp(cmd)
	if err != nil {
		return err
	}
	ws, err := a.workspace()
	if err != nil {
		return err
	}
	return fn(a, ws)
}

// optFlag returns a pointer to the flag value, or nil when it is empty.
func optFlag(cmd *cobra.Command, name string) *string {
	v, _ := cmd.Flags().GetString(name)
	return model.Opt(strings.TrimSpace(v))
}

func added(w io.Writer, what string) {
	fmt.Fprintln(w, ui.RenderSuccess("Added "+what))
}

// rowArg parses the ROW column shown by the list tables.
func rowArg(arg string) (int, error) {
	row, err := strconv.Atoi(arg)
	if err != nil || row < 1 {
		return 0, fmt.Errorf("row must be a positive number, got %q", arg)
	}
	return row, nil
}

// setChanged copies each changed string flag into its field. Optional
// fields take nil for an empty value.
func setChanged(cmd *cobra.Command, required map[string]*string, optional map[string]**string) {
	for flag, field := range required {
		if cmd.Flags().Changed(flag) {
			*field, _ = cmd.Flags().GetString(flag)
		}
	}
	for flag, field := range optional {
		if cmd.Flags().Changed(flag) {
			*field = optFlag(cmd, flag)
		}
	}
}

// Students

var studentsCmd = &cobra.Command{
	Use:     "students",
	Short:   "Manage students",
	GroupID: "records",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students with their parent and lesson cost",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, _ := cmd.Flags().GetBool("records")
		return inWorkspace(cmd, func(a *app, ws string) error {
			if records {
				students, err := a.svc.ListStudents(cmd.Context(), ws)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), students, func(w io.Writer) { printStudentTable(w, students) })
			}
			list, err := a.svc.ListAssignments(cmd.Context(), ws)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), list, func(w io.Writer) { printAssignments(w, list) })
		})
	},
}

var studentsAddCmd = &cobra.Command{
	Use:   "add <name...>",
	Short: "Add a row to the Students table",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := model.Student{
			Name:       strings.Join(args, " "),
			ExternalID: optFlag(cmd, "external-id"),
			Email:      optFlag(cmd, "email"),
			Phone:      optFlag(cmd, "phone"),
			Notes:      optFlag(cmd, "notes"),
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			if err := a.svc.AddStudent(cmd.Context(), ws, st); err != nil {
				return err
			}
			added(cmd.OutOrStdout(), model.SanitizeName(st.Name))
			return nil
		})
	},
}

var studentsUpdateCmd = &cobra.Command{
	Use:   "update <name...>",
	Short: "Change the contact fields of a student",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := model.SanitizeName(strings.Join(args, " "))
		return inWorkspace(cmd, func(a *app, ws string) error {
			students, err := a.svc.ListStudents(cmd.Context(), ws)
			if err != nil {
				return err
			}
			st, ok := findStudent(students, name)
			if !ok {
				return fmt.Errorf("no student named %q", name)
			}
			setChanged(cmd, nil, map[string]**string{
				"external-id": &st.ExternalID,
				"email":       &st.Email,
				"phone":       &st.Phone,
				"notes":       &st.Notes,
			})
			if err := a.svc.UpdateStudent(cmd.Context(), ws, st); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("Updated "+st.Name))
			return nil
		})
	},
}

var studentsDeleteCmd = &cobra.Command{
	Use:   "delete <name...>",
	Short: "Remove a student from the Students table",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args, " ")
		return inWorkspace(cmd, func(a *app, ws string) error {
			deleted, err := a.svc.DeleteStudent(cmd.Context(), ws, name)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no student named %q", model.SanitizeName(name))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", model.SanitizeName(name))
			return nil
		})
	},
}

func findStudent(students []model.Student, name string) (model.Student, bool) {
	for _, st := range students {
		if strings.EqualFold(model.SanitizeName(st.Name), name) {
			return st, true
		}
	}
	return model.Student{}, false
}

// Lessons

var lessonsCmd = &cobra.Command{
	Use:     "lessons",
	Short:   "Manage lessons",
	GroupID: "records",
}

var lessonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lessons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		return inWorkspace(cmd, func(a *app, ws string) error {
			lessons, err := a.svc.ListLessons(cmd.Context(), ws)
			if err != nil {
				return err
			}
			if student != "" {
				lessons = filterLessons(lessons, student)
			}
			return emit(cmd.OutOrStdout(), lessons, func(w io.Writer) { printLessonTable(w, lessons) })
		})
	},
}

var lessonsAddCmd = &cobra.Command{
	Use:   "add <student> <date>",
	Short: "Record a lesson",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		l := model.Lesson{
			StudentName: args[0],
			Date:        args[1],
			Time:        optFlag(cmd, "time"),
			Duration:    optFlag(cmd, "duration"),
			Topic:       optFlag(cmd, "topic"),
			Notes:       optFlag(cmd, "notes"),
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			if err := a.svc.AddLesson(cmd.Context(), ws, l); err != nil {
				return err
			}
			added(cmd.OutOrStdout(), "lesson with "+l.StudentName)
			return nil
		})
	},
}

var lessonsUpdateCmd = &cobra.Command{
	Use:   "update <row>",
	Short: "Change a lesson, found by its row in 'lessons list'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := rowArg(args[0])
		if err != nil {
			return err
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			lessons, err := a.svc.ListLessons(cmd.Context(), ws)
			if err != nil {
				return err
			}
			for _, l := range lessons {
				if l.Position.Row != row {
					continue
				}
				setChanged(cmd, map[string]*string{
					"student": &l.StudentName,
					"date":    &l.Date,
				}, map[string]**string{
					"time":     &l.Time,
					"duration": &l.Duration,
					"topic":    &l.Topic,
					"notes":    &l.Notes,
				})
				if err := a.svc.UpdateLesson(cmd.Context(), ws, l); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess(fmt.Sprintf("Updated lesson %d", row)))
				return nil
			}
			return fmt.Errorf("no lesson in row %d", row)
		})
	},
}

func filterLessons(lessons []model.Lesson, student string) []model.Lesson {
	student = model.SanitizeName(student)
	var out []model.Lesson
	for _, l := range lessons {
		if strings.EqualFold(model.SanitizeName(l.StudentName), student) {
			out = append(out, l)
		}
	}
	return out
}

// Payments

var paymentsCmd = &cobra.Command{
	Use:     "payments",
	Short:   "Manage payments",
	GroupID: "records",
}

var paymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return inWorkspace(cmd, func(a *app, ws string) error {
			payments, err := a.svc.ListPayments(cmd.Context(), ws)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), payments, func(w io.Writer) { printPaymentTable(w, payments) })
		})
	},
}

var paymentsAddCmd = &cobra.Command{
	Use:   "add <student> <amount> <date>",
	Short: "Record a payment",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := model.Payment{
			StudentName: args[0],
			Amount:      args[1],
			Date:        args[2],
			Method:      optFlag(cmd, "method"),
			Notes:       optFlag(cmd, "notes"),
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			if err := a.svc.AddPayment(cmd.Context(), ws, p); err != nil {
				return err
			}
			added(cmd.OutOrStdout(), "payment from "+p.StudentName)
			return nil
		})
	},
}

var paymentsUpdateCmd = &cobra.Command{
	Use:   "update <row>",
	Short: "Change a payment, found by its row in 'payments list'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := rowArg(args[0])
		if err != nil {
			return err
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			payments, err := a.svc.ListPayments(cmd.Context(), ws)
			if err != nil {
				return err
			}
			for _, p := range payments {
				if p.Position.Row != row {
					continue
				}
				setChanged(cmd, map[string]*string{
					"student": &p.StudentName,
					"amount":  &p.Amount,
					"date":    &p.Date,
				}, map[string]**string{
					"method": &p.Method,
					"notes":  &p.Notes,
				})
				if err := a.svc.UpdatePayment(cmd.Context(), ws, p); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess(fmt.Sprintf("Updated payment %d", row)))
				return nil
			}
			return fmt.Errorf("no payment in row %d", row)
		})
	},
}

// Assignments

var assignmentsCmd = &cobra.Command{
	Use:     "assignments",
	Short:   "Manage parent-student assignments and lesson costs",
	GroupID: "records",
}

var assignmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assignments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return inWorkspace(cmd, func(a *app, ws string) error {
			list, err := a.svc.ListAssignments(cmd.Context(), ws)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), list, func(w io.Writer) { printAssignments(w, list) })
		})
	},
}

var assignmentsAddCmd = &cobra.Command{
	Use:   "add <parent> <student> <lesson cost>",
	Short: "Assign a student to a parent with a lesson cost",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		as := model.StudentAssignment{
			ParentName:  args[0],
			StudentName: args[1],
			LessonCost:  args[2],
			Notes:       optFlag(cmd, "notes"),
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			if err := a.svc.AddAssignment(cmd.Context(), ws, as); err != nil {
				return err
			}
			added(cmd.OutOrStdout(), fmt.Sprintf("%s (parent %s)", model.SanitizeName(as.StudentName), model.SanitizeName(as.ParentName)))
			return nil
		})
	},
}

var assignmentsDeleteCmd = &cobra.Command{
	Use:   "delete <parent> <student>",
	Short: "Remove an assignment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inWorkspace(cmd, func(a *app, ws string) error {
			deleted, err := a.svc.DeleteAssignment(cmd.Context(), ws, args[0], args[1])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no student %s found for parent %s", args[1], args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (parent %s)\n", args[1], args[0])
			return nil
		})
	},
}

func init() {
	studentsListCmd.Flags().Bool("records", false, "show the Students table instead of assignments")
	for _, c := range []*cobra.Command{studentsAddCmd, studentsUpdateCmd} {
		c.Flags().String("external-id", "", "external id")
		c.Flags().String("email", "", "email address")
		c.Flags().String("phone", "", "phone number")
		c.Flags().String("notes", "", "free-form notes")
	}
	studentsCmd.AddCommand(studentsListCmd, studentsAddCmd, studentsUpdateCmd, studentsDeleteCmd)

	lessonsListCmd.Flags().String("student", "", "only lessons with this student")
	lessonsUpdateCmd.Flags().String("student", "", "student name")
	lessonsUpdateCmd.Flags().String("date", "", "lesson date")
	for _, c := range []*cobra.Command{lessonsAddCmd, lessonsUpdateCmd} {
		c.Flags().String("time", "", "start time")
		c.Flags().String("duration", "", "duration")
		c.Flags().String("topic", "", "topic")
		c.Flags().String("notes", "", "free-form notes")
	}
	lessonsCmd.AddCommand(lessonsListCmd, lessonsAddCmd, lessonsUpdateCmd)

	paymentsUpdateCmd.Flags().String("student", "", "student name")
	paymentsUpdateCmd.Flags().String("amount", "", "amount paid")
	paymentsUpdateCmd.Flags().String("date", "", "payment date")
	for _, c := range []*cobra.Command{paymentsAddCmd, paymentsUpdateCmd} {
		c.Flags().String("method", "", "payment method")
		c.Flags().String("notes", "", "free-form notes")
	}
	paymentsCmd.AddCommand(paymentsListCmd, paymentsAddCmd, paymentsUpdateCmd)

	assignmentsAddCmd.Flags().String("notes", "", "free-form notes")
	assignmentsCmd.AddCommand(assignmentsListCmd, assignmentsAddCmd, assignmentsDeleteCmd)
}
