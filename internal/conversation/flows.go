package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/registry"
	"github.com/alfredjeanlab/tutorsheets/internal/repository"
)

// Flow names.
const (
	FlowRegister      = "register"
	FlowAddStudent    = "add_student"
	FlowDeleteStudent = "delete_student"
	FlowAddLesson     = "add_lesson"
	FlowAddPayment    = "add_payment"
)

// Backend is what the built-in flows need from the application.
type Backend interface {
	IsRegistered(id string) bool
	WorkspaceFor(id string) (string, error)
	EnsureWorkspace(ctx context.Context, workspace string) error
	Register(ctx context.Context, id, name, workspaceInput string) (*model.TutorConfig, error)
	AddAssignment(ctx context.Context, workspace string, a model.StudentAssignment) error
	DeleteAssignment(ctx context.Context, workspace, parent, student string) (bool, error)
	AddLesson(ctx context.Context, workspace string, l model.Lesson) error
	AddPayment(ctx context.Context, workspace string, p model.Payment) error
}

const (
	msgNotRegistered     = "You are not registered yet. Send /register first."
	msgAlreadyRegistered = "You are already registered. Send /profile to see your details."
	msgWorkspaceUnusable = "Could not open that spreadsheet. Share it with the service account as an editor and send the link again."
)

// DefaultFlows returns the built-in flows bound to b.
func DefaultFlows(b Backend) []*Flow {
	return []*Flow{
		registerFlow(b),
		addStudentFlow(b),
		deleteStudentFlow(b),
		addLessonFlow(b),
		addPaymentFlow(b),
	}
}

// Validators

func nameValidator(_ context.Context, input string, _ Values) (string, error) {
	return model.ValidateName(input)
}

func requiredValidator(field string) Validator {
	return func(_ context.Context, input string, _ Values) (string, error) {
		v := model.SanitizeName(input)
		if v == "" {
			return "", &model.FieldError{Field: field, Message: "This value is required."}
		}
		return v, nil
	}
}

func amountValidator(field string) Validator {
	return func(_ context.Context, input string, _ Values) (string, error) {
		return model.ValidateAmount(field, input)
	}
}

func dateValidator(field string) Validator {
	return func(_ context.Context, input string, _ Values) (string, error) {
		return model.ValidateDate(field, input)
	}
}

func optionalValidator(_ context.Context, input string, _ Values) (string, error) {
	v := strings.TrimSpace(input)
	if v == "-" {
		return "", nil
	}
	return v, nil
}

// workspaceValidator accepts a share link or id and provisions the tables.
func workspaceValidator(b Backend) Validator {
	return func(ctx context.Context, input string, _ Values) (string, error) {
		ref, ok := model.ExtractWorkspaceRef(input)
		if !ok {
			return "", &model.FieldError{Field: "workspace", Message: "That does not look like a Google Sheets link or id."}
		}
		if err := b.EnsureWorkspace(ctx, ref); err != nil {
			return "", &model.FieldError{Field: "workspace", Message: msgWorkspaceUnusable}
		}
		return ref, nil
	}
}

// Prechecks

func requireRegistered(b Backend) func(context.Context, string) error {
	return func(_ context.Context, identity string) error {
		if !b.IsRegistered(identity) {
			return Reject(msgNotRegistered)
		}
		return nil
	}
}

func requireUnregistered(b Backend) func(context.Context, string) error {
	return func(_ context.Context, identity string) error {
		if b.IsRegistered(identity) {
			return Reject(msgAlreadyRegistered)
		}
		return nil
	}
}

func workspace(b Backend, identity string) (string, error) {
	ws, err := b.WorkspaceFor(identity)
	if err != nil {
		return "", Reject(msgNotRegistered)
	}
	return ws, nil
}

// splitTail assigns the last len(tail) args to tail and joins the rest into
// head. It needs at least one arg for head.
func splitTail(args []string, head string, tail ...string) (Values, bool) {
	if len(args) < len(tail)+1 {
		return nil, false
	}
	n := len(args) - len(tail)
	v := Values{head: strings.Join(args[:n], " ")}
	for i, name := range tail {
		v[name] = args[n+i]
	}
	return v, true
}

func registerFlow(b Backend) *Flow {
	return &Flow{
		Name:  FlowRegister,
		Usage: "Usage: /register <spreadsheet link> <your name>",
		Fields: []Field{
			{Name: "name", Prompt: "What is your name?", Validate: nameValidator},
			{Name: "workspace", Prompt: "Send the link to your Google spreadsheet.", Validate: workspaceValidator(b)},
		},
		Precheck: requireUnregistered(b),
		SplitArgs: func(args []string) (Values, bool) {
			if len(args) < 2 {
				return nil, false
			}
			return Values{"workspace": args[0], "name": strings.Join(args[1:], " ")}, true
		},
		Submit: func(ctx context.Context, identity string, v Values) (string, error) {
			cfg, err := b.Register(ctx, identity, v["name"], v["workspace"])
			if errors.Is(err, registry.ErrAlreadyExists) {
				return "", Reject(msgAlreadyRegistered)
			}
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Welcome, %s! Your spreadsheet is ready.", cfg.DisplayName), nil
		},
	}
}

func addStudentFlow(b Backend) *Flow {
	return &Flow{
		Name:  FlowAddStudent,
		Usage: "Usage: /add_student <parent name> <student name> <lesson cost>",
		Fields: []Field{
			{Name: "parent", Prompt: "Parent's name?", Validate: requiredValidator("parent")},
			{Name: "student", Prompt: "Student's name?", Validate: requiredValidator("student")},
			{Name: "cost", Prompt: "Lesson cost?", Validate: amountValidator("cost")},
		},
		Precheck: requireRegistered(b),
		SplitArgs: func(args []string) (Values, bool) {
			return splitTail(args, "parent", "student", "cost")
		},
		Submit: func(ctx context.Context, identity string, v Values) (string, error) {
			ws, err := workspace(b, identity)
			if err != nil {
				return "", err
			}
			a := model.StudentAssignment{ParentName: v["parent"], StudentName: v["student"], LessonCost: v["cost"]}
			if err := b.AddAssignment(ctx, ws, a); err != nil {
				if errors.Is(err, repository.ErrDuplicateRecord) {
					return "", Reject(fmt.Sprintf("%s is already listed for %s.", a.StudentName, a.ParentName))
				}
				return "", err
			}
			return fmt.Sprintf("Added %s (parent %s), lesson cost %s.", a.StudentName, a.ParentName, a.LessonCost), nil
		},
	}
}

func deleteStudentFlow(b Backend) *Flow {
	return &Flow{
		Name:  FlowDeleteStudent,
		Usage: "Usage: /delete_student <parent name> <student name>",
		Fields: []Field{
			{Name: "parent", Prompt: "Parent's name?", Validate: requiredValidator("parent")},
			{Name: "student", Prompt: "Student's name?", Validate: requiredValidator("student")},
		},
		Precheck: requireRegistered(b),
		Confirm: func(v Values) string {
			return fmt.Sprintf("Delete %s (parent %s)?", v["student"], v["parent"])
		},
		SplitArgs: func(args []string) (Values, bool) {
			return splitTail(args, "parent", "student")
		},
		Submit: func(ctx context.Context, identity string, v Values) (string, error) {
			ws, err := workspace(b, identity)
			if err != nil {
				return "", err
			}
			deleted, err := b.DeleteAssignment(ctx, ws, v["parent"], v["student"])
			if err != nil {
				return "", err
			}
			if !deleted {
				return "", Reject(fmt.Sprintf("No student %s found for parent %s.", v["student"], v["parent"]))
			}
			return fmt.Sprintf("Deleted %s (parent %s).", v["student"], v["parent"]), nil
		},
	}
}

func addLessonFlow(b Backend) *Flow {
	return &Flow{
		Name:  FlowAddLesson,
		Usage: "Usage: /add_lesson <student> <date> <topic>",
		Fields: []Field{
			{Name: "student", Prompt: "Which student?", Validate: requiredValidator("student")},
			{Name: "date", Prompt: "Lesson date (YYYY-MM-DD or DD.MM.YYYY)?", Validate: dateValidator("date")},
			{Name: "topic", Prompt: "Topic? Send - to skip.", Validate: optionalValidator},
		},
		Precheck: requireRegistered(b),
		SplitArgs: func(args []string) (Values, bool) {
			if len(args) < 2 {
				return nil, false
			}
			return Values{"student": args[0], "date": args[1], "topic": strings.Join(args[2:], " ")}, true
		},
		Submit: func(ctx context.Context, identity string, v Values) (string, error) {
			ws, err := workspace(b, identity)
			if err != nil {
				return "", err
			}
			l := model.Lesson{StudentName: v["student"], Date: v["date"], Topic: model.Opt(v["topic"])}
			if err := b.AddLesson(ctx, ws, l); err != nil {
				return "", err
			}
			return fmt.Sprintf("Lesson with %s on %s saved.", l.StudentName, l.Date), nil
		},
	}
}

func addPaymentFlow(b Backend) *Flow {
	return &Flow{
		Name:  FlowAddPayment,
		Usage: "Usage: /add_payment <student> <amount> <date> <method>",
		Fields: []Field{
			{Name: "student", Prompt: "Which student paid?", Validate: requiredValidator("student")},
			{Name: "amount", Prompt: "Amount?", Validate: amountValidator("amount")},
			{Name: "date", Prompt: "Payment date (YYYY-MM-DD or DD.MM.YYYY)?", Validate: dateValidator("date")},
			{Name: "method", Prompt: "Payment method? Send - to skip.", Validate: optionalValidator},
		},
		Precheck: requireRegistered(b),
		SplitArgs: func(args []string) (Values, bool) {
			if len(args) != 4 {
				return nil, false
			}
			return Values{"student": args[0], "amount": args[1], "date": args[2], "method": args[3]}, true
		},
		Submit: func(ctx context.Context, identity string, v Values) (string, error) {
			ws, err := workspace(b, identity)
			if err != nil {
				return "", err
			}
			p := model.Payment{StudentName: v["student"], Amount: v["amount"], Date: v["date"], Method: model.Opt(v["method"])}
			if err := b.AddPayment(ctx, ws, p); err != nil {
				return "", err
			}
			return fmt.Sprintf("Payment of %s from %s saved.", p.Amount, p.StudentName), nil
		},
	}
}
