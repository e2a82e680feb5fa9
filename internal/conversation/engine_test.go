package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/registry"
	"github.com/alfredjeanlab/tutorsheets/internal/repository"
	"github.com/alfredjeanlab/tutorsheets/internal/service"
	"github.com/alfredjeanlab/tutorsheets/internal/store/memory"
)

const sheetID = "1AbCdEfGhIjKlMnOp"

type harness struct {
	engine *Engine
	svc    *service.Service
	reg    *registry.Registry
	mem    *memory.Store
	m      *metrics.Metrics

	mu       sync.Mutex
	finished []string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "tutors_config.json"))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := memory.New(sheetID, "ws-42")
	svc := service.New(reg, repository.New(mem, repository.WithLogger(logger)), service.WithLogger(logger))

	h := &harness{svc: svc, reg: reg, mem: mem, m: metrics.New(prometheus.NewRegistry())}
	all := append([]Option{
		WithLogger(logger),
		WithMetrics(h.m),
		WithFinishHook(func(_ context.Context, identity, flow string, outcome Outcome) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.finished = append(h.finished, identity+"/"+flow+"/"+string(outcome))
		}),
	}, opts...)
	h.engine = New(DefaultFlows(svc), all...)
	return h
}

func (h *harness) registered(t *testing.T, id, ws string) {
	t.Helper()
	if _, err := h.reg.Register(id, "Anna Ivanova", ws); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.EnsureWorkspace(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) finishes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.finished...)
}

func mustStart(t *testing.T, e *Engine, identity, flow string, args ...string) Reply {
	t.Helper()
	r, err := e.Start(context.Background(), identity, flow, args)
	if err != nil {
		t.Fatalf("Start(%s): %v", flow, err)
	}
	return r
}

func mustSend(t *testing.T, e *Engine, identity, text string) Reply {
	t.Helper()
	r, err := e.Send(context.Background(), identity, text)
	if err != nil {
		t.Fatalf("Send(%q): %v", text, err)
	}
	return r
}

func TestRegisterFlow_Interactive(t *testing.T) {
	h := newHarness(t)

	r := mustStart(t, h.engine, "1001", FlowRegister)
	if r.State != StateCollecting || r.Field != "name" {
		t.Fatalf("first reply = %+v", r)
	}

	r = mustSend(t, h.engine, "1001", "A")
	if r.Field != "name" || !strings.Contains(r.Text, "between 2 and 100") {
		t.Errorf("invalid name reply = %+v", r)
	}

	r = mustSend(t, h.engine, "1001", "  Anna   Ivanova ")
	if r.Field != "workspace" {
		t.Fatalf("reply after name = %+v", r)
	}

	r = mustSend(t, h.engine, "1001", "not a link")
	if r.Field != "workspace" || r.Done() {
		t.Errorf("invalid workspace reply = %+v", r)
	}
	r = mustSend(t, h.engine, "1001", "9ZZZZZZZZZZZZZZZ")
	if r.Field != "workspace" || !strings.Contains(r.Text, "Could not open") {
		t.Errorf("unreachable workspace reply = %+v", r)
	}

	r = mustSend(t, h.engine, "1001", "https://docs.google.com/spreadsheets/d/"+sheetID+"/edit")
	if !r.Done() || r.Outcome != OutcomeCompleted {
		t.Fatalf("final reply = %+v", r)
	}
	cfg, err := h.reg.Get("1001")
	if err != nil || cfg.DisplayName != "Anna Ivanova" || cfg.WorkspaceRef != sheetID {
		t.Errorf("registry entry = %+v, %v", cfg, err)
	}
	if h.engine.Len() != 0 {
		t.Errorf("terminal session not discarded")
	}

	r = mustStart(t, h.engine, "1001", FlowRegister)
	if r.Outcome != OutcomeRejected || r.Text != msgAlreadyRegistered {
		t.Errorf("second register = %+v", r)
	}
}

func TestPrecheck_RequiresRegistration(t *testing.T) {
	h := newHarness(t)
	for _, flow := range []string{FlowAddStudent, FlowDeleteStudent, FlowAddLesson, FlowAddPayment} {
		r := mustStart(t, h.engine, "2002", flow)
		if r.Outcome != OutcomeRejected || r.Text != msgNotRegistered {
			t.Errorf("%s precheck = %+v", flow, r)
		}
	}
	if h.engine.Len() != 0 {
		t.Error("rejected prechecks must not open sessions")
	}
}

func TestAddStudent_Prefilled(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)
	ctx := context.Background()

	for _, tc := range []struct {
		args    []string
		outcome Outcome
	}{
		{[]string{"Anna", "Petrova", "Oleg", "1500,5"}, OutcomeCompleted},
		{[]string{"anna  petrova", "OLEG", "900"}, OutcomeRejected}, // duplicate
		{[]string{"Ivan", "Maria", "lots"}, OutcomeRejected},         // bad cost
		{[]string{"Maria", "100"}, OutcomeRejected},                  // too few args
	} {
		r := mustStart(t, h.engine, "1001", FlowAddStudent, tc.args...)
		if r.Outcome != tc.outcome {
			t.Errorf("add_student %v = %+v, want %s", tc.args, r, tc.outcome)
		}
	}

	list, _ := h.svc.ListAssignments(ctx, sheetID)
	if len(list) != 1 {
		t.Fatalf("assignments = %+v", list)
	}
	want := model.StudentAssignment{ParentName: "Anna Petrova", StudentName: "Oleg", LessonCost: "1500.5",
		Position: model.Position{Table: model.TableAssignments, Row: 1}}
	if list[0] != want {
		t.Errorf("assignment = %+v, want %+v", list[0], want)
	}
}

func TestDeleteStudent_ConfirmAndCancel(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)
	ctx := context.Background()
	_ = h.svc.AddAssignment(ctx, sheetID, model.StudentAssignment{ParentName: "Anna", StudentName: "Oleg", LessonCost: "100"})

	mustStart(t, h.engine, "1001", FlowDeleteStudent)
	mustSend(t, h.engine, "1001", "Anna")
	r := mustSend(t, h.engine, "1001", "Oleg")
	if r.State != StateConfirming || !strings.Contains(r.Text, CommandConfirm) {
		t.Fatalf("confirmation prompt = %+v", r)
	}
	for _, text := range []string{"yes please", "/confirmation"} {
		r = mustSend(t, h.engine, "1001", text)
		if r.State != StateConfirming {
			t.Errorf("Send(%q) in confirming = %+v", text, r)
		}
	}
	r = mustSend(t, h.engine, "1001", "/CONFIRM")
	if r.Outcome != OutcomeCompleted {
		t.Fatalf("confirm = %+v", r)
	}
	if list, _ := h.svc.ListAssignments(ctx, sheetID); len(list) != 0 {
		t.Errorf("assignment not deleted: %+v", list)
	}

	r = mustStart(t, h.engine, "1001", FlowDeleteStudent, "Anna", "Oleg")
	if r.Outcome != OutcomeRejected || !strings.Contains(r.Text, "No student") {
		t.Errorf("delete absent = %+v", r)
	}
}

// Registered tutor with an empty workspace adds a student without a phone,
// then starts a delete and cancels it.
func TestEndToEnd_CancelledDeleteLeavesTable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registered(t, "1001", "ws-42")

	cfg, err := h.reg.Get("1001")
	if err != nil || cfg.CreatedAt != cfg.UpdatedAt {
		t.Fatalf("registry entry = %+v, %v", cfg, err)
	}
	if students, _ := h.svc.ListStudents(ctx, "ws-42"); len(students) != 0 {
		t.Fatalf("students = %+v", students)
	}
	if err := h.svc.AddStudent(ctx, "ws-42", model.Student{Name: "Oleg"}); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.AddAssignment(ctx, "ws-42", model.StudentAssignment{ParentName: "Anna", StudentName: "Oleg", LessonCost: "100"}); err != nil {
		t.Fatal(err)
	}

	mustStart(t, h.engine, "1001", FlowDeleteStudent)
	mustSend(t, h.engine, "1001", "Anna")
	mustSend(t, h.engine, "1001", "Oleg")
	r := mustSend(t, h.engine, "1001", "/cancel")
	if r.Outcome != OutcomeCancelled {
		t.Fatalf("cancel = %+v", r)
	}

	students, _ := h.svc.ListStudents(ctx, "ws-42")
	if len(students) != 1 || students[0].Name != "Oleg" || students[0].Phone != nil {
		t.Errorf("students after cancel = %+v", students)
	}
	if list, _ := h.svc.ListAssignments(ctx, "ws-42"); len(list) != 1 {
		t.Errorf("assignments after cancel = %+v", list)
	}
}

func TestCancel_FirstWordCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)

	for _, text := range []string{"/cancel", "/CANCEL", "  /Cancel now"} {
		mustStart(t, h.engine, "1001", FlowAddLesson)
		r := mustSend(t, h.engine, "1001", text)
		if r.Outcome != OutcomeCancelled {
			t.Errorf("Send(%q) = %+v, want cancelled", text, r)
		}
	}

	// A longer word is field input, not a command.
	mustStart(t, h.engine, "1001", FlowAddLesson)
	r := mustSend(t, h.engine, "1001", "/cancelled")
	if r.Outcome == OutcomeCancelled || r.Field != "date" {
		t.Errorf("Send(/cancelled) = %+v, want the date prompt", r)
	}
	mustSend(t, h.engine, "1001", "/cancel")
	if _, err := h.engine.Cancel(context.Background(), "1001"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Cancel without session = %v, want ErrNoSession", err)
	}
}

func TestStart_SupersedesSession(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)

	first := mustStart(t, h.engine, "1001", FlowAddStudent)
	mustSend(t, h.engine, "1001", "Anna")
	second := mustStart(t, h.engine, "1001", FlowAddStudent)

	if second.Field != "parent" || second.SessionID == first.SessionID {
		t.Errorf("restart = %+v (first %s)", second, first.SessionID)
	}
	if h.engine.Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.engine.Len())
	}
}

func TestSend_RoutesToMostRecentSession(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)

	mustStart(t, h.engine, "1001", FlowAddLesson)
	mustStart(t, h.engine, "1001", FlowAddPayment)
	if flow, _ := h.engine.Active("1001"); flow != FlowAddPayment {
		t.Errorf("active = %s, want %s", flow, FlowAddPayment)
	}
	r := mustSend(t, h.engine, "1001", "Oleg")
	if r.Flow != FlowAddPayment || r.Field != "amount" {
		t.Errorf("reply = %+v", r)
	}
	for _, text := range []string{"1200", "01.09.2024", "-"} {
		r = mustSend(t, h.engine, "1001", text)
	}
	if r.Outcome != OutcomeCompleted {
		t.Fatalf("payment flow = %+v", r)
	}

	// The lesson session is still open and now receives input.
	r = mustSend(t, h.engine, "1001", "Oleg")
	if r.Flow != FlowAddLesson || r.Field != "date" {
		t.Errorf("reply = %+v", r)
	}
	payments, _ := h.svc.ListPayments(context.Background(), sheetID)
	if len(payments) != 1 || payments[0].Method != nil || payments[0].Date != "2024-09-01" {
		t.Errorf("payments = %+v", payments)
	}
}

func TestErrors(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Start(context.Background(), "1", "nope", nil); !errors.Is(err, ErrUnknownFlow) {
		t.Errorf("unknown flow error = %v", err)
	}
	if _, err := h.engine.Send(context.Background(), "1", "hi"); !errors.Is(err, ErrNoSession) {
		t.Errorf("send without session = %v", err)
	}
}

func TestSubmitFailure(t *testing.T) {
	boom := &Flow{
		Name:   "boom",
		Fields: []Field{{Name: "x", Prompt: "x?"}},
		Submit: func(context.Context, string, Values) (string, error) {
			return "", fmt.Errorf("append: %w", errors.New("quota exceeded"))
		},
	}
	e := New([]*Flow{boom}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	mustStart(t, e, "1", "boom")
	r := mustSend(t, e, "1", "anything")
	if r.Outcome != OutcomeFailed || !strings.Contains(r.Text, "quota exceeded") {
		t.Errorf("reply = %+v", r)
	}
}

func TestOutcomesAreRecorded(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)

	mustStart(t, h.engine, "1001", FlowAddLesson, "Oleg", "2024-09-01", "Fractions")
	mustStart(t, h.engine, "1001", FlowAddLesson)
	mustSend(t, h.engine, "1001", "/cancel")

	want := []string{"1001/add_lesson/completed", "1001/add_lesson/cancelled"}
	got := h.finishes()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("finish hook calls = %v, want %v", got, want)
	}
	if v := testutil.ToFloat64(h.m.FlowOutcomesTotal.WithLabelValues(FlowAddLesson, string(OutcomeCompleted))); v != 1 {
		t.Errorf("completed count = %v", v)
	}
	lessons, _ := h.svc.ListLessons(context.Background(), sheetID)
	if len(lessons) != 1 || lessons[0].Topic == nil || *lessons[0].Topic != "Fractions" {
		t.Errorf("lessons = %+v", lessons)
	}
}

func TestSweep_ExpiresIdleSessions(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	h := newHarness(t, WithClock(clock))
	h.registered(t, "1001", sheetID)
	h.registered(t, "1002", "ws-42")

	mustStart(t, h.engine, "1001", FlowAddLesson)
	advance(20 * time.Minute)
	mustStart(t, h.engine, "1002", FlowAddLesson)
	advance(15 * time.Minute)

	if n := h.engine.sweep(30 * time.Minute); n != 1 {
		t.Fatalf("sweep dropped %d sessions, want 1", n)
	}
	if _, err := h.engine.Send(context.Background(), "1001", "Oleg"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expired session still reachable: %v", err)
	}
	if _, err := h.engine.Send(context.Background(), "1002", "Oleg"); err != nil {
		t.Errorf("live session lost: %v", err)
	}
	if v := testutil.ToFloat64(h.m.SessionsExpired); v != 1 {
		t.Errorf("expired counter = %v", v)
	}
	if v := testutil.ToFloat64(h.m.SessionsActive); v != 1 {
		t.Errorf("active gauge = %v", v)
	}
}

func TestReaper_StartStop(t *testing.T) {
	h := newHarness(t)
	h.engine.StartReaper(&ReaperConfig{IdleTimeout: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	defer h.engine.Stop()

	h.registered(t, "1001", sheetID)
	mustStart(t, h.engine, "1001", FlowAddLesson)

	deadline := time.Now().Add(2 * time.Second)
	for h.engine.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("reaper did not expire the session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentIdentities(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "owner", sheetID)

	// Every identity shares the owner's workspace through its own entry.
	const n = 20
	for i := 0; i < n; i++ {
		if _, err := h.reg.Register(fmt.Sprintf("id-%d", i), "Tutor", sheetID); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i)
			ctx := context.Background()
			if _, err := h.engine.Start(ctx, id, FlowAddLesson, nil); err != nil {
				t.Error(err)
				return
			}
			for _, text := range []string{fmt.Sprintf("Student %d", i), "2024-09-01", "-"} {
				if _, err := h.engine.Send(ctx, id, text); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	lessons, err := h.svc.ListLessons(context.Background(), sheetID)
	if err != nil || len(lessons) != n {
		t.Errorf("lessons = %d, %v; want %d", len(lessons), err, n)
	}
}

func TestHandle_DispatchesCommands(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "1001", sheetID)
	ctx := context.Background()

	r, err := h.engine.Handle(ctx, "1001", "/ADD_LESSON Oleg 01.09.2024 Quadratic equations")
	if err != nil || r.Outcome != OutcomeCompleted {
		t.Fatalf("pre-filled command = %+v, %v", r, err)
	}

	r, err = h.engine.Handle(ctx, "1001", "/add_payment")
	if err != nil || r.Field != "student" {
		t.Fatalf("interactive command = %+v, %v", r, err)
	}
	if r, _ = h.engine.Handle(ctx, "1001", "Oleg"); r.Field != "amount" {
		t.Errorf("plain line = %+v", r)
	}
	if r, _ = h.engine.Handle(ctx, "1001", "/cancel"); r.Outcome != OutcomeCancelled {
		t.Errorf("cancel line = %+v", r)
	}
	if _, err := h.engine.Handle(ctx, "1001", "/unknown"); !errors.Is(err, ErrNoSession) {
		t.Errorf("unknown command without session = %v", err)
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []State{StateCollecting, StateConfirming, StateTerminal} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got State
		if err := got.UnmarshalText(text); err != nil || got != s {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v", text, got, err, s)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("idle")); err == nil {
		t.Error("expected error for unknown state")
	}
}
