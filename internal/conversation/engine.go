// Package conversation implements multi-step form filling for chat-style
// callers.
//
// A Flow declares an ordered list of fields, each with a validator, and a
// submit step that performs the write. An Engine owns the sessions, one per
// (identity, flow) pair. Input can arrive one field at a time through Send,
// or all at once as pre-filled args to Start.
//
// A session moves Collecting(field 0..n-1) -> Confirming (destructive flows
// only) -> Terminal. "/cancel" is accepted in every non-terminal state and
// ends the session without writing. Terminal sessions are discarded.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/tutorsheets/internal/idgen"
	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
	"github.com/alfredjeanlab/tutorsheets/internal/model"
)

// Commands recognized in every non-terminal state. Matching is a
// case-insensitive prefix match.
const (
	CommandCancel  = "/cancel"
	CommandConfirm = "/confirm"
)

var (
	ErrUnknownFlow = errors.New("unknown flow")
	ErrNoSession   = errors.New("no active session")
)

// State is the position of a session in its flow.
type State int

const (
	StateCollecting State = iota
	StateConfirming
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateConfirming:
		return "confirming"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateCollecting, StateConfirming, StateTerminal} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Outcome is how a terminal session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeRejected: a precheck, pre-filled value or submit refused the input.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed: the write failed for a reason the user cannot fix.
	OutcomeFailed Outcome = "failed"
	OutcomeExpired Outcome = "expired"
)

// Values holds normalized field values by field name.
type Values map[string]string

// Validator normalizes input for a field. It may perform I/O. The error
// message is shown to the user before the field is asked again.
type Validator func(ctx context.Context, input string, values Values) (string, error)

// Field is one question of a flow.
type Field struct {
	Name     string
	Prompt   string
	Validate Validator
}

// Flow describes a multi-step form.
type Flow struct {
	Name string
	// Usage is shown when pre-filled args do not fit the flow.
	Usage  string
	Fields []Field

	// Precheck runs before a session starts. A *UserError rejects the
	// session with its message.
	Precheck func(ctx context.Context, identity string) error

	// Confirm renders the confirmation question. Flows without it write as
	// soon as the last field is collected.
	Confirm func(values Values) string

	// SplitArgs maps pre-filled args onto field values. ok is false when
	// the args do not fit.
	SplitArgs func(args []string) (values Values, ok bool)

	// Submit performs the write and returns the final message. A *UserError
	// ends the session as rejected; any other error as failed.
	Submit func(ctx context.Context, identity string, values Values) (string, error)
}

// UserError is an error whose message is meant for the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// Reject returns a *UserError with msg.
func Reject(msg string) error {
	return &UserError{Message: msg}
}

// Reply is the engine's answer to one input.
type Reply struct {
	SessionID string  `json:"session_id,omitempty"`
	Flow      string  `json:"flow"`
	State     State   `json:"state"`
	Field     string  `json:"field,omitempty"`
	Text      string  `json:"text"`
	Outcome   Outcome `json:"outcome,omitempty"`
}

// Done reports whether the reply ended its session.
func (r Reply) Done() bool {
	return r.State == StateTerminal
}

type sessionKey struct {
	identity string
	flow     string
}

type session struct {
	mu     sync.Mutex
	id     string
	key    sessionKey
	flow   *Flow
	values Values
	step   int
	state  State
	closed atomic.Bool

	// Guarded by Engine.mu.
	lastUsed time.Time
	order    uint64
}

// FinishFunc is called once for every session that reaches a terminal state.
type FinishFunc func(ctx context.Context, identity, flow string, outcome Outcome)

// Engine runs flows. The zero value is not usable; call New.
type Engine struct {
	mu       sync.Mutex
	flows    map[string]*Flow
	sessions map[sessionKey]*session
	touches  uint64

	logger   *slog.Logger
	metrics  *metrics.Metrics
	onFinish FinishFunc
	now      func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records session counts and outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFinishHook sets a callback run after a session ends.
func WithFinishHook(fn FinishFunc) Option {
	return func(e *Engine) { e.onFinish = fn }
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an Engine serving flows.
func New(flows []*Flow, opts ...Option) *Engine {
	e := &Engine{
		flows:    make(map[string]*Flow, len(flows)),
		sessions: make(map[sessionKey]*session),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, f := range flows {
		e.flows[f.Name] = f
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Flows returns the names of the registered flows.
func (e *Engine) Flows() []string {
	names := make([]string, 0, len(e.flows))
	for name := range e.flows {
		names = append(names, name)
	}
	return names
}

// HasFlow reports whether name is a registered flow.
func (e *Engine) HasFlow(name string) bool {
	_, ok := e.flows[name]
	return ok
}

// Active returns the flow of the identity's most recently used session.
func (e *Engine) Active(identity string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.latestLocked(identity); s != nil {
		return s.key.flow, true
	}
	return "", false
}

// Start begins flow for identity. With args the flow runs pre-filled: every
// value goes through its validator and the write happens without further
// prompts. Without args a session is opened and the first prompt returned.
// Starting a flow that already has a session replaces it.
func (e *Engine) Start(ctx context.Context, identity, flowName string, args []string) (Reply, error) {
	flow, ok := e.flows[flowName]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}
	key := sessionKey{identity: identity, flow: flowName}
	e.supersede(key)

	if flow.Precheck != nil {
		if err := flow.Precheck(ctx, identity); err != nil {
			reply := e.terminal(flow, "", err, OutcomeRejected)
			e.finished(ctx, key, "", reply.Outcome)
			return reply, nil
		}
	}

	if len(args) > 0 {
		reply := e.runPrefilled(ctx, identity, flow, args)
		e.finished(ctx, key, "", reply.Outcome)
		return reply, nil
	}

	id, err := idgen.Session()
	if err != nil {
		return Reply{}, err
	}
	s := &session{id: id, key: key, flow: flow, values: Values{}}

	e.mu.Lock()
	e.touchLocked(s)
	e.sessions[key] = s
	e.setActiveLocked()
	e.mu.Unlock()

	e.logger.Debug("conversation started", "flow", flowName, "identity", identity, "session", id)

	s.mu.Lock()
	defer s.mu.Unlock()
	return e.advance(ctx, s), nil
}

// Send routes text to the identity's most recently used session.
func (e *Engine) Send(ctx context.Context, identity, text string) (Reply, error) {
	e.mu.Lock()
	s := e.latestLocked(identity)
	if s != nil {
		e.touchLocked(s)
	}
	e.mu.Unlock()
	if s == nil {
		return Reply{}, fmt.Errorf("%w for %s", ErrNoSession, identity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return Reply{}, fmt.Errorf("%w for %s", ErrNoSession, identity)
	}

	if isCommand(text, CommandCancel) {
		return e.finish(ctx, s, e.terminal(s.flow, s.id, nil, OutcomeCancelled)), nil
	}

	switch s.state {
	case StateCollecting:
		field := s.flow.Fields[s.step]
		v, err := validate(ctx, field, text, s.values)
		if err != nil {
			return Reply{
				SessionID: s.id,
				Flow:      s.flow.Name,
				State:     StateCollecting,
				Field:     field.Name,
				Text:      messageOf(err) + "\n" + field.Prompt,
			}, nil
		}
		s.values[field.Name] = v
		s.step++
		return e.advance(ctx, s), nil

	case StateConfirming:
		if isCommand(text, CommandConfirm) {
			return e.submit(ctx, s), nil
		}
		return e.confirmPrompt(s), nil
	}
	return Reply{}, fmt.Errorf("%w for %s", ErrNoSession, identity)
}

// Cancel ends the identity's most recently used session.
func (e *Engine) Cancel(ctx context.Context, identity string) (Reply, error) {
	return e.Send(ctx, identity, CommandCancel)
}

// Handle dispatches one line of chat input. "/<flow> [args...]" starts the
// named flow; anything else, including "/cancel" and "/confirm", goes to the
// most recently used session.
func (e *Engine) Handle(ctx context.Context, identity, line string) (Reply, error) {
	fields := strings.Fields(line)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
		if e.HasFlow(name) {
			return e.Start(ctx, identity, name, fields[1:])
		}
	}
	return e.Send(ctx, identity, line)
}

// Len returns the number of open sessions.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// advance prompts for the next field, asks for confirmation, or submits.
// The caller holds s.mu.
func (e *Engine) advance(ctx context.Context, s *session) Reply {
	if s.step < len(s.flow.Fields) {
		s.state = StateCollecting
		field := s.flow.Fields[s.step]
		return Reply{SessionID: s.id, Flow: s.flow.Name, State: StateCollecting, Field: field.Name, Text: field.Prompt}
	}
	if s.flow.Confirm != nil {
		s.state = StateConfirming
		return e.confirmPrompt(s)
	}
	return e.submit(ctx, s)
}

func (e *Engine) confirmPrompt(s *session) Reply {
	text := s.flow.Confirm(s.values) + "\nSend " + CommandConfirm + " to proceed or " + CommandCancel + " to abort."
	return Reply{SessionID: s.id, Flow: s.flow.Name, State: StateConfirming, Text: text}
}

// submit runs the write and ends the session. The caller holds s.mu.
func (e *Engine) submit(ctx context.Context, s *session) Reply {
	msg, err := s.flow.Submit(ctx, s.key.identity, s.values)
	return e.finish(ctx, s, e.result(s.flow, s.id, msg, err))
}

func (e *Engine) runPrefilled(ctx context.Context, identity string, flow *Flow, args []string) Reply {
	if flow.SplitArgs == nil {
		return e.terminal(flow, "", Reject(flow.Usage), OutcomeRejected)
	}
	raw, ok := flow.SplitArgs(args)
	if !ok {
		return e.terminal(flow, "", Reject(flow.Usage), OutcomeRejected)
	}
	values := Values{}
	for _, field := range flow.Fields {
		v, err := validate(ctx, field, raw[field.Name], values)
		if err != nil {
			return e.terminal(flow, "", err, OutcomeRejected)
		}
		values[field.Name] = v
	}
	msg, err := flow.Submit(ctx, identity, values)
	return e.result(flow, "", msg, err)
}

// result maps a submit result onto a terminal reply.
func (e *Engine) result(flow *Flow, id, msg string, err error) Reply {
	if err == nil {
		return Reply{SessionID: id, Flow: flow.Name, State: StateTerminal, Text: msg, Outcome: OutcomeCompleted}
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return e.terminal(flow, id, err, OutcomeRejected)
	}
	e.logger.Error("flow submit failed", "flow", flow.Name, "session", id, "err", err)
	return Reply{SessionID: id, Flow: flow.Name, State: StateTerminal, Text: "Something went wrong: " + err.Error(), Outcome: OutcomeFailed}
}

func (e *Engine) terminal(flow *Flow, id string, err error, outcome Outcome) Reply {
	text := "Cancelled."
	if err != nil {
		text = messageOf(err)
	}
	return Reply{SessionID: id, Flow: flow.Name, State: StateTerminal, Text: text, Outcome: outcome}
}

// finish closes s and records the outcome. The caller holds s.mu.
func (e *Engine) finish(ctx context.Context, s *session, reply Reply) Reply {
	s.state = StateTerminal
	s.closed.Store(true)
	s.values = nil

	e.mu.Lock()
	if e.sessions[s.key] == s {
		delete(e.sessions, s.key)
	}
	e.setActiveLocked()
	e.mu.Unlock()

	e.finished(ctx, s.key, s.id, reply.Outcome)
	return reply
}

func (e *Engine) finished(ctx context.Context, key sessionKey, id string, outcome Outcome) {
	e.logger.Info("conversation finished",
		"flow", key.flow, "identity", key.identity, "session", id, "outcome", outcome)
	if e.metrics != nil {
		e.metrics.FlowOutcomesTotal.WithLabelValues(key.flow, string(outcome)).Inc()
	}
	if e.onFinish != nil {
		e.onFinish(ctx, key.identity, key.flow, outcome)
	}
}

// supersede drops the open session for key, if any.
func (e *Engine) supersede(key sessionKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.sessions[key]; ok {
		old.closed.Store(true)
		delete(e.sessions, key)
		e.setActiveLocked()
		e.logger.Debug("conversation superseded", "flow", key.flow, "identity", key.identity, "session", old.id)
	}
}

// latestLocked returns the identity's most recently used session. The
// caller holds e.mu.
func (e *Engine) latestLocked(identity string) *session {
	var latest *session
	for key, s := range e.sessions {
		if key.identity != identity {
			continue
		}
		if latest == nil || s.order > latest.order {
			latest = s
		}
	}
	return latest
}

func (e *Engine) touchLocked(s *session) {
	e.touches++
	s.order = e.touches
	s.lastUsed = e.now()
}

func (e *Engine) setActiveLocked() {
	if e.metrics != nil {
		e.metrics.SessionsActive.Set(float64(len(e.sessions)))
	}
}

func validate(ctx context.Context, field Field, input string, values Values) (string, error) {
	if field.Validate == nil {
		return strings.TrimSpace(input), nil
	}
	return field.Validate(ctx, input, values)
}

// messageOf returns the user-facing part of err.
func messageOf(err error) string {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// isCommand reports whether the first word of text is cmd, ignoring case.
func isCommand(text, cmd string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && strings.EqualFold(fields[0], cmd)
}
