// Package wizard implements the applicant-side application form: eligibility
// gate, step navigation with required-field gating, and a single submission.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/notice"
)

// State is the wizard's position in its lifecycle.
type State int

const (
	StateLoginRequired State = iota
	StateCheckingEligibility
	StateEligibilityError
	StateBlocked
	StateStep
	StateSubmitting
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateLoginRequired:
		return "login-required"
	case StateCheckingEligibility:
		return "checking-eligibility"
	case StateEligibilityError:
		return "eligibility-error"
	case StateBlocked:
		return "blocked"
	case StateStep:
		return "step"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Notice texts.
const (
	MsgRequiredMissing   = "Please fill in all required fields"
	MsgSubmitted         = "Application submitted successfully!"
	MsgSubmitFailed      = "Failed to submit application. Please try again."
	MsgNotEligible       = "You are not eligible to apply at this time."
	MsgEligibilityFailed = "Failed to check eligibility. Please try again."
	MsgDMNotSent         = "We couldn't send you a Discord DM. Make sure your DMs are open so you receive updates."
)

var (
	// ErrRequiredMissing is returned by Next when a required field is blank.
	ErrRequiredMissing = errors.New("wizard: required fields missing")
	// ErrSubmitting is returned while a submission is outstanding.
	ErrSubmitting = errors.New("wizard: submission in progress")
	// ErrEligibilityChecked is returned when eligibility was already resolved.
	ErrEligibilityChecked = errors.New("wizard: eligibility already checked")
)

// StateError reports an operation attempted from the wrong state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("wizard: %s not allowed in state %s", e.Op, e.State)
}

// Applications is the slice of the API client the wizard calls.
type Applications interface {
	CheckEligibility(ctx context.Context) (api.Eligibility, error)
	SubmitApplication(ctx context.Context, fields map[string]string) (api.SubmitResult, error)
}

// Authenticator reports whether someone is signed in.
type Authenticator interface {
	Authenticated() bool
}

// Journal receives one line per submission outcome.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Option customizes wizard construction.
type Option func(*Wizard)

// WithJournal records submissions.
func WithJournal(j Journal) Option {
	return func(w *Wizard) {
		if j != nil {
			w.journal = j
		}
	}
}

// Wizard is one mount of the application form.
type Wizard struct {
	schema  Schema
	backend Applications
	journal Journal

	mu          sync.Mutex
	state       State
	step        int
	draft       *Draft
	eligibility *api.Eligibility
	result      *api.SubmitResult
	inflight    atomic.Bool
}

// New mounts a wizard. Without an authenticated session it stays in
// StateLoginRequired; a fresh mount is needed once login completes.
func New(schema Schema, backend Applications, auth Authenticator, opts ...Option) *Wizard {
	if len(schema.Steps) == 0 {
		schema = DefaultSchema()
	}
	w := &Wizard{
		schema:  schema,
		backend: backend,
		journal: nopJournal{},
		state:   StateLoginRequired,
		draft:   NewDraft(),
	}
	if auth != nil && auth.Authenticated() {
		w.state = StateCheckingEligibility
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Schema returns the step schema in use.
func (w *Wizard) Schema() Schema {
	return w.schema
}

// State returns the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Step returns the current step index.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// CurrentStep returns the schema step being edited.
func (w *Wizard) CurrentStep() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step < 0 || w.step >= len(w.schema.Steps) {
		return Step{}
	}
	return w.schema.Steps[w.step]
}

// Fields returns a copy of the draft answers.
func (w *Wizard) Fields() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Fields()
}

// Value returns one draft answer.
func (w *Wizard) Value(name string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Get(name)
}

// Eligibility returns the verdict once fetched.
func (w *Wizard) Eligibility() (api.Eligibility, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.eligibility == nil {
		return api.Eligibility{}, false
	}
	return *w.eligibility, true
}

// Blocked returns the blocked-screen copy when the wizard is blocked.
func (w *Wizard) Blocked() (Blocked, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateBlocked || w.eligibility == nil {
		return Blocked{}, false
	}
	return BlockedCopy(*w.eligibility), true
}

// Result returns the submission response after success.
func (w *Wizard) Result() (api.SubmitResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.result == nil {
		return api.SubmitResult{}, false
	}
	return *w.result, true
}

// CheckEligibility performs the single eligibility call for this mount.
// A failed call moves to StateEligibilityError, from which it may be retried.
func (w *Wizard) CheckEligibility(ctx context.Context) ([]notice.Notice, error) {
	w.mu.Lock()
	switch w.state {
	case StateCheckingEligibility, StateEligibilityError:
	case StateLoginRequired:
		w.mu.Unlock()
		return nil, &StateError{Op: "check eligibility", State: StateLoginRequired}
	default:
		w.mu.Unlock()
		return nil, ErrEligibilityChecked
	}
	if !w.inflight.CompareAndSwap(false, true) {
		w.mu.Unlock()
		return nil, ErrEligibilityChecked
	}
	w.state = StateCheckingEligibility
	w.mu.Unlock()
	defer w.inflight.Store(false)

	result, err := w.backend.CheckEligibility(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = StateEligibilityError
		return []notice.Notice{notice.Error(api.Message(err, MsgEligibilityFailed))}, err
	}
	w.eligibility = &result
	if !result.Eligible {
		w.state = StateBlocked
		return nil, nil
	}
	w.state = StateStep
	w.step = 0
	return nil, nil
}

// Set records an answer for a field of the current step.
func (w *Wizard) Set(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateStep {
		return &StateError{Op: "edit", State: w.state}
	}
	if !w.hasField(name) {
		return fmt.Errorf("wizard: unknown field %q", name)
	}
	w.draft.Set(name, value)
	return nil
}

// Next advances one step, or moves to StateSubmitting from the last step.
// A blank required field leaves the step unchanged.
func (w *Wizard) Next() ([]notice.Notice, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateSubmitting {
		return nil, ErrSubmitting
	}
	if w.state != StateStep {
		return nil, &StateError{Op: "next", State: w.state}
	}
	if missing := w.draft.Missing(w.schema.Steps[w.step]); len(missing) > 0 {
		return []notice.Notice{notice.Error(MsgRequiredMissing)},
			fmt.Errorf("%w: %s", ErrRequiredMissing, strings.Join(missing, ", "))
	}
	if w.step == len(w.schema.Steps)-1 {
		w.state = StateSubmitting
		return nil, nil
	}
	w.step++
	return nil, nil
}

// Back moves to the previous step. It is a no-op on the first step.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateStep {
		return &StateError{Op: "back", State: w.state}
	}
	if w.step > 0 {
		w.step--
	}
	return nil
}

// Submit sends the whole draft once. On failure the wizard returns to the
// last step with the draft intact.
func (w *Wizard) Submit(ctx context.Context) ([]notice.Notice, error) {
	if !w.inflight.CompareAndSwap(false, true) {
		return nil, ErrSubmitting
	}
	defer w.inflight.Store(false)

	w.mu.Lock()
	if w.state != StateSubmitting {
		state := w.state
		w.mu.Unlock()
		return nil, &StateError{Op: "submit", State: state}
	}
	fields := w.draft.Fields()
	w.mu.Unlock()

	result, err := w.backend.SubmitApplication(ctx, fields)
	if err == nil && !result.Success {
		err = errors.New("wizard: backend reported success=false")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = StateStep
		w.step = len(w.schema.Steps) - 1
		msg := failureMessage(err)
		w.journal.Warn("application submit failed: %s", msg)
		return []notice.Notice{notice.Error(msg)}, err
	}
	w.result = &result
	w.state = StateSuccess
	notices := successNotices(result)
	w.journal.Info("application submitted (%s)", strings.Join(notice.Texts(notices[1:]), "; "))
	return notices, nil
}

func (w *Wizard) hasField(name string) bool {
	for _, field := range w.schema.Steps[w.step].Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

func successNotices(result api.SubmitResult) []notice.Notice {
	notices := []notice.Notice{notice.Success(MsgSubmitted)}
	if result.Score != nil {
		notices = append(notices, notice.Info(fmt.Sprintf("Application score: %.1f", *result.Score)))
	}
	if name := result.AssignedManager.DisplayName(); name != "" {
		notices = append(notices, notice.Info("Assigned to manager: "+name))
	}
	if !result.DMSent {
		notices = append(notices, notice.Warn(MsgDMNotSent))
	}
	return notices
}

func failureMessage(err error) string {
	switch d := api.DetailOf(err).(type) {
	case api.StructuredDetail:
		if msg := strings.TrimSpace(d.Message); msg != "" {
			return msg
		}
		return MsgNotEligible
	case api.StringDetail:
		return string(d)
	}
	return MsgSubmitFailed
}

type nopJournal struct{}

func (nopJournal) Info(string, ...any) {}
func (nopJournal) Warn(string, ...any) {}
