// Package review implements the manager-side review of submitted
// applications: facet listing and confirmed accept, reject, delete and
// early-reapply mutations, one at a time.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/notice"
)

var (
	// ErrBusy is returned while another mutation is outstanding.
	ErrBusy = errors.New("review: another action is in progress")
	// ErrNotOffered is returned for an action the record does not allow.
	ErrNotOffered = errors.New("review: action not offered for this application")
	// ErrStale is returned by Load when a facet switch superseded the fetch.
	ErrStale = errors.New("review: list superseded by a newer fetch")
)

// ValidationError reports a justification that is too short.
type ValidationError struct {
	Action Action
	Min    int
	Got    int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("review: %s needs at least %d characters, got %d", e.Action, e.Min, e.Got)
}

// Message is the notice text shown for the validation failure.
func (e *ValidationError) Message() string {
	if e.Action == ActionReject {
		return fmt.Sprintf("Please provide a reason of at least %d characters", e.Min)
	}
	return fmt.Sprintf("Please provide notes of at least %d characters", e.Min)
}

// Backend is the slice of the API client the workflow calls.
type Backend interface {
	ListApplications(ctx context.Context, facet api.Facet) ([]api.Application, error)
	AcceptApplication(ctx context.Context, id, notes string) error
	RejectApplication(ctx context.Context, id, reason string) error
	DeleteApplication(ctx context.Context, id string) error
	GrantReapply(ctx context.Context, userID string) error
}

// Roles tells the workflow whether the viewer holds the CEO role.
type Roles interface {
	IsCEO() bool
}

// Journal receives one line per completed mutation.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Option customizes workflow construction.
type Option func(*Workflow)

// WithJournal records mutations.
func WithJournal(j Journal) Option {
	return func(w *Workflow) {
		if j != nil {
			w.journal = j
		}
	}
}

// Pending is a confirmed-but-not-yet-sent mutation.
type Pending struct {
	Action             Action
	App                api.Application
	Prompt             string
	NeedsJustification bool
}

// Workflow holds the manager's current list.
type Workflow struct {
	backend Backend
	roles   Roles
	journal Journal

	mu         sync.Mutex
	facet      api.Facet
	rows       []api.Application
	loaded     bool
	generation uint64

	processing atomic.Bool
}

// New builds a workflow starting on facet.
func New(backend Backend, roles Roles, facet api.Facet, opts ...Option) *Workflow {
	if _, err := api.ParseFacet(string(facet)); err != nil {
		facet = api.FacetPending
	}
	w := &Workflow{
		backend: backend,
		roles:   roles,
		journal: nopJournal{},
		facet:   facet,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Facet returns the selected status filter.
func (w *Workflow) Facet() api.Facet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.facet
}

// Rows returns the applications of the current facet.
func (w *Workflow) Rows() []api.Application {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]api.Application(nil), w.rows...)
}

// Loaded reports whether the current facet has been fetched.
func (w *Workflow) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Find returns the row with id.
func (w *Workflow) Find(id string) (api.Application, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range w.rows {
		if row.ID == id {
			return row, true
		}
	}
	return api.Application{}, false
}

// Processing reports whether a mutation is outstanding.
func (w *Workflow) Processing() bool {
	return w.processing.Load()
}

// Load fetches the current facet. A response that arrives after the facet
// changed is discarded with ErrStale. On failure the previous rows stay.
func (w *Workflow) Load(ctx context.Context) ([]notice.Notice, error) {
	w.mu.Lock()
	facet, gen := w.facet, w.generation
	w.mu.Unlock()

	rows, err := w.backend.ListApplications(ctx, facet)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return nil, ErrStale
	}
	if err != nil {
		return []notice.Notice{notice.Error(api.Message(err, "Failed to load applications"))}, err
	}
	w.rows = rows
	w.loaded = true
	return nil, nil
}

// Select switches the filter without fetching. Rows from the previous facet
// are dropped at once and any fetch still running for them goes stale.
func (w *Workflow) Select(facet api.Facet) error {
	if _, err := api.ParseFacet(string(facet)); err != nil {
		return err
	}
	w.mu.Lock()
	w.facet = facet
	w.rows = nil
	w.loaded = false
	w.generation++
	w.mu.Unlock()
	return nil
}

// SetFacet selects facet and fetches it.
func (w *Workflow) SetFacet(ctx context.Context, facet api.Facet) ([]notice.Notice, error) {
	if err := w.Select(facet); err != nil {
		return nil, err
	}
	return w.Load(ctx)
}

// Actions lists what the viewer may do with app.
func (w *Workflow) Actions(app api.Application) []Action {
	return Offered(app, w.roles != nil && w.roles.IsCEO())
}

// Prepare builds the confirmation step for action on app.
func (w *Workflow) Prepare(action Action, app api.Application) (Pending, error) {
	offered := false
	for _, a := range w.Actions(app) {
		if a == action {
			offered = true
			break
		}
	}
	if !offered {
		return Pending{}, ErrNotOffered
	}
	return Pending{
		Action:             action,
		App:                app,
		Prompt:             action.prompt(app),
		NeedsJustification: action.NeedsJustification(),
	}, nil
}

// Validate checks a justification without sending anything.
func Validate(action Action, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if !action.NeedsJustification() {
		return trimmed, nil
	}
	if n := utf8.RuneCountInString(trimmed); n < MinJustification {
		return "", &ValidationError{Action: action, Min: MinJustification, Got: n}
	}
	return trimmed, nil
}

// Confirm sends the prepared mutation, then refreshes the list. Only one
// Confirm runs at a time; a second returns ErrBusy without a request.
func (w *Workflow) Confirm(ctx context.Context, p Pending, text string) ([]notice.Notice, error) {
	justification, err := Validate(p.Action, text)
	if err != nil {
		var vErr *ValidationError
		errors.As(err, &vErr)
		return []notice.Notice{notice.Error(vErr.Message())}, err
	}
	if !w.processing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer w.processing.Store(false)

	if err := w.send(ctx, p, justification); err != nil {
		msg := api.Message(err, p.Action.fallback())
		w.journal.Warn("%s %s failed: %s", p.Action, p.App.ID, msg)
		return []notice.Notice{notice.Error(msg)}, err
	}
	w.journal.Info("%s %s (%s)", p.Action, p.App.ID, p.App.ApplicantName())

	notices := []notice.Notice{notice.Success(p.Action.success(p.App))}
	refresh, err := w.Load(ctx)
	if err != nil && !errors.Is(err, ErrStale) {
		notices = append(notices, refresh...)
	}
	return notices, nil
}

func (w *Workflow) send(ctx context.Context, p Pending, justification string) error {
	switch p.Action {
	case ActionAccept:
		return w.backend.AcceptApplication(ctx, p.App.ID, justification)
	case ActionReject:
		return w.backend.RejectApplication(ctx, p.App.ID, justification)
	case ActionDelete:
		return w.backend.DeleteApplication(ctx, p.App.ID)
	case ActionGrant:
		return w.backend.GrantReapply(ctx, p.App.UserID)
	default:
		return fmt.Errorf("review: unknown action %q", p.Action)
	}
}

type nopJournal struct{}

func (nopJournal) Info(string, ...any) {}
func (nopJournal) Warn(string, ...any) {}
