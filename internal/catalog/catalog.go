// Package catalog manages the game catalog and the community rule sections.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/notice"
)

// ErrBusy is returned while another catalog mutation is outstanding.
var ErrBusy = errors.New("catalog: another change is in progress")

// FieldError reports a missing or malformed field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("catalog: %s: %s", e.Field, e.Message)
}

// Backend is the slice of the API client the catalog uses.
type Backend interface {
	ListGames(ctx context.Context) ([]api.Game, error)
	CreateGame(ctx context.Context, game api.Game) (api.Game, error)
	UpdateGame(ctx context.Context, game api.Game) (api.Game, error)
	DeleteGame(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]api.RuleSection, error)
	CreateRule(ctx context.Context, rule api.RuleSection) (api.RuleSection, error)
	UpdateRule(ctx context.Context, rule api.RuleSection) (api.RuleSection, error)
	DeleteRule(ctx context.Context, id string) error
}

// Journal receives one line per catalog change.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Overview is both lists, fetched together.
type Overview struct {
	Games []api.Game
	Rules []api.RuleSection
}

// Fetch loads games and rules concurrently. Rules come back sorted by Order.
func Fetch(ctx context.Context, backend Backend) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		games, err := backend.ListGames(gctx)
		if err != nil {
			return fmt.Errorf("catalog: list games: %w", err)
		}
		out.Games = games
		return nil
	})
	g.Go(func() error {
		rules, err := backend.ListRules(gctx)
		if err != nil {
			return fmt.Errorf("catalog: list rules: %w", err)
		}
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Order < rules[j].Order })
		out.Rules = rules
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

// NormalizeGame trims every text field.
func NormalizeGame(game api.Game) api.Game {
	game.Name = strings.TrimSpace(game.Name)
	game.Description = strings.TrimSpace(game.Description)
	game.Category = strings.TrimSpace(game.Category)
	game.Platform = strings.TrimSpace(game.Platform)
	return game
}

// ValidateGame requires a name.
func ValidateGame(game api.Game) error {
	if strings.TrimSpace(game.Name) == "" {
		return &FieldError{Field: "name", Message: "is required"}
	}
	return nil
}

// NormalizeRule trims the title and drops blank rule lines.
func NormalizeRule(rule api.RuleSection) api.RuleSection {
	rule.Title = strings.TrimSpace(rule.Title)
	rule.Category = strings.TrimSpace(rule.Category)
	lines := make([]string, 0, len(rule.Rules))
	for _, line := range rule.Rules {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	rule.Rules = lines
	return rule
}

// ValidateRule requires a title and at least one non-empty line.
func ValidateRule(rule api.RuleSection) error {
	rule = NormalizeRule(rule)
	if rule.Title == "" {
		return &FieldError{Field: "title", Message: "is required"}
	}
	if len(rule.Rules) == 0 {
		return &FieldError{Field: "rules", Message: "needs at least one rule"}
	}
	return nil
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithJournal records catalog changes.
func WithJournal(j Journal) Option {
	return func(m *Manager) {
		if j != nil {
			m.journal = j
		}
	}
}

// Manager holds the last overview and serializes mutations.
type Manager struct {
	backend Backend
	journal Journal

	mu       sync.Mutex
	overview Overview

	processing atomic.Bool
}

// NewManager builds a catalog manager.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{backend: backend, journal: nopJournal{}}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Overview returns the last fetched lists.
func (m *Manager) Overview() Overview {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Overview{
		Games: append([]api.Game(nil), m.overview.Games...),
		Rules: append([]api.RuleSection(nil), m.overview.Rules...),
	}
}

// Processing reports whether a mutation is outstanding.
func (m *Manager) Processing() bool {
	return m.processing.Load()
}

// Reload fetches both lists. On failure the previous overview stays.
func (m *Manager) Reload(ctx context.Context) ([]notice.Notice, error) {
	overview, err := Fetch(ctx, m.backend)
	if err != nil {
		return []notice.Notice{notice.Error(api.Message(err, "Failed to load catalog"))}, err
	}
	m.mu.Lock()
	m.overview = overview
	m.mu.Unlock()
	return nil, nil
}

// SaveGame creates the game when it has no id and updates it otherwise.
func (m *Manager) SaveGame(ctx context.Context, game api.Game) ([]notice.Notice, error) {
	game = NormalizeGame(game)
	if err := ValidateGame(game); err != nil {
		return []notice.Notice{notice.Error("Game name is required")}, err
	}
	verb := "created"
	return m.mutate(ctx, "Failed to save game", func() error {
		var err error
		if game.ID == "" {
			_, err = m.backend.CreateGame(ctx, game)
		} else {
			verb = "updated"
			_, err = m.backend.UpdateGame(ctx, game)
		}
		return err
	}, func() string {
		m.journal.Info("game %s: %s", verb, game.Name)
		return "Game " + verb
	})
}

// DeleteGame removes a game.
func (m *Manager) DeleteGame(ctx context.Context, id string) ([]notice.Notice, error) {
	return m.mutate(ctx, "Failed to delete game", func() error {
		return m.backend.DeleteGame(ctx, id)
	}, func() string {
		m.journal.Info("game deleted: %s", id)
		return "Game deleted"
	})
}

// SaveRule creates the section when it has no id and updates it otherwise.
func (m *Manager) SaveRule(ctx context.Context, rule api.RuleSection) ([]notice.Notice, error) {
	rule = NormalizeRule(rule)
	if err := ValidateRule(rule); err != nil {
		var fErr *FieldError
		errors.As(err, &fErr)
		text := "Rule section title is required"
		if fErr.Field == "rules" {
			text = "Add at least one rule"
		}
		return []notice.Notice{notice.Error(text)}, err
	}
	verb := "created"
	return m.mutate(ctx, "Failed to save rule section", func() error {
		var err error
		if rule.ID == "" {
			_, err = m.backend.CreateRule(ctx, rule)
		} else {
			verb = "updated"
			_, err = m.backend.UpdateRule(ctx, rule)
		}
		return err
	}, func() string {
		m.journal.Info("rule section %s: %s", verb, rule.Title)
		return "Rule section " + verb
	})
}

// DeleteRule removes a rule section.
func (m *Manager) DeleteRule(ctx context.Context, id string) ([]notice.Notice, error) {
	return m.mutate(ctx, "Failed to delete rule section", func() error {
		return m.backend.DeleteRule(ctx, id)
	}, func() string {
		m.journal.Info("rule section deleted: %s", id)
		return "Rule section deleted"
	})
}

func (m *Manager) mutate(ctx context.Context, fallback string, send func() error, done func() string) ([]notice.Notice, error) {
	if !m.processing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer m.processing.Store(false)
	if err := send(); err != nil {
		msg := api.Message(err, fallback)
		m.journal.Warn("%s: %s", fallback, msg)
		return []notice.Notice{notice.Error(msg)}, err
	}
	notices := []notice.Notice{notice.Success(done())}
	refresh, err := m.Reload(ctx)
	if err != nil {
		notices = append(notices, refresh...)
	}
	return notices, nil
}

type nopJournal struct{}

func (nopJournal) Info(string, ...any) {}
func (nopJournal) Warn(string, ...any) {}
