package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/catalog"
	"github.com/kingrea/guildgate/internal/notice"
)

type catalogTab int

const (
	tabGames catalogTab = iota
	tabRules
)

// catalogView edits the games list and the rule sections.
type catalogView struct {
	app           *App
	manager       *catalog.Manager
	tab           catalogTab
	cursor        int
	form          *form
	editingID     string
	confirmDelete bool
	spinner       spinner.Model
	loading       bool
	busy          bool
}

type catalogLoadedMsg struct {
	manager *catalog.Manager
	notices []notice.Notice
	err     error
}

type catalogActionMsg struct {
	manager *catalog.Manager
	notices []notice.Notice
	err     error
}

func newCatalogView(a *App) *catalogView {
	return &catalogView{
		app:     a,
		manager: catalog.NewManager(a.client, catalog.WithJournal(a.logbook)),
		spinner: newSpinner(),
	}
}

func (v *catalogView) Init() tea.Cmd {
	v.loading = true
	m := v.manager
	return tea.Batch(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notices, err := m.Reload(ctx)
		return catalogLoadedMsg{manager: m, notices: notices, err: err}
	}, v.spinner.Tick)
}

func (v *catalogView) capturesEsc() bool {
	return v.form != nil || v.confirmDelete
}

func (v *catalogView) handleLoaded(msg catalogLoadedMsg) {
	if msg.manager != v.manager {
		return
	}
	v.loading = false
	v.clampCursor()
}

func (v *catalogView) handleAction(msg catalogActionMsg) {
	if msg.manager != v.manager {
		return
	}
	v.busy = false
	if errors.Is(msg.err, catalog.ErrBusy) {
		v.app.pushNotices(notice.Warn("Another change is still in progress"))
		return
	}
	if msg.err != nil {
		return
	}
	v.form = nil
	v.editingID = ""
	v.confirmDelete = false
	v.clampCursor()
}

func (v *catalogView) rowCount() int {
	overview := v.manager.Overview()
	if v.tab == tabRules {
		return len(overview.Rules)
	}
	return len(overview.Games)
}

func (v *catalogView) clampCursor() {
	if n := v.rowCount(); v.cursor >= n {
		v.cursor = n - 1
	}
	if v.cursor < 0 {
		v.cursor = 0
	}
}

func (v *catalogView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !v.loading && !v.busy {
			return nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return cmd
	case tea.KeyMsg:
		if v.busy {
			return nil
		}
		switch {
		case v.confirmDelete:
			return v.handleConfirmKey(msg)
		case v.form != nil:
			return v.handleFormKey(msg)
		}
		return v.handleListKey(msg)
	}
	return nil
}

func (v *catalogView) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "left", "right", "h", "l":
		if v.tab == tabGames {
			v.tab = tabRules
		} else {
			v.tab = tabGames
		}
		v.cursor = 0
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if v.cursor < v.rowCount()-1 {
			v.cursor++
		}
	case "n":
		v.openForm(false)
	case "e", "enter":
		if v.rowCount() > 0 {
			v.openForm(true)
		}
	case "d":
		if v.rowCount() > 0 {
			v.confirmDelete = true
		}
	case "r":
		if !v.loading {
			return v.Init()
		}
	}
	return nil
}

func (v *catalogView) handleConfirmKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "enter":
		return v.deleteSelected()
	case "n", "esc":
		v.confirmDelete = false
	}
	return nil
}

func (v *catalogView) handleFormKey(msg tea.KeyMsg) tea.Cmd {
	multiline := v.form.focused() != nil && v.form.focused().multiline
	switch msg.String() {
	case "esc":
		v.form = nil
		v.editingID = ""
		return nil
	case "ctrl+s":
		return v.save()
	case "tab":
		v.form.next()
		return nil
	case "shift+tab":
		v.form.prev()
		return nil
	case "enter":
		if !multiline {
			v.form.next()
			return nil
		}
	}
	return v.form.update(msg)
}

func (v *catalogView) openForm(edit bool) {
	overview := v.manager.Overview()
	v.editingID = ""
	if v.tab == tabGames {
		var game api.Game
		if edit {
			game = overview.Games[v.cursor]
			v.editingID = game.ID
		} else {
			game.Active = true
		}
		v.form = newForm(
			prefilled(newFormField("name", "Name", "e.g. Valorant", false, true), game.Name),
			prefilled(newFormField("description", "Description", "", false, false), game.Description),
			prefilled(newFormField("category", "Category", "e.g. FPS", false, false), game.Category),
			prefilled(newFormField("platform", "Platform", "e.g. PC", false, false), game.Platform),
			prefilled(newFormField("active", "Active (yes/no)", "yes", false, false), yesNo(game.Active)),
		)
		return
	}
	var rule api.RuleSection
	if edit {
		rule = overview.Rules[v.cursor]
		v.editingID = rule.ID
	} else {
		rule.Active = true
		rule.Order = len(overview.Rules) + 1
	}
	v.form = newForm(
		prefilled(newFormField("title", "Title", "e.g. Code of Conduct", false, true), rule.Title),
		prefilled(newFormField("category", "Category", "", false, false), rule.Category),
		prefilled(newFormField("order", "Order", "1", false, false), strconv.Itoa(rule.Order)),
		prefilled(newFormField("active", "Active (yes/no)", "yes", false, false), yesNo(rule.Active)),
		prefilled(newFormField("rules", "Rules (one per line)", "", true, true), strings.Join(rule.Rules, "\n")),
	)
}

func prefilled(field formField, value string) formField {
	field.SetValue(value)
	return field
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func parseYes(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "y", "yes", "true", "1":
		return true
	}
	return false
}

func (v *catalogView) save() tea.Cmd {
	m, f := v.manager, v.form
	var run func(ctx context.Context) ([]notice.Notice, error)
	if v.tab == tabGames {
		game := api.Game{
			ID:          v.editingID,
			Name:        f.value("name"),
			Description: f.value("description"),
			Category:    f.value("category"),
			Platform:    f.value("platform"),
			Active:      parseYes(f.value("active")),
		}
		run = func(ctx context.Context) ([]notice.Notice, error) { return m.SaveGame(ctx, game) }
	} else {
		order, err := strconv.Atoi(strings.TrimSpace(f.value("order")))
		if err != nil {
			v.app.pushNotices(notice.Error("Order must be a whole number"))
			return nil
		}
		rule := api.RuleSection{
			ID:       v.editingID,
			Title:    f.value("title"),
			Category: f.value("category"),
			Order:    order,
			Active:   parseYes(f.value("active")),
			Rules:    strings.Split(f.value("rules"), "\n"),
		}
		run = func(ctx context.Context) ([]notice.Notice, error) { return m.SaveRule(ctx, rule) }
	}
	return v.mutate(run)
}

func (v *catalogView) deleteSelected() tea.Cmd {
	overview := v.manager.Overview()
	m := v.manager
	if v.tab == tabGames {
		if v.cursor >= len(overview.Games) {
			return nil
		}
		id := overview.Games[v.cursor].ID
		return v.mutate(func(ctx context.Context) ([]notice.Notice, error) { return m.DeleteGame(ctx, id) })
	}
	if v.cursor >= len(overview.Rules) {
		return nil
	}
	id := overview.Rules[v.cursor].ID
	return v.mutate(func(ctx context.Context) ([]notice.Notice, error) { return m.DeleteRule(ctx, id) })
}

func (v *catalogView) mutate(run func(ctx context.Context) ([]notice.Notice, error)) tea.Cmd {
	v.busy = true
	m := v.manager
	return tea.Batch(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notices, err := run(ctx)
		return catalogActionMsg{manager: m, notices: notices, err: err}
	}, v.spinner.Tick)
}

func (v *catalogView) View() string {
	overview := v.manager.Overview()
	games := fmt.Sprintf("Games (%d)", len(overview.Games))
	rules := fmt.Sprintf("Rules (%d)", len(overview.Rules))
	if v.tab == tabGames {
		games, rules = selectedStyle.Render("["+games+"]"), dimStyle.Render(" "+rules+" ")
	} else {
		games, rules = dimStyle.Render(" "+games+" "), selectedStyle.Render("["+rules+"]")
	}
	sections := []string{titleStyle.Render("Manage Catalog"), games + " " + rules, ""}

	switch {
	case v.form != nil:
		heading := "New "
		if v.editingID != "" {
			heading = "Edit "
		}
		if v.tab == tabGames {
			heading += "game"
		} else {
			heading += "rule section"
		}
		sections = append(sections, labelStyle.Render(heading), v.form.View())
	case v.loading && v.rowCount() == 0:
		sections = append(sections, v.spinner.View()+" Loading catalog...")
	case v.tab == tabGames:
		sections = append(sections, v.renderGames(overview.Games))
	default:
		sections = append(sections, v.renderRules(overview.Rules))
	}

	if v.confirmDelete {
		sections = append(sections, "", modalStyle.Render(v.deletePrompt(overview)+"\n"+hintStyle.Render("y confirm · n cancel")))
	}
	if v.busy {
		sections = append(sections, "", v.spinner.View()+" Saving...")
	}
	hint := "tab switch list · ↑/↓ select · n new · e edit · d delete · r reload · esc back"
	if v.form != nil {
		hint = "tab next field · ctrl+s save · esc cancel"
	}
	sections = append(sections, "", hintStyle.Render(hint))
	return strings.Join(sections, "\n")
}

func (v *catalogView) deletePrompt(overview catalog.Overview) string {
	if v.tab == tabGames && v.cursor < len(overview.Games) {
		return fmt.Sprintf("Delete the game %q?", overview.Games[v.cursor].Name)
	}
	if v.tab == tabRules && v.cursor < len(overview.Rules) {
		return fmt.Sprintf("Delete the rule section %q?", overview.Rules[v.cursor].Title)
	}
	return "Delete this entry?"
}

func (v *catalogView) renderGames(games []api.Game) string {
	if len(games) == 0 {
		return hintStyle.Render("No games yet. Press n to add one.")
	}
	lines := make([]string, 0, len(games))
	for i, game := range games {
		parts := []string{game.Name}
		if game.Category != "" {
			parts = append(parts, game.Category)
		}
		if game.Platform != "" {
			parts = append(parts, game.Platform)
		}
		if !game.Active {
			parts = append(parts, "inactive")
		}
		lines = append(lines, v.renderRow(i, strings.Join(parts, " · ")))
	}
	return strings.Join(lines, "\n")
}

func (v *catalogView) renderRules(rules []api.RuleSection) string {
	if len(rules) == 0 {
		return hintStyle.Render("No rule sections yet. Press n to add one.")
	}
	lines := make([]string, 0, len(rules))
	for i, rule := range rules {
		label := fmt.Sprintf("%d. %s (%d rules)", rule.Order, rule.Title, len(rule.Rules))
		if !rule.Active {
			label += " · inactive"
		}
		lines = append(lines, v.renderRow(i, label))
		if i == v.cursor {
			for _, line := range rule.Rules {
				lines = append(lines, dimStyle.Render("     - "+line))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (v *catalogView) renderRow(index int, label string) string {
	if index == v.cursor {
		return selectedStyle.Render("› " + label)
	}
	return "  " + label
}
