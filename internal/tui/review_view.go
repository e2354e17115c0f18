package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/notice"
	"github.com/kingrea/guildgate/internal/review"
)

// reviewView lists applications for one facet and drives the confirm modal.
type reviewView struct {
	app           *App
	workflow      *review.Workflow
	cursor        int
	pending       *review.Pending
	justification textarea.Model
	spinner       spinner.Model
	loading       bool
	busy          bool
}

type reviewLoadedMsg struct {
	workflow *review.Workflow
	notices  []notice.Notice
	err      error
}

type reviewActionMsg struct {
	workflow *review.Workflow
	notices  []notice.Notice
	err      error
}

var actionKeys = map[string]review.Action{
	"a": review.ActionAccept,
	"x": review.ActionReject,
	"d": review.ActionDelete,
	"g": review.ActionGrant,
}

func actionKey(action review.Action) string {
	for key, a := range actionKeys {
		if a == action {
			return key
		}
	}
	return "?"
}

func newReviewView(a *App) *reviewView {
	facet, err := api.ParseFacet(a.config.DefaultFacet())
	if err != nil {
		facet = api.FacetPending
	}
	return &reviewView{
		app:      a,
		workflow: review.New(a.client, a.session, facet, review.WithJournal(a.logbook)),
		spinner:  newSpinner(),
	}
}

func (v *reviewView) Init() tea.Cmd {
	return v.load()
}

func (v *reviewView) load() tea.Cmd {
	v.loading = true
	w := v.workflow
	return tea.Batch(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notices, err := w.Load(ctx)
		return reviewLoadedMsg{workflow: w, notices: notices, err: err}
	}, v.spinner.Tick)
}

func (v *reviewView) selectFacet(facet api.Facet) tea.Cmd {
	if err := v.workflow.Select(facet); err != nil {
		return nil
	}
	v.cursor = 0
	if err := v.app.config.SetDefaultFacet(string(facet)); err != nil {
		v.app.logWarn("Could not remember review facet: %v", err)
	}
	return v.load()
}

func (v *reviewView) handleLoaded(msg reviewLoadedMsg) {
	if msg.workflow != v.workflow || errors.Is(msg.err, review.ErrStale) {
		return
	}
	v.loading = false
	v.clampCursor()
}

func (v *reviewView) handleAction(msg reviewActionMsg) {
	if msg.workflow != v.workflow {
		return
	}
	v.busy = false
	if errors.Is(msg.err, review.ErrBusy) {
		v.app.pushNotices(notice.Warn("Another action is still in progress"))
		return
	}
	if msg.err != nil {
		return
	}
	v.pending = nil
	v.clampCursor()
}

func (v *reviewView) clampCursor() {
	rows := len(v.workflow.Rows())
	if v.cursor >= rows {
		v.cursor = rows - 1
	}
	if v.cursor < 0 {
		v.cursor = 0
	}
}

func (v *reviewView) selected() (api.Application, bool) {
	rows := v.workflow.Rows()
	if v.cursor < 0 || v.cursor >= len(rows) {
		return api.Application{}, false
	}
	return rows[v.cursor], true
}

func (v *reviewView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !v.loading && !v.busy {
			return nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return cmd
	case tea.KeyMsg:
		if v.pending != nil {
			return v.handleModalKey(msg)
		}
		return v.handleListKey(msg)
	}
	return nil
}

func (v *reviewView) handleListKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	switch key {
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if v.cursor < len(v.workflow.Rows())-1 {
			v.cursor++
		}
	case "1", "2", "3", "4":
		return v.selectFacet(api.Facets[int(key[0]-'1')])
	case "f", "tab":
		return v.selectFacet(nextFacet(v.workflow.Facet()))
	case "r":
		if !v.loading {
			return v.load()
		}
	default:
		if action, ok := actionKeys[key]; ok {
			v.prepare(action)
		}
	}
	return nil
}

func nextFacet(current api.Facet) api.Facet {
	for i, facet := range api.Facets {
		if facet == current {
			return api.Facets[(i+1)%len(api.Facets)]
		}
	}
	return api.FacetPending
}

func (v *reviewView) prepare(action review.Action) {
	row, ok := v.selected()
	if !ok {
		return
	}
	p, err := v.workflow.Prepare(action, row)
	if err != nil {
		v.app.pushNotices(notice.Warn(fmt.Sprintf("%s is not available for this application", action.Label())))
		return
	}
	v.pending = &p
	v.justification = newTextArea("Write your notes here")
	if action == review.ActionReject {
		v.justification.Placeholder = "Why is this application rejected?"
	}
	v.justification.Focus()
}

func (v *reviewView) handleModalKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if v.busy {
		return nil
	}
	if key == "esc" {
		v.pending = nil
		return nil
	}
	if v.pending.NeedsJustification {
		if key == "ctrl+s" {
			return v.confirm(v.justification.Value())
		}
		var cmd tea.Cmd
		v.justification, cmd = v.justification.Update(msg)
		return cmd
	}
	switch key {
	case "y", "enter":
		return v.confirm("")
	case "n":
		v.pending = nil
	}
	return nil
}

func (v *reviewView) confirm(text string) tea.Cmd {
	if _, err := review.Validate(v.pending.Action, text); err != nil {
		var vErr *review.ValidationError
		if errors.As(err, &vErr) {
			v.app.pushNotices(notice.Error(vErr.Message()))
		}
		return nil
	}
	v.busy = true
	w, p := v.workflow, *v.pending
	return tea.Batch(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notices, err := w.Confirm(ctx, p, text)
		return reviewActionMsg{workflow: w, notices: notices, err: err}
	}, v.spinner.Tick)
}

func (v *reviewView) View(width int) string {
	sections := []string{titleStyle.Render("Review Applications"), v.renderFacets(), ""}
	rows := v.workflow.Rows()
	switch {
	case v.loading && len(rows) == 0:
		sections = append(sections, v.spinner.View()+" Loading applications...")
	case len(rows) == 0 && v.workflow.Loaded():
		sections = append(sections, hintStyle.Render("No applications in this list."))
	default:
		sections = append(sections, v.renderRows(rows))
		if row, ok := v.selected(); ok {
			sections = append(sections, "", v.renderDetail(row, width))
		}
	}
	if v.pending != nil {
		sections = append(sections, "", v.renderModal(width))
	}
	sections = append(sections, "", hintStyle.Render(v.hints()))
	return strings.Join(sections, "\n")
}

func (v *reviewView) renderFacets() string {
	current := v.workflow.Facet()
	tabs := make([]string, 0, len(api.Facets))
	for i, facet := range api.Facets {
		label := fmt.Sprintf("%d %s", i+1, titleCase(string(facet)))
		if facet == current {
			tabs = append(tabs, selectedStyle.Render("["+label+"]"))
		} else {
			tabs = append(tabs, dimStyle.Render(" "+label+" "))
		}
	}
	return strings.Join(tabs, " ")
}

func (v *reviewView) renderRows(rows []api.Application) string {
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		parts := []string{row.ApplicantName()}
		if row.PrimaryGame != "" {
			parts = append(parts, row.PrimaryGame)
		}
		parts = append(parts, string(row.Status))
		if row.Score != nil {
			parts = append(parts, fmt.Sprintf("%.1f", *row.Score))
		}
		line := strings.Join(parts, " · ")
		if i == v.cursor {
			lines = append(lines, selectedStyle.Render("› "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}
	return strings.Join(lines, "\n")
}

func statusStyle(status api.Status) lipgloss.Style {
	switch status {
	case api.StatusAccepted:
		return lipgloss.NewStyle().Foreground(colorOK)
	case api.StatusRejected:
		return lipgloss.NewStyle().Foreground(colorAlert)
	}
	return lipgloss.NewStyle().Foreground(colorWarn)
}

func (v *reviewView) renderDetail(row api.Application, width int) string {
	head := labelStyle.Render(row.ApplicantName()) + "  " + statusStyle(row.Status).Render(strings.ToUpper(string(row.Status)))
	lines := []string{head}
	if row.CreatedAt != "" {
		lines = append(lines, dimStyle.Render("Submitted "+row.CreatedAt))
	}
	if row.Score != nil {
		lines = append(lines, fmt.Sprintf("Score: %.1f", *row.Score))
	}
	for _, step := range v.app.schema.Steps {
		for _, field := range step.Fields {
			if value, ok := row.Answer(field.Name); ok {
				lines = append(lines, labelStyle.Render(field.Label+": ")+value)
			}
		}
	}
	if row.Notes != "" {
		lines = append(lines, labelStyle.Render("Notes: ")+row.Notes)
	}
	if row.RejectReason != "" {
		lines = append(lines, labelStyle.Render("Rejection reason: ")+row.RejectReason)
	}
	if row.ReviewedBy != "" {
		lines = append(lines, labelStyle.Render("Reviewed by: ")+row.ReviewedBy)
	}
	if !row.AIAnalysis.Empty() {
		lines = append(lines, "", titleStyle.Render("AI analysis"))
		ai := row.AIAnalysis
		if ai.Summary != "" {
			lines = append(lines, ai.Summary)
		}
		for _, s := range ai.Strengths {
			lines = append(lines, lipgloss.NewStyle().Foreground(colorOK).Render("+ ")+s)
		}
		for _, c := range ai.Concerns {
			lines = append(lines, errorStyle.Render("- ")+c)
		}
		if ai.Recommendation != "" {
			lines = append(lines, labelStyle.Render("Recommendation: ")+ai.Recommendation)
		}
	}
	if d := row.DiscordDetails; d != nil {
		lines = append(lines, "", titleStyle.Render("Discord"))
		if d.Username != "" {
			lines = append(lines, "Username: "+d.Username)
		}
		if d.JoinedAt != "" {
			lines = append(lines, "Joined server: "+d.JoinedAt)
		}
		if d.AccountCreatedAt != "" {
			lines = append(lines, "Account created: "+d.AccountCreatedAt)
		}
		if len(d.Roles) > 0 {
			lines = append(lines, "Roles: "+strings.Join(d.Roles, ", "))
		}
	}
	return boxStyle.Width(max(20, width-2)).Render(strings.Join(lines, "\n"))
}

func (v *reviewView) renderModal(width int) string {
	p := v.pending
	lines := []string{titleStyle.Render(p.Action.Label()), p.Prompt, ""}
	if p.NeedsJustification {
		lines = append(lines, v.justification.View(), "")
	}
	switch {
	case v.busy:
		lines = append(lines, v.spinner.View()+" Processing...")
	case p.NeedsJustification:
		lines = append(lines, hintStyle.Render("ctrl+s confirm · esc cancel"))
	default:
		lines = append(lines, hintStyle.Render("y confirm · n cancel"))
	}
	return modalStyle.Width(max(20, width-2)).Render(strings.Join(lines, "\n"))
}

func (v *reviewView) hints() string {
	hints := []string{"↑/↓ select", "1-4 filter", "r reload"}
	if row, ok := v.selected(); ok {
		for _, action := range v.workflow.Actions(row) {
			hints = append(hints, actionKey(action)+" "+strings.ToLower(action.Label()))
		}
	}
	return strings.Join(append(hints, "esc back"), " · ")
}
