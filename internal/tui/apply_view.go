package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/guildgate/internal/notice"
	"github.com/kingrea/guildgate/internal/wizard"
)

// applyView renders one mount of the application wizard.
type applyView struct {
	app     *App
	wizard  *wizard.Wizard
	form    *form
	spinner spinner.Model
	busy    bool
	done    []notice.Notice
}

type eligibilityMsg struct {
	wizard  *wizard.Wizard
	notices []notice.Notice
	err     error
}

type submitMsg struct {
	wizard  *wizard.Wizard
	notices []notice.Notice
	err     error
}

func newSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)
	return s
}

func newApplyView(a *App) *applyView {
	w := wizard.New(a.schema, a.client, a.session, wizard.WithJournal(a.logbook))
	return &applyView{app: a, wizard: w, spinner: newSpinner()}
}

func (v *applyView) Init() tea.Cmd {
	if v.wizard.State() != wizard.StateCheckingEligibility {
		return nil
	}
	return v.checkEligibility()
}

func (v *applyView) checkEligibility() tea.Cmd {
	v.busy = true
	w := v.wizard
	return tea.Batch(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notices, err := w.CheckEligibility(ctx)
		return eligibilityMsg{wizard: w, notices: notices, err: err}
	}, v.spinner.Tick)
}

func (v *applyView) handleEligibility(msg eligibilityMsg) tea.Cmd {
	if msg.wizard != v.wizard {
		return nil
	}
	v.busy = false
	if msg.err != nil {
		v.app.logWarn("Eligibility check failed: %v", msg.err)
		return nil
	}
	switch v.wizard.State() {
	case wizard.StateBlocked:
		blocked, _ := v.wizard.Blocked()
		v.app.logInfo("Application blocked · %s", blocked.Headline)
	case wizard.StateStep:
		v.buildStep()
	}
	return nil
}

// buildStep creates inputs for the current step, prefilled from the draft.
func (v *applyView) buildStep() {
	step := v.wizard.CurrentStep()
	fields := make([]formField, 0, len(step.Fields))
	for _, f := range step.Fields {
		field := newFormField(f.Name, f.Label, placeholderFor(f), f.Kind == wizard.KindTextarea, f.Required)
		field.SetValue(v.wizard.Value(f.Name))
		fields = append(fields, field)
	}
	v.form = newForm(fields...)
}

func placeholderFor(f wizard.Field) string {
	if f.Placeholder != "" {
		return f.Placeholder
	}
	switch f.Kind {
	case wizard.KindDate:
		return "YYYY-MM-DD"
	case wizard.KindNumber:
		return "0"
	}
	return ""
}

// sync copies the inputs into the wizard draft.
func (v *applyView) sync() {
	if v.form == nil {
		return
	}
	for i := range v.form.fields {
		field := &v.form.fields[i]
		_ = v.wizard.Set(field.name, field.Value())
	}
}

func (v *applyView) next() tea.Cmd {
	v.sync()
	notices, err := v.wizard.Next()
	v.app.pushNotices(notices...)
	if err != nil {
		return nil
	}
	if v.wizard.State() == wizard.StateSubmitting {
		return v.submit()
	}
	v.buildStep()
	return nil
}

func (v *applyView) back() tea.Cmd {
	v.sync()
	if err := v.wizard.Back(); err == nil {
		v.buildStep()
	}
	return nil
}

func (v *applyView) submit() tea.Cmd {
	v.busy = true
	w := v.wizard
	return tea.Batch(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notices, err := w.Submit(ctx)
		return submitMsg{wizard: w, notices: notices, err: err}
	}, v.spinner.Tick)
}

func (v *applyView) handleSubmit(msg submitMsg) tea.Cmd {
	if msg.wizard != v.wizard {
		return nil
	}
	v.busy = false
	if msg.err != nil {
		if v.wizard.State() == wizard.StateStep {
			v.buildStep()
		}
		return nil
	}
	v.done = msg.notices
	v.form = nil
	return nil
}

func (v *applyView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !v.busy {
			return nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return cmd
	case tea.KeyMsg:
		if v.busy {
			return nil
		}
		key := msg.String()
		switch v.wizard.State() {
		case wizard.StateLoginRequired:
			if key == "l" || key == "enter" {
				return v.app.openLogin(stateApply)
			}
		case wizard.StateEligibilityError:
			if key == "r" {
				return v.checkEligibility()
			}
		case wizard.StateBlocked, wizard.StateSuccess:
			if key == "enter" {
				_, cmd := v.app.returnToMainMenu()
				return cmd
			}
		case wizard.StateStep:
			return v.handleStepKey(msg)
		}
	}
	return nil
}

func (v *applyView) handleStepKey(msg tea.KeyMsg) tea.Cmd {
	if v.form == nil {
		v.buildStep()
	}
	multiline := v.form.focused() != nil && v.form.focused().multiline
	switch msg.String() {
	case "tab":
		v.form.next()
		return nil
	case "shift+tab":
		v.form.prev()
		return nil
	case "down":
		if !multiline {
			v.form.next()
			return nil
		}
	case "up":
		if !multiline {
			v.form.prev()
			return nil
		}
	case "ctrl+n":
		return v.next()
	case "ctrl+b":
		return v.back()
	case "enter":
		if !multiline {
			if v.form.onLast() {
				return v.next()
			}
			v.form.next()
			return nil
		}
	}
	return v.form.update(msg)
}

func (v *applyView) View() string {
	title := titleStyle.Render("Apply to Join")
	var body []string
	switch v.wizard.State() {
	case wizard.StateLoginRequired:
		body = []string{
			"You need to sign in with Discord before you can apply.",
			"",
			hintStyle.Render("l log in · esc back"),
		}
	case wizard.StateCheckingEligibility:
		body = []string{v.spinner.View() + " Checking your eligibility..."}
	case wizard.StateEligibilityError:
		body = []string{
			errorStyle.Render("We couldn't check your eligibility."),
			"",
			hintStyle.Render("r retry · esc back"),
		}
	case wizard.StateBlocked:
		blocked, _ := v.wizard.Blocked()
		body = []string{lipgloss.NewStyle().Bold(true).Foreground(colorAlert).Render(blocked.Headline)}
		if blocked.Message != "" {
			body = append(body, blocked.Message)
		}
		if blocked.DaysHint != "" {
			body = append(body, blocked.DaysHint)
		}
		body = append(body, "", hintStyle.Render("enter return to menu"))
	case wizard.StateStep, wizard.StateSubmitting:
		body = v.renderStep()
	case wizard.StateSuccess:
		body = []string{lipgloss.NewStyle().Bold(true).Foreground(colorOK).Render("✓ Application submitted")}
		if len(v.done) > 1 {
			body = append(body, renderNotices(v.done[1:]))
		}
		body = append(body, "", "A manager will review it soon. Watch your Discord DMs for the result.",
			"", hintStyle.Render("enter return to menu"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{title, ""}, body...)...)
}

func (v *applyView) renderStep() []string {
	schema := v.wizard.Schema()
	step := v.wizard.Step()
	current := v.wizard.CurrentStep()
	lines := []string{
		labelStyle.Render(fmt.Sprintf("Step %d of %d · %s", step+1, schema.Len(), current.Title)),
		renderProgress(step, schema.Len()),
		"",
	}
	if v.form != nil {
		lines = append(lines, v.form.View())
	}
	lines = append(lines, "")
	if v.wizard.State() == wizard.StateSubmitting {
		return append(lines, v.spinner.View()+" Submitting your application...")
	}
	advance := "ctrl+n next step"
	if step == schema.Len()-1 {
		advance = "ctrl+n submit"
	}
	hints := []string{"tab next field", advance}
	if step > 0 {
		hints = append(hints, "ctrl+b back")
	}
	hints = append(hints, "esc cancel")
	return append(lines, hintStyle.Render(strings.Join(hints, " · ")))
}

func renderProgress(step, total int) string {
	var b strings.Builder
	for i := 0; i < total; i++ {
		switch {
		case i < step:
			b.WriteString(lipgloss.NewStyle().Foreground(colorOK).Render("●"))
		case i == step:
			b.WriteString(selectedStyle.Render("●"))
		default:
			b.WriteString(dimStyle.Render("○"))
		}
		if i < total-1 {
			b.WriteString(dimStyle.Render("──"))
		}
	}
	return b.String()
}
