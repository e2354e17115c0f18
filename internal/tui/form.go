package tui

import (
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	inputWidth    = 48
	areaHeight    = 4
	maxInputChars = 2000
)

// formField wraps either a single-line input or a textarea behind one API so
// the wizard, review and catalog forms can treat them alike.
type formField struct {
	name      string
	label     string
	required  bool
	multiline bool
	line      textinput.Model
	area      textarea.Model
}

func newFormField(name, label, placeholder string, multiline, required bool) formField {
	f := formField{name: name, label: label, required: required, multiline: multiline}
	if multiline {
		f.area = newTextArea(placeholder)
		return f
	}
	f.line = textinput.New()
	f.line.Placeholder = placeholder
	f.line.CharLimit = maxInputChars
	f.line.Width = inputWidth
	f.line.Cursor.SetMode(cursor.CursorStatic)
	return f
}

func newTextArea(placeholder string) textarea.Model {
	area := textarea.New()
	area.Placeholder = placeholder
	area.CharLimit = maxInputChars
	area.ShowLineNumbers = false
	area.SetWidth(inputWidth)
	area.SetHeight(areaHeight)
	area.Cursor.SetMode(cursor.CursorStatic)
	return area
}

func (f *formField) Value() string {
	if f.multiline {
		return f.area.Value()
	}
	return f.line.Value()
}

func (f *formField) SetValue(value string) {
	if f.multiline {
		f.area.SetValue(value)
		return
	}
	f.line.SetValue(value)
}

func (f *formField) Focus() {
	if f.multiline {
		f.area.Focus()
		return
	}
	f.line.Focus()
}

func (f *formField) Blur() {
	if f.multiline {
		f.area.Blur()
		return
	}
	f.line.Blur()
}

func (f *formField) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if f.multiline {
		f.area, cmd = f.area.Update(msg)
	} else {
		f.line, cmd = f.line.Update(msg)
	}
	return cmd
}

func (f formField) View(focused bool) string {
	label := f.label
	if f.required {
		label += " *"
	}
	style := labelStyle
	if focused {
		style = selectedStyle
	}
	input := f.line.View()
	if f.multiline {
		input = f.area.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, style.Render(label), input)
}

// form is an ordered set of fields with one focused at a time.
type form struct {
	fields []formField
	focus  int
}

func newForm(fields ...formField) *form {
	f := &form{fields: fields}
	f.setFocus(0)
	return f
}

func (f *form) setFocus(index int) {
	if len(f.fields) == 0 {
		return
	}
	if index < 0 {
		index = len(f.fields) - 1
	}
	if index >= len(f.fields) {
		index = 0
	}
	for i := range f.fields {
		f.fields[i].Blur()
	}
	f.focus = index
	f.fields[index].Focus()
}

func (f *form) next() { f.setFocus(f.focus + 1) }
func (f *form) prev() { f.setFocus(f.focus - 1) }

func (f *form) focused() *formField {
	if len(f.fields) == 0 {
		return nil
	}
	return &f.fields[f.focus]
}

func (f *form) onLast() bool {
	return f.focus == len(f.fields)-1
}

func (f *form) value(name string) string {
	for i := range f.fields {
		if f.fields[i].name == name {
			return f.fields[i].Value()
		}
	}
	return ""
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if field := f.focused(); field != nil {
		return field.Update(msg)
	}
	return nil
}

func (f *form) View() string {
	parts := make([]string, 0, len(f.fields))
	for i, field := range f.fields {
		parts = append(parts, field.View(i == f.focus))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
