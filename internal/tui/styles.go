package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kingrea/guildgate/internal/notice"
)

var (
	colorAccent = lipgloss.Color("#5B8DEF")
	colorBorder = lipgloss.Color("#444444")
	colorMuted  = lipgloss.Color("#AAAAAA")
	colorDim    = lipgloss.Color("#888888")
	colorAlert  = lipgloss.Color("#FF6B6B")
	colorOK     = lipgloss.Color("#6BCB77")
	colorWarn   = lipgloss.Color("#F4C430")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	hintStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle = lipgloss.NewStyle().Foreground(colorAlert)
	labelStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

func noticeStyle(level notice.Level) lipgloss.Style {
	switch level {
	case notice.LevelSuccess:
		return lipgloss.NewStyle().Foreground(colorOK)
	case notice.LevelWarning:
		return lipgloss.NewStyle().Foreground(colorWarn)
	case notice.LevelError:
		return lipgloss.NewStyle().Foreground(colorAlert)
	}
	return hintStyle
}

func renderNotices(notices []notice.Notice) string {
	if len(notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		lines = append(lines, noticeStyle(n.Level).Render("• "+n.Text))
	}
	return strings.Join(lines, "\n")
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
