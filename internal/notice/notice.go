// Package notice carries short user-facing messages out of the workflows.
package notice

// Level orders notices by severity.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is one message for the user.
type Notice struct {
	Level Level
	Text  string
}

func Info(text string) Notice    { return Notice{Level: LevelInfo, Text: text} }
func Success(text string) Notice { return Notice{Level: LevelSuccess, Text: text} }
func Warn(text string) Notice    { return Notice{Level: LevelWarning, Text: text} }
func Error(text string) Notice   { return Notice{Level: LevelError, Text: text} }

// Texts flattens notices for assertions and plain-text output.
func Texts(notices []Notice) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Text)
	}
	return out
}
