package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/guildgate/internal/loginbridge"
	"github.com/kingrea/guildgate/internal/notice"
)

var errLoginBusy = errors.New("a login is already being processed")

// loginView shows the Discord login URL and accepts a pasted token when the
// browser cannot reach the local callback.
type loginView struct {
	app       *App
	url       string
	bridgeErr error
	input     textinput.Model
}

func newLoginView(a *App) *loginView {
	input := textinput.New()
	input.Placeholder = "paste token"
	input.CharLimit = loginbridge.MaxTokenLength
	input.Width = inputWidth
	input.EchoMode = textinput.EchoPassword
	input.Cursor.SetMode(cursor.CursorStatic)
	input.Focus()
	return &loginView{app: a, input: input}
}

// openLogin starts the callback listener and waits for a token. A listener
// that cannot bind leaves the paste field as the only way in.
func (a *App) openLogin(returnTo appState) tea.Cmd {
	a.stopLogin()
	a.state = stateLogin
	a.loginReturn = returnTo
	a.loginView = newLoginView(a)

	tokens := make(chan string, 1)
	bridge := loginbridge.NewServer(a.loginSettings,
		loginbridge.WithLogger(a.logger),
		loginbridge.WithSink(loginbridge.TokenSinkFunc(func(token string) error {
			select {
			case tokens <- token:
				return nil
			default:
				return errLoginBusy
			}
		})))
	if err := bridge.Start(context.Background()); err != nil {
		a.logWarn("Login callback unavailable: %v", err)
		a.loginView.bridgeErr = err
		a.loginView.url = a.client.LoginURL(a.loginSettings.URL() + "/callback")
		return nil
	}
	a.bridge = bridge
	a.tokens = tokens
	a.loginDone = make(chan struct{})
	a.loginView.url = bridge.LoginURL(a.client.BaseURL())
	a.logInfo("Login started · waiting on %s", bridge.CallbackURL())
	return waitForToken(tokens, a.loginDone)
}

func waitForToken(tokens <-chan string, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case token := <-tokens:
			return loginTokenMsg{token: token}
		case <-done:
			return nil
		}
	}
}

// stopLogin shuts the callback listener down and releases any waiter.
func (a *App) stopLogin() {
	if a.bridge != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.bridge.Shutdown(ctx); err != nil {
			a.logWarn("Login callback shutdown: %v", err)
		}
		cancel()
		a.bridge = nil
	}
	if a.loginDone != nil {
		close(a.loginDone)
		a.loginDone = nil
	}
	a.tokens = nil
}

func (a *App) acceptToken(token string) tea.Cmd {
	if err := a.session.SetToken(token); err != nil {
		a.pushNotices(notice.Error("Login failed: no token received"))
		return nil
	}
	a.logInfo("Login token received")
	a.statusMsg = "Verifying your Discord login..."
	return a.refreshSession()
}

func (a *App) finishLogin() tea.Cmd {
	a.stopLogin()
	a.loginView = nil
	if id, ok := a.session.Current(); ok {
		a.pushNotices(notice.Success("Logged in as " + id.DisplayName()))
	}
	if a.loginReturn == stateApply {
		return a.openApply()
	}
	a.state = stateMainMenu
	a.refreshMenu()
	return nil
}

func (v *loginView) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		token := strings.TrimSpace(v.input.Value())
		if token == "" {
			return nil
		}
		v.input.Reset()
		return func() tea.Msg { return loginTokenMsg{token: token} }
	}
	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return cmd
}

func (v *loginView) View() string {
	lines := []string{
		titleStyle.Render("Log In with Discord"),
		"",
		"Open this address in your browser and approve the request:",
		lipgloss.NewStyle().Underline(true).Render(v.url),
		"",
	}
	if v.bridgeErr != nil {
		lines = append(lines, errorStyle.Render("The local callback could not start: "+v.bridgeErr.Error()), "")
	} else {
		lines = append(lines, hintStyle.Render("Waiting for Discord to redirect back..."), "")
	}
	lines = append(lines,
		"Or paste the token shown after login:",
		v.input.View(),
		"",
		hintStyle.Render("enter submit token · esc cancel"),
	)
	return strings.Join(lines, "\n")
}
