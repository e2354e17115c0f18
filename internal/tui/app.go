// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for guildgate.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/config"
	"github.com/kingrea/guildgate/internal/logbook"
	"github.com/kingrea/guildgate/internal/loginbridge"
	"github.com/kingrea/guildgate/internal/notice"
	"github.com/kingrea/guildgate/internal/session"
	"github.com/kingrea/guildgate/internal/wizard"
)

// appState represents which "screen" we're on
type appState int

const (
	stateMainMenu appState = iota // Main menu
	stateLogin                    // Waiting for the Discord callback or a pasted token
	stateApply                    // Application wizard
	stateReview                   // Manager review of submitted applications
	stateCatalog                  // Games and rule sections
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 2 * time.Second
	maxNotices      = 5
	logPanelLines   = 6
)

// Main menu entries.
const (
	menuApply   = "Apply to Join"
	menuReview  = "Review Applications"
	menuCatalog = "Manage Catalog"
	menuLogin   = "Log In"
	menuLogout  = "Log Out"
	menuExit    = "Exit"
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithClient overrides the API client.
func WithClient(client *api.Client) AppOption {
	return func(a *App) {
		if client != nil {
			a.client = client
		}
	}
}

// WithSession overrides the session resolved from the config.
func WithSession(s *session.Session) AppOption {
	return func(a *App) {
		if s != nil {
			a.session = s
		}
	}
}

// WithLogger routes structured logs to l.
func WithLogger(l *zap.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSchema replaces the wizard schema loaded from the config.
func WithSchema(schema wizard.Schema) AppOption {
	return func(a *App) {
		if schema.Len() > 0 {
			a.schema = schema
		}
	}
}

// WithLoginSettings overrides where the login callback listener binds.
func WithLoginSettings(settings loginbridge.Settings) AppOption {
	return func(a *App) {
		a.loginSettings = settings
	}
}

// App is the main application model
type App struct {
	state   appState
	config  *config.Config
	logbook *logbook.Logbook
	logger  *zap.Logger
	session *session.Session
	client  *api.Client
	schema  wizard.Schema

	loginSettings loginbridge.Settings
	bridge        *loginbridge.Server
	tokens        chan string
	loginDone     chan struct{}
	loginReturn   appState

	mainMenu    list.Model
	loginView   *loginView
	applyView   *applyView
	reviewView  *reviewView
	catalogView *catalogView

	notices   []notice.Notice
	statusMsg string
	width     int
	height    int
}

// menuItem implements list.Item interface for our menu items
type menuItem struct {
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

type sessionRefreshedMsg struct {
	err error
}

type loggedOutMsg struct {
	err error
}

type loginTokenMsg struct {
	token string
}

// NewApp creates a new App instance
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, errors.New("tui: config is required")
	}
	lb, err := logbook.New(cfg.ActivityLogPath())
	if err != nil {
		lb = nil
	}

	mainMenu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "⬡ GUILDGATE"
	mainMenu.SetShowStatusBar(false)
	mainMenu.SetFilteringEnabled(false)

	app := &App{
		state:         stateMainMenu,
		config:        cfg,
		logbook:       lb,
		logger:        zap.NewNop(),
		loginSettings: loginbridge.SettingsFromConfig(cfg),
		mainMenu:      mainMenu,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.session == nil {
		sess, err := session.New(session.StoreFor(cfg))
		if err != nil {
			return nil, fmt.Errorf("tui: load session: %w", err)
		}
		app.session = sess
	}
	if app.schema.Len() == 0 {
		schema, err := wizard.LoadSchema(cfg.WizardSchemaPath())
		if err != nil {
			return nil, err
		}
		app.schema = schema
	}
	if app.client == nil {
		app.client = api.NewClient(cfg.APIBaseURL(),
			api.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
			api.WithTokenSource(app.session),
			api.WithLogger(app.logger))
	}
	app.refreshMenu()
	app.logInfo("Session opened · api %s", app.client.BaseURL())
	return app, nil
}

// buildMainMenu creates the main menu items for the current identity
func buildMainMenu(s *session.Session) []list.Item {
	items := []list.Item{
		menuItem{title: menuApply, desc: "Start your membership application"},
	}
	if s.IsManager() {
		items = append(items,
			menuItem{title: menuReview, desc: "Accept, reject or delete submitted applications"},
			menuItem{title: menuCatalog, desc: "Edit the games list and rule sections"},
		)
	}
	switch id, ok := s.Current(); {
	case ok:
		items = append(items, menuItem{title: menuLogout, desc: "Signed in as " + id.DisplayName()})
	case s.HasToken():
		items = append(items, menuItem{title: menuLogout, desc: "Forget the stored session"})
	default:
		items = append(items, menuItem{title: menuLogin, desc: "Sign in with Discord"})
	}
	return append(items, menuItem{title: menuExit, desc: "Quit guildgate"})
}

func (a *App) refreshMenu() {
	a.mainMenu.SetItems(buildMainMenu(a.session))
}

func (a *App) logInfo(format string, args ...any) {
	a.logbook.Info(format, args...)
	a.logger.Info(fmt.Sprintf(format, args...))
}

func (a *App) logWarn(format string, args ...any) {
	a.logbook.Warn(format, args...)
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *App) logError(format string, args ...any) {
	a.logbook.Error(format, args...)
	a.logger.Error(fmt.Sprintf(format, args...))
}

// pushNotices keeps the most recent notices for the footer.
func (a *App) pushNotices(notices ...notice.Notice) {
	if len(notices) == 0 {
		return
	}
	a.notices = append(a.notices, notices...)
	if len(a.notices) > maxNotices {
		a.notices = a.notices[len(a.notices)-maxNotices:]
	}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	if !a.session.HasToken() {
		return nil
	}
	a.statusMsg = "Checking your session..."
	return a.refreshSession()
}

func (a *App) refreshSession() tea.Cmd {
	sess, client := a.session, a.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return sessionRefreshedMsg{err: sess.Refresh(ctx, client)}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.mainMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		return a, nil

	case sessionRefreshedMsg:
		return a, a.handleSessionRefreshed(msg)

	case loginTokenMsg:
		return a, a.acceptToken(msg.token)

	case loggedOutMsg:
		a.statusMsg = ""
		if msg.err != nil {
			a.logError("Logout failed: %v", msg.err)
			a.pushNotices(notice.Error("Failed to log out"))
		} else {
			a.logInfo("Logged out")
			a.pushNotices(notice.Success("Logged out"))
		}
		return a.returnToMainMenu()

	case eligibilityMsg:
		a.pushNotices(msg.notices...)
		if a.applyView != nil {
			return a, a.applyView.handleEligibility(msg)
		}
		return a, nil

	case submitMsg:
		a.pushNotices(msg.notices...)
		if a.applyView != nil {
			return a, a.applyView.handleSubmit(msg)
		}
		return a, nil

	case reviewLoadedMsg:
		a.pushNotices(msg.notices...)
		if a.reviewView != nil {
			a.reviewView.handleLoaded(msg)
		}
		return a, nil

	case reviewActionMsg:
		a.pushNotices(msg.notices...)
		if a.reviewView != nil {
			a.reviewView.handleAction(msg)
		}
		return a, nil

	case catalogLoadedMsg:
		a.pushNotices(msg.notices...)
		if a.catalogView != nil {
			a.catalogView.handleLoaded(msg)
		}
		return a, nil

	case catalogActionMsg:
		a.pushNotices(msg.notices...)
		if a.catalogView != nil {
			a.catalogView.handleAction(msg)
		}
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.stopLogin()
			return a, tea.Quit
		case "q":
			if a.state == stateMainMenu {
				a.stopLogin()
				return a, tea.Quit
			}
		case "esc":
			if a.state != stateMainMenu && !a.viewCapturesEsc() {
				return a.returnToMainMenu()
			}
		case "enter":
			if a.state == stateMainMenu {
				return a.handleMainMenuSelection()
			}
		}
	}

	var cmd tea.Cmd
	switch a.state {
	case stateMainMenu:
		a.mainMenu, cmd = a.mainMenu.Update(msg)
	case stateLogin:
		if a.loginView != nil {
			cmd = a.loginView.Update(msg)
		}
	case stateApply:
		if a.applyView != nil {
			cmd = a.applyView.Update(msg)
		}
	case stateReview:
		if a.reviewView != nil {
			cmd = a.reviewView.Update(msg)
		}
	case stateCatalog:
		if a.catalogView != nil {
			cmd = a.catalogView.Update(msg)
		}
	}
	return a, cmd
}

func (a *App) viewCapturesEsc() bool {
	switch a.state {
	case stateReview:
		return a.reviewView != nil && a.reviewView.pending != nil
	case stateCatalog:
		return a.catalogView != nil && a.catalogView.capturesEsc()
	}
	return false
}

// handleMainMenuSelection processes menu item selection
func (a *App) handleMainMenuSelection() (tea.Model, tea.Cmd) {
	item, ok := a.mainMenu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}
	a.logInfo("Menu · %s selected", item.title)

	switch item.title {
	case menuApply:
		return a, a.openApply()
	case menuReview:
		return a, a.openReview()
	case menuCatalog:
		return a, a.openCatalog()
	case menuLogin:
		return a, a.openLogin(stateMainMenu)
	case menuLogout:
		return a, a.logout()
	case menuExit:
		a.stopLogin()
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) openApply() tea.Cmd {
	a.state = stateApply
	a.notices = nil
	a.applyView = newApplyView(a)
	return a.applyView.Init()
}

func (a *App) openReview() tea.Cmd {
	if !a.session.IsManager() {
		a.pushNotices(notice.Error("Manager access required"))
		return nil
	}
	a.state = stateReview
	a.notices = nil
	a.reviewView = newReviewView(a)
	return a.reviewView.Init()
}

func (a *App) openCatalog() tea.Cmd {
	if !a.session.IsManager() {
		a.pushNotices(notice.Error("Manager access required"))
		return nil
	}
	a.state = stateCatalog
	a.notices = nil
	a.catalogView = newCatalogView(a)
	return a.catalogView.Init()
}

func (a *App) logout() tea.Cmd {
	sess, client := a.session, a.client
	a.statusMsg = "Logging out..."
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return loggedOutMsg{err: sess.Logout(ctx, client)}
	}
}

func (a *App) handleSessionRefreshed(msg sessionRefreshedMsg) tea.Cmd {
	a.statusMsg = ""
	switch {
	case errors.Is(msg.err, session.ErrExpired):
		a.logWarn("Session expired")
		a.pushNotices(notice.Warn("Your session has expired. Please log in again."))
	case msg.err != nil:
		a.logError("Session check failed: %v", msg.err)
		a.pushNotices(notice.Error(api.Message(msg.err, "Could not verify your session")))
	default:
		if id, ok := a.session.Current(); ok {
			a.logInfo("Signed in as %s", id.DisplayName())
		}
	}
	a.refreshMenu()
	if a.state == stateLogin && a.session.Authenticated() {
		return a.finishLogin()
	}
	if (a.state == stateReview || a.state == stateCatalog) && !a.session.IsManager() {
		_, cmd := a.returnToMainMenu()
		return cmd
	}
	return nil
}

// returnToMainMenu transitions back to the main menu
func (a *App) returnToMainMenu() (tea.Model, tea.Cmd) {
	a.stopLogin()
	a.state = stateMainMenu
	a.loginView = nil
	a.applyView = nil
	a.reviewView = nil
	a.catalogView = nil
	a.refreshMenu()
	return a, nil
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}
	if leftWidth < 20 {
		leftWidth = width
	}
	if a.state == stateMainMenu {
		a.mainMenu.SetSize(max(20, leftWidth-4), max(10, a.height-12))
	}
	var content string
	switch a.state {
	case stateMainMenu:
		content = a.mainMenu.View()
	case stateLogin:
		if a.loginView != nil {
			content = a.loginView.View()
		}
	case stateApply:
		if a.applyView != nil {
			content = a.applyView.View()
		}
	case stateReview:
		if a.reviewView != nil {
			content = a.reviewView.View(leftWidth - 4)
		}
	case stateCatalog:
		if a.catalogView != nil {
			content = a.catalogView.View()
		}
	}
	return a.renderBoard(content, leftWidth, rightWidth)
}

func (a *App) renderLogPanel() string {
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := titleStyle.Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	body := hintStyle.Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) renderBoard(mainContent string, leftWidth, rightWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorAlert).
		MarginBottom(1).
		Render("⬡ GUILDGATE")
	leftBox := boxStyle.Width(max(20, leftWidth)).Render(mainContent)
	var body string
	if rightWidth > 0 {
		rightBox := boxStyle.Width(max(20, rightWidth)).Render(a.renderAccountPanel(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	} else {
		body = leftBox
	}
	sections := []string{header, body}
	if notices := renderNotices(a.notices); notices != "" {
		sections = append(sections, notices)
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(colorDim).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderAccountPanel(width int) string {
	lines := []string{titleStyle.Render("ACCOUNT")}
	if id, ok := a.session.Current(); ok {
		lines = append(lines, labelStyle.Render(id.DisplayName()))
		if roles := id.Roles(); len(roles) > 0 {
			lines = append(lines, hintStyle.Render("Roles: "+strings.Join(roles, ", ")))
		}
	} else if a.session.HasToken() {
		lines = append(lines, hintStyle.Render("Session not verified"))
	} else {
		lines = append(lines, hintStyle.Render("Not signed in"))
	}
	lines = append(lines, "", dimStyle.Render("API "+a.client.BaseURL()))
	if a.bridge != nil && a.bridge.Running() {
		lines = append(lines, dimStyle.Render("Callback "+a.bridge.CallbackURL()))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}
