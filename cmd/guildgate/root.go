package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/config"
	"github.com/kingrea/guildgate/internal/logging"
	"github.com/kingrea/guildgate/internal/session"
	"github.com/kingrea/guildgate/internal/tui"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ProjectDir string
	APIURL     string
}

// newRootCommand creates the root command. Without a subcommand it runs the TUI.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "guildgate",
		Short: "guildgate - apply to the guild and review applications",
		Long: `guildgate is a terminal client for the guild's membership backend.

Applicants sign in with Discord and fill in the application form. Managers
review submitted applications and maintain the games list and rule sections.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ProjectDir, "project-dir", "", "directory holding .guildgate (default: current directory)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "backend base URL, overrides config and GUILDGATE_API_URL")

	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newWhoamiCommand(opts))

	return cmd
}

// runtime bundles everything built from the project config.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	session *session.Session
	client  *api.Client
}

func openRuntime(opts *rootOptions) (*runtime, error) {
	dir := strings.TrimSpace(opts.ProjectDir)
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = cwd
	}
	if err := config.InitDir(dir); err != nil {
		return nil, fmt.Errorf("initialize .guildgate directory: %w", err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	if url := strings.TrimSpace(opts.APIURL); url != "" {
		cfg.Project.API.BaseURL = url
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(session.StoreFor(cfg))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	client := api.NewClient(cfg.APIBaseURL(),
		api.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
		api.WithTokenSource(sess),
		api.WithLogger(logger.Logger))
	return &runtime{cfg: cfg, logger: logger, session: sess, client: client}, nil
}

func (r *runtime) Close() error {
	return r.logger.Close()
}

func runTUI(opts *rootOptions) error {
	rt, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	app, err := tui.NewApp(rt.cfg,
		tui.WithLogger(rt.logger.Logger),
		tui.WithSession(rt.session),
		tui.WithClient(rt.client))
	if err != nil {
		return err
	}

	// Run blocks until the user quits
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
