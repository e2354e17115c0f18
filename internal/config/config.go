// internal/config/config.go
//
// This package handles configuration and the .guildgate directory structure.
// Every directory guildgate runs from gets a .guildgate/ folder holding the
// client config, the session token and the logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// GuildgateDir is the name of the directory we create in each project
	GuildgateDir = ".guildgate"

	defaultBaseURL   = "http://localhost:8000/api"
	defaultTimeout   = 15 * time.Second
	defaultTokenFile = GuildgateDir + "/state/session.token"
	defaultLoginHost = "127.0.0.1"
	defaultLoginPort = 8765
	defaultFacet     = "pending"
	defaultLogLevel  = "info"
	configFileName   = "config.yaml"
	envFileName      = ".env"
	envAPIURL        = "GUILDGATE_API_URL"
	envAPITimeout    = "GUILDGATE_API_TIMEOUT"
	envToken         = "GUILDGATE_TOKEN"
	envLogLevel      = "GUILDGATE_LOG_LEVEL"
	envLoginPort     = "GUILDGATE_LOGIN_PORT"
)

const defaultProjectConfigYAML = `# guildgate client configuration
version: 1

# Backend REST API. Every screen is a thin client over this base URL.
api:
  base_url: http://localhost:8000/api
  timeout: 15s

session:
  token_file: .guildgate/state/session.token

# Loopback listener that receives the Discord login callback.
login:
  host: 127.0.0.1
  port: 8765

# Optional YAML file replacing the built-in application steps.
wizard:
  schema: ""

review:
  default_facet: pending

logging:
  level: info
`

// APIConfig points the client at the backend.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout,omitempty"`
}

// SessionConfig controls where the session token is persisted.
type SessionConfig struct {
	TokenFile string `yaml:"token_file"`
}

// LoginConfig configures the loopback login callback listener.
type LoginConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WizardConfig optionally overrides the application steps.
type WizardConfig struct {
	Schema string `yaml:"schema,omitempty"`
}

// ReviewConfig captures review panel preferences.
type ReviewConfig struct {
	DefaultFacet string `yaml:"default_facet"`
}

// LoggingConfig controls the structured log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .guildgate/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Login   LoginConfig   `yaml:"login"`
	Wizard  WizardConfig  `yaml:"wizard"`
	Review  ReviewConfig  `yaml:"review"`
	Logging LoggingConfig `yaml:"logging"`
}

// Config holds the runtime configuration for guildgate.
type Config struct {
	// ProjectDir is the directory where the user ran `guildgate` from
	ProjectDir string

	// GuildgateProjectDir is ProjectDir/.guildgate
	GuildgateProjectDir string

	// EnvToken is a session token supplied through GUILDGATE_TOKEN. It wins
	// over the token file when set.
	EnvToken string

	Project ProjectConfig
}

// InitDir creates the .guildgate directory structure in the given project directory.
//
// Structure created:
// .guildgate/
// ├── config.yaml
// ├── logs/    <- guildgate.log (structured) and activity.log (journal)
// └── state/   <- session token
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, GuildgateDir)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, configFileName))
}

// NewConfig creates a new Config instance populated with project settings,
// .env values and environment overrides, in that order.
func NewConfig(projectDir string) (*Config, error) {
	if err := loadEnvFile(filepath.Join(projectDir, envFileName)); err != nil {
		return nil, err
	}
	cfg := &Config{
		ProjectDir:          projectDir,
		GuildgateProjectDir: filepath.Join(projectDir, GuildgateDir),
		Project:             defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.GuildgateProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.GuildgateProjectDir, "state")
}

// LogFilePath returns the structured log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "guildgate.log")
}

// ActivityLogPath returns the human-readable activity journal location.
func (c *Config) ActivityLogPath() string {
	return filepath.Join(c.LogsDir(), "activity.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.GuildgateProjectDir, configFileName)
}

// APIBaseURL returns the backend base URL without a trailing slash.
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.Project.API.BaseURL, "/")
}

// APITimeout returns the per-request timeout.
func (c *Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.Project.API.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

// TokenFile returns the absolute path of the persisted session token.
func (c *Config) TokenFile() string {
	return c.Project.Session.TokenFile
}

// WizardSchemaPath returns the override schema path, or "" for the built-in steps.
func (c *Config) WizardSchemaPath() string {
	return c.Project.Wizard.Schema
}

// LoginAddress returns host:port for the login callback listener.
func (c *Config) LoginAddress() (string, int) {
	return c.Project.Login.Host, c.Project.Login.Port
}

// DefaultFacet returns the review facet opened first.
func (c *Config) DefaultFacet() string {
	return c.Project.Review.DefaultFacet
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string {
	return c.Project.Logging.Level
}

// SetDefaultFacet updates the review facet and persists the value back to
// .guildgate/config.yaml so the next launch opens the same list.
func (c *Config) SetDefaultFacet(facet string) error {
	facet = strings.ToLower(strings.TrimSpace(facet))
	if !isFacet(facet) {
		return fmt.Errorf("config: unknown review facet %q", facet)
	}
	c.Project.Review.DefaultFacet = facet
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.ProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if value := strings.TrimSpace(os.Getenv(envAPIURL)); value != "" {
		c.Project.API.BaseURL = strings.TrimRight(value, "/")
	}
	if value := strings.TrimSpace(os.Getenv(envAPITimeout)); value != "" {
		c.Project.API.Timeout = value
	}
	if value := strings.TrimSpace(os.Getenv(envLogLevel)); value != "" {
		c.Project.Logging.Level = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv(envLoginPort)); value != "" {
		if port, err := strconv.Atoi(value); err == nil && isValidPort(port) {
			c.Project.Login.Port = port
		}
	}
	c.EnvToken = strings.TrimSpace(os.Getenv(envToken))
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		API: APIConfig{
			BaseURL: defaultBaseURL,
			Timeout: defaultTimeout.String(),
		},
		Session: SessionConfig{TokenFile: defaultTokenFile},
		Login:   LoginConfig{Host: defaultLoginHost, Port: defaultLoginPort},
		Review:  ReviewConfig{DefaultFacet: defaultFacet},
		Logging: LoggingConfig{Level: defaultLogLevel},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.API.BaseURL) == "" {
		pc.API.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(pc.API.Timeout) == "" {
		pc.API.Timeout = defaultTimeout.String()
	}
	if strings.TrimSpace(pc.Session.TokenFile) == "" {
		pc.Session.TokenFile = defaultTokenFile
	}
	if strings.TrimSpace(pc.Login.Host) == "" {
		pc.Login.Host = defaultLoginHost
	}
	if pc.Login.Port == 0 {
		pc.Login.Port = defaultLoginPort
	}
	if strings.TrimSpace(pc.Review.DefaultFacet) == "" {
		pc.Review.DefaultFacet = defaultFacet
	}
	if strings.TrimSpace(pc.Logging.Level) == "" {
		pc.Logging.Level = defaultLogLevel
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.API.BaseURL = strings.TrimRight(strings.TrimSpace(pc.API.BaseURL), "/")
	pc.API.Timeout = strings.TrimSpace(pc.API.Timeout)
	pc.Session.TokenFile = resolvePath(base, pc.Session.TokenFile)
	pc.Login.Host = strings.TrimSpace(pc.Login.Host)
	pc.Wizard.Schema = resolvePath(base, pc.Wizard.Schema)
	pc.Review.DefaultFacet = strings.ToLower(strings.TrimSpace(pc.Review.DefaultFacet))
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	parsed, err := url.Parse(pc.API.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme must be http or https")
	}
	if d, err := time.ParseDuration(pc.API.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("api.timeout must be a positive duration")
	}
	if !isValidPort(pc.Login.Port) {
		return fmt.Errorf("login.port must be between 1 and 65535")
	}
	if !isFacet(pc.Review.DefaultFacet) {
		return fmt.Errorf("review.default_facet must be one of all, pending, accepted, rejected")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	return nil
}

func isFacet(value string) bool {
	switch value {
	case "all", "pending", "accepted", "rejected":
		return true
	}
	return false
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	// Existing process env wins over the file.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.GuildgateProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure guildgate dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
