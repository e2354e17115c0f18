package loginbridge

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/guildgate/internal/config"
)

const (
	// DefaultHost is the loopback interface the callback listener binds to.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the redirect URI registered for local logins.
	DefaultPort = 8765
	// DefaultReadTimeout guards hung browsers.
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 30 * time.Second
	// MaxTokenLength rejects absurd callback payloads.
	MaxTokenLength = 4096
)

// Settings captures runtime configuration for the callback listener.
type Settings struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig reads login.host/login.port (env overrides are already
// folded in by config).
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{Host: DefaultHost, Port: DefaultPort}
	if cfg != nil {
		host, port := cfg.LoginAddress()
		if host = strings.TrimSpace(host); host != "" {
			settings.Host = host
		}
		if isValidPort(port) {
			settings.Port = port
		}
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port != 0 && !isValidPort(s.Port) {
		s.Port = DefaultPort
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form. Port 0 binds an
// ephemeral port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the listener.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
