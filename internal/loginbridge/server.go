// Package loginbridge runs the loopback listener that receives the token the
// backend issues at the end of a Discord login.
package loginbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ServerStatus reports lifecycle states for the listener.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

const callbackPath = "/callback"

// TokenSink receives the token delivered by the callback.
type TokenSink interface {
	AcceptToken(token string) error
}

// TokenSinkFunc adapts a function to TokenSink.
type TokenSinkFunc func(token string) error

// AcceptToken implements TokenSink.
func (f TokenSinkFunc) AcceptToken(token string) error { return f(token) }

// Server wraps the HTTP listener and its two handlers.
type Server struct {
	settings Settings
	sink     TokenSink
	logger   *zap.Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
	received  int
}

// Option customizes server construction.
type Option func(*Server)

// WithSink sets where callback tokens go.
func WithSink(sink TokenSink) Option {
	return func(s *Server) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a listener using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		sink:     TokenSinkFunc(func(string) error { return nil }),
		logger:   zap.NewNop(),
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the TCP listener and begins serving.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("loginbridge: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("loginbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("loginbridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc(callbackPath, s.handleCallback)
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("login bridge serve error", zap.Error(err))
		}
	}()
	s.logger.Info("login bridge listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Running reports whether the listener is bound.
func (s *Server) Running() bool {
	return s.Addr() != ""
}

// Addr returns the bound TCP address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns scheme + host:port for the running listener.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// CallbackURL is the redirect_uri handed to the backend.
func (s *Server) CallbackURL() string {
	return s.BaseURL() + callbackPath
}

// LoginURL builds <apiBase>/auth/discord/login?redirect_uri=<callback>.
func (s *Server) LoginURL(apiBase string) string {
	query := url.Values{"redirect_uri": []string{s.CallbackURL()}}
	return strings.TrimRight(apiBase, "/") + "/auth/discord/login?" + query.Encode()
}

// Status reports the listener's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Received counts tokens accepted since start.
func (s *Server) Received() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Received      int    `json:"received"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
		Received:      s.Received(),
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if reason := strings.TrimSpace(r.URL.Query().Get("error")); reason != "" {
			s.logger.Warn("login callback reported error", zap.String("error", reason))
			writeText(w, http.StatusBadRequest, "Login failed: "+reason)
			return
		}
		writeText(w, http.StatusBadRequest, "Login failed: no token in callback.")
		return
	}
	if len(token) > MaxTokenLength {
		writeText(w, http.StatusRequestEntityTooLarge, "Login failed: token too long.")
		return
	}
	if err := s.sink.AcceptToken(token); err != nil {
		s.logger.Error("login token rejected", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Login failed: could not store session.")
		return
	}
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
	s.logger.Info("login token received")
	writeText(w, http.StatusOK, "Signed in. You can close this tab and return to guildgate.")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, text)
}
