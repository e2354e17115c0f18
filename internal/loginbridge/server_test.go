package loginbridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/guildgate/internal/config"
)

func startServer(t *testing.T, sink TokenSink) *Server {
	t.Helper()
	settings := Settings{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings, WithSink(sink))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return srv
}

func get(t *testing.T, target string) (int, string) {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("get %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestSettingsFromConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GUILDGATE_LOGIN_PORT", "9011")
	cfg, err := config.NewConfig(dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9011 {
		t.Fatalf("expected port 9011, got %d", settings.Port)
	}
	if settings.Host != DefaultHost {
		t.Fatalf("expected default host, got %s", settings.Host)
	}
	if settings := SettingsFromConfig(nil); settings.Address() != "127.0.0.1:8765" {
		t.Fatalf("unexpected default address %s", settings.Address())
	}
}

func TestCallbackDeliversToken(t *testing.T) {
	got := make(chan string, 1)
	srv := startServer(t, TokenSinkFunc(func(token string) error {
		got <- token
		return nil
	}))

	status, _ := get(t, srv.BaseURL()+"/health")
	if status != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", status)
	}
	status, body := get(t, srv.CallbackURL()+"?token=abc123")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	select {
	case token := <-got:
		if token != "abc123" {
			t.Fatalf("expected abc123, got %q", token)
		}
	default:
		t.Fatalf("token not forwarded to sink")
	}
	if srv.Received() != 1 {
		t.Fatalf("expected one received token, got %d", srv.Received())
	}
}

func TestCallbackRejectsMissingToken(t *testing.T) {
	srv := startServer(t, nil)
	status, body := get(t, srv.CallbackURL())
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if !strings.Contains(body, "no token") {
		t.Fatalf("unexpected body %q", body)
	}
	status, body = get(t, srv.CallbackURL()+"?error=access_denied")
	if status != http.StatusBadRequest || !strings.Contains(body, "access_denied") {
		t.Fatalf("expected error echoed, got %d %q", status, body)
	}
}

func TestCallbackSurfacesSinkFailure(t *testing.T) {
	srv := startServer(t, TokenSinkFunc(func(string) error { return errors.New("disk full") }))
	status, _ := get(t, srv.CallbackURL()+"?token=abc")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if srv.Received() != 0 {
		t.Fatalf("failed delivery must not count")
	}
}

func TestLoginURL(t *testing.T) {
	srv := startServer(t, nil)
	login, err := url.Parse(srv.LoginURL("http://api.test/api/"))
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	if login.Path != "/api/auth/discord/login" {
		t.Fatalf("unexpected path %s", login.Path)
	}
	if redirect := login.Query().Get("redirect_uri"); redirect != srv.CallbackURL() {
		t.Fatalf("expected redirect %s, got %s", srv.CallbackURL(), redirect)
	}
}

func TestStartTwiceFails(t *testing.T) {
	srv := startServer(t, nil)
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if srv.Running() {
		t.Fatalf("expected listener closed")
	}
}
