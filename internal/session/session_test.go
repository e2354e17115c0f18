package session

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/api/apitest"
	"github.com/kingrea/guildgate/internal/config"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.token")
	store := NewFileStore(path)
	token, err := store.Load()
	if err != nil || token != "" {
		t.Fatalf("expected empty token from missing file, got %q %v", token, err)
	}
	if err := store.Save("abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 token file, got %v", info.Mode().Perm())
	}
	if token, _ := store.Load(); token != "abc" {
		t.Fatalf("expected abc, got %q", token)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestRefreshResolvesUser(t *testing.T) {
	backend := apitest.NewServer(t)
	backend.AddUser("tok", api.User{ID: "u1", Username: "ada", Roles: []string{"Manager"}})
	sess, err := New(NewMemoryStore("tok"))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if sess.Authenticated() {
		t.Fatalf("user should be unknown before refresh")
	}
	client := api.NewClient(backend.URL(), api.WithTokenSource(sess))
	if err := sess.Refresh(context.Background(), client); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	id, ok := sess.Current()
	if !ok || id.User.ID != "u1" {
		t.Fatalf("expected u1, got %+v (ok=%v)", id, ok)
	}
	if !sess.IsManager() || sess.IsCEO() {
		t.Fatalf("expected manager without ceo, roles=%v", id.Roles())
	}
	calls := backend.CallsTo(apitest.RouteMe)
	if len(calls) != 1 || calls[0].Token != "tok" {
		t.Fatalf("expected one /auth/me call with bearer tok, got %+v", calls)
	}
}

func TestRefreshClearsExpiredToken(t *testing.T) {
	backend := apitest.NewServer(t)
	store := NewMemoryStore("stale")
	sess, _ := New(store)
	client := api.NewClient(backend.URL(), api.WithTokenSource(sess))
	err := sess.Refresh(context.Background(), client)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if sess.HasToken() {
		t.Fatalf("expected token cleared")
	}
	if token, _ := store.Load(); token != "" {
		t.Fatalf("expected store cleared, got %q", token)
	}
}

func TestRefreshKeepsIdentityOnServerError(t *testing.T) {
	backend := apitest.NewServer(t)
	backend.AddUser("tok", api.User{ID: "u1"})
	sess, _ := New(NewMemoryStore("tok"))
	client := api.NewClient(backend.URL(), api.WithTokenSource(sess))
	if err := sess.Refresh(context.Background(), client); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	backend.Fail(apitest.RouteMe, http.StatusInternalServerError, `{"detail":"boom"}`)
	if err := sess.Refresh(context.Background(), client); err == nil {
		t.Fatalf("expected refresh error")
	}
	if !sess.Authenticated() || sess.Token() != "tok" {
		t.Fatalf("identity should survive a transient failure")
	}
}

func TestSetTokenPersistsAndResetsUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.token")
	sess, err := New(NewFileStore(path))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := sess.SetToken("  "); err == nil {
		t.Fatalf("expected error for blank token")
	}
	if err := sess.SetToken("fresh"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	reloaded, err := New(NewFileStore(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Token() != "fresh" {
		t.Fatalf("expected persisted token, got %q", reloaded.Token())
	}
}

func TestLogoutClearsLocallyEvenWhenAlreadyRevoked(t *testing.T) {
	backend := apitest.NewServer(t)
	sess := NewStatic(api.User{ID: "u1"}, "tok")
	client := api.NewClient(backend.URL(), api.WithTokenSource(sess))
	backend.Fail(apitest.RouteLogout, http.StatusUnauthorized, `{"detail":"Not authenticated"}`)
	if err := sess.Logout(context.Background(), client); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sess.Authenticated() || sess.HasToken() {
		t.Fatalf("expected session cleared")
	}
}

func TestIdentityRoles(t *testing.T) {
	cases := []struct {
		user    api.User
		manager bool
		ceo     bool
	}{
		{api.User{}, false, false},
		{api.User{Role: "member"}, false, false},
		{api.User{Role: "admin"}, true, false},
		{api.User{Roles: []string{"CEO"}}, true, true},
		{api.User{Role: "manager", Roles: []string{"manager"}}, true, false},
	}
	for _, tc := range cases {
		id := Identity{User: tc.user}
		if id.IsManager() != tc.manager || id.IsCEO() != tc.ceo {
			t.Fatalf("roles %v: manager=%v ceo=%v", id.Roles(), id.IsManager(), id.IsCEO())
		}
	}
}

func TestStoreForPrefersEnvironmentToken(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GUILDGATE_TOKEN", "env-token")
	cfg, err := config.NewConfig(dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	store := StoreFor(cfg)
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if token, _ := store.Load(); token != "env-token" {
		t.Fatalf("expected env-token, got %q", token)
	}

	t.Setenv("GUILDGATE_TOKEN", "")
	cfg, err = config.NewConfig(dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	file, ok := StoreFor(cfg).(*FileStore)
	if !ok {
		t.Fatalf("expected file store")
	}
	if file.Path() != cfg.TokenFile() {
		t.Fatalf("expected %s, got %s", cfg.TokenFile(), file.Path())
	}
}
