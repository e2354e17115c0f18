// Package session holds the signed-in identity that the apply, review and
// catalog views are constructed with.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/guildgate/internal/api"
)

// Role names recognised by the backend.
const (
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleCEO     = "ceo"
)

// ErrExpired is returned by Refresh when the backend rejects the token.
var ErrExpired = errors.New("session: token expired or revoked")

// Users is the slice of the API client the session needs.
type Users interface {
	CurrentUser(ctx context.Context) (api.User, error)
	Logout(ctx context.Context) error
}

// Identity is the resolved user plus the token that authenticated them.
type Identity struct {
	User  api.User
	Token string
}

// Roles returns the lower-cased role set, folding the single Role field in.
func (i Identity) Roles() []string {
	seen := map[string]bool{}
	var out []string
	for _, role := range append([]string{i.User.Role}, i.User.Roles...) {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	role = strings.ToLower(role)
	for _, r := range i.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsManager reports whether the identity may open the review workflow.
func (i Identity) IsManager() bool {
	return i.HasRole(RoleManager) || i.HasRole(RoleAdmin) || i.HasRole(RoleCEO)
}

// IsCEO reports whether the identity may grant early reapply.
func (i Identity) IsCEO() bool {
	return i.HasRole(RoleCEO)
}

// DisplayName returns the best human label.
func (i Identity) DisplayName() string {
	if name := strings.TrimSpace(i.User.GlobalName); name != "" {
		return name
	}
	if name := strings.TrimSpace(i.User.Username); name != "" {
		return name
	}
	return i.User.ID
}

// Session is the explicit, refreshable identity value. The zero identity
// means nobody is signed in.
type Session struct {
	store Store

	mu    sync.RWMutex
	token string
	user  *api.User
}

// New loads any stored token. The user stays unknown until Refresh.
func New(store Store) (*Session, error) {
	if store == nil {
		store = NewMemoryStore("")
	}
	token, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, token: token}, nil
}

// NewStatic returns a session already resolved to user. Used by tests and
// by callers that obtained the identity elsewhere.
func NewStatic(user api.User, token string) *Session {
	u := user
	return &Session{store: NewMemoryStore(token), token: token, user: &u}
}

// Token implements api.TokenSource.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether a token is available to try.
func (s *Session) HasToken() bool {
	return s.Token() != ""
}

// Current returns the resolved identity, if any.
func (s *Session) Current() (Identity, bool) {
	if s == nil {
		return Identity{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return Identity{}, false
	}
	return Identity{User: *s.user, Token: s.token}, true
}

// Authenticated reports whether a user has been resolved.
func (s *Session) Authenticated() bool {
	_, ok := s.Current()
	return ok
}

// IsManager is shorthand for Current().IsManager().
func (s *Session) IsManager() bool {
	id, ok := s.Current()
	return ok && id.IsManager()
}

// IsCEO is shorthand for Current().IsCEO().
func (s *Session) IsCEO() bool {
	id, ok := s.Current()
	return ok && id.IsCEO()
}

// SetToken stores a freshly issued token and forgets the previous user.
func (s *Session) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("session: token is empty")
	}
	if err := s.store.Save(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.user = nil
	s.mu.Unlock()
	return nil
}

// Refresh resolves the token to a user. A 401 clears the token and returns
// ErrExpired; other failures leave the session unchanged.
func (s *Session) Refresh(ctx context.Context, users Users) error {
	if !s.HasToken() {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
		return nil
	}
	user, err := users.CurrentUser(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			if clearErr := s.clear(); clearErr != nil {
				return clearErr
			}
			return ErrExpired
		}
		return fmt.Errorf("session: refresh: %w", err)
	}
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return nil
}

// Logout revokes the token server-side and forgets it locally. A backend
// that already considers the token dead is not an error.
func (s *Session) Logout(ctx context.Context, users Users) error {
	if s.HasToken() && users != nil {
		if err := users.Logout(ctx); err != nil && !api.IsUnauthorized(err) {
			return fmt.Errorf("session: logout: %w", err)
		}
	}
	return s.clear()
}

func (s *Session) clear() error {
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	return nil
}
