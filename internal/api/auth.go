package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// userEnvelope accepts /auth/me bodies shaped as {"user": {...}} or as the
// bare user object.
type userEnvelope struct {
	user User
}

func (u *userEnvelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.User != nil {
		u.user = *wrapped.User
		return nil
	}
	return json.Unmarshal(data, &u.user)
}

// CurrentUser returns the account behind the bearer token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return User{}, err
	}
	return out.user, nil
}

// Logout revokes the bearer token server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// LoginURL builds the Discord login entry point that redirects back to
// redirectURI with ?token=... once the backend has issued a session.
func (c *Client) LoginURL(redirectURI string) string {
	query := url.Values{"redirect_uri": []string{redirectURI}}
	return c.baseURL + "/auth/discord/login?" + query.Encode()
}
