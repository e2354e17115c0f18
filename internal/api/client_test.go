package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]captured) {
	t.Helper()
	calls := &[]captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, header: r.Header.Clone()}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &c.body)
		}
		*calls = append(*calls, c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestClientSendsTokenAndRequestID(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"eligible":true}`)
	client := NewClient(srv.URL+"/api/",
		WithTokenSource(TokenFunc(func() string { return "tok-1" })),
		WithRequestIDs(func() string { return "req-1" }))

	result, err := client.CheckEligibility(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Eligible)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/application-manager/check-eligibility", call.path)
	assert.Equal(t, "Bearer tok-1", call.header.Get("Authorization"))
	assert.Equal(t, "req-1", call.header.Get("X-Request-ID"))
}

func TestClientOmitsAuthorizationWithoutToken(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"applications":[]}`)
	client := NewClient(srv.URL)

	_, err := client.ListApplications(context.Background(), FacetPending)
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Empty(t, (*calls)[0].header.Get("Authorization"))
	assert.NotEmpty(t, (*calls)[0].header.Get("X-Request-ID"))
}

func TestListApplicationsSendsFacet(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"applications":[
		{"id":"a1","user_id":"u1","status":"pending","score":72.5,"primary_game":"Valorant","gameplay_hours":"20"},
		{"_id":"a2","user_id":"u2","status":"rejected","user_info":{"username":"kay","global_name":"Kay"}}
	]}`)
	client := NewClient(srv.URL)

	apps, err := client.ListApplications(context.Background(), FacetRejected)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "status=rejected", (*calls)[0].query)
	assert.Equal(t, "/applications/manager/all", (*calls)[0].path)

	assert.Equal(t, "a1", apps[0].ID)
	require.NotNil(t, apps[0].Score)
	assert.InDelta(t, 72.5, *apps[0].Score, 0.001)
	hours, ok := apps[0].Answer("gameplay_hours")
	assert.True(t, ok)
	assert.Equal(t, "20", hours)
	assert.Nil(t, apps[0].AIAnalysis)

	assert.Equal(t, "a2", apps[1].ID)
	assert.Equal(t, StatusRejected, apps[1].Status)
	assert.Equal(t, "Kay", apps[1].ApplicantName())
}

func TestListApplicationsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{}`)
	apps, err := NewClient(srv.URL).ListApplications(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, apps)
	assert.Empty(t, apps)
}

func TestMutationsUseContractPaths(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, client.AcceptApplication(ctx, "a1", "great attitude"))
	require.NoError(t, client.RejectApplication(ctx, "a2", "not a fit right now"))
	require.NoError(t, client.DeleteApplication(ctx, "a3"))
	require.NoError(t, client.GrantReapply(ctx, "u9"))

	require.Len(t, *calls, 4)
	assert.Equal(t, "/applications/manager/accept/a1", (*calls)[0].path)
	assert.Equal(t, "great attitude", (*calls)[0].body["notes"])
	assert.Equal(t, "/applications/manager/reject/a2", (*calls)[1].path)
	assert.Equal(t, "not a fit right now", (*calls)[1].body["reason"])
	assert.Equal(t, http.MethodDelete, (*calls)[2].method)
	assert.Equal(t, "/applications/manager/a3", (*calls)[2].path)
	assert.Equal(t, "/application-manager/ceo/grant-reapply/u9", (*calls)[3].path)
}

func TestMutationsRequireID(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL)
	ctx := context.Background()

	assert.Error(t, client.AcceptApplication(ctx, " ", "long enough notes"))
	assert.Error(t, client.RejectApplication(ctx, "", "long enough reason"))
	assert.Error(t, client.DeleteApplication(ctx, ""))
	assert.Error(t, client.GrantReapply(ctx, ""))
	assert.Empty(t, *calls)
}

func TestSubmitApplicationDecodesManagerShapes(t *testing.T) {
	cases := map[string]struct {
		body    string
		manager string
	}{
		"string":  {body: `{"success":true,"assigned_manager":"Rin","dm_sent":true,"score":88.25}`, manager: "Rin"},
		"object":  {body: `{"success":true,"assigned_manager":{"username":"rin","global_name":"Rin G"},"dm_sent":false}`, manager: "Rin G"},
		"missing": {body: `{"success":true,"dm_sent":true}`, manager: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, calls := newTestServer(t, http.StatusOK, tc.body)
			result, err := NewClient(srv.URL).SubmitApplication(context.Background(), map[string]string{"name": "Ada"})
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, tc.manager, result.AssignedManager.DisplayName())
			assert.Equal(t, "Ada", (*calls)[0].body["name"])
		})
	}
}

func TestErrorDetailDispatch(t *testing.T) {
	cases := map[string]struct {
		status  int
		body    string
		want    Detail
		message string
	}{
		"string detail": {
			status:  http.StatusBadRequest,
			body:    `{"detail":"Primary game is required"}`,
			want:    StringDetail("Primary game is required"),
			message: "Primary game is required",
		},
		"structured detail": {
			status:  http.StatusForbidden,
			body:    `{"detail":{"reason":"COOLDOWN","message":"Wait 12 days","days_remaining":12}}`,
			want:    StructuredDetail{Reason: "COOLDOWN", Message: "Wait 12 days", DaysRemaining: intPtr(12)},
			message: "Wait 12 days",
		},
		"structured without message": {
			status:  http.StatusForbidden,
			body:    `{"detail":{"reason":"PENDING"}}`,
			want:    StructuredDetail{Reason: "PENDING"},
			message: "fallback",
		},
		"validation list": {
			status:  http.StatusUnprocessableEntity,
			body:    `{"detail":[{"loc":["body","name"],"msg":"field required"}]}`,
			want:    nil,
			message: "fallback",
		},
		"not json": {
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			want:    nil,
			message: "fallback",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, tc.status, tc.body)
			err := NewClient(srv.URL).DeleteApplication(context.Background(), "a1")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Detail)
			assert.Equal(t, tc.message, Message(err, "fallback"))
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, `{"detail":"Not authenticated"}`)
	_, err := NewClient(srv.URL).CurrentUser(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsUnauthorized(nil))
}

func TestCurrentUserShapes(t *testing.T) {
	for name, body := range map[string]string{
		"wrapped": `{"user":{"id":"u1","username":"ada","roles":["ceo"]}}`,
		"bare":    `{"id":"u1","username":"ada","roles":["ceo"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, body)
			user, err := NewClient(srv.URL).CurrentUser(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "u1", user.ID)
			assert.Equal(t, []string{"ceo"}, user.Roles)
		})
	}
}

func TestCatalogListShapes(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `[{"id":"g1","name":"Apex","active":true}]`)
	games, err := NewClient(srv.URL).ListGames(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Apex", games[0].Name)

	srv, _ = newTestServer(t, http.StatusOK, `{"rules":[{"id":"r1","title":"Conduct","rules":["Be kind"],"order":1}]}`)
	rules, err := NewClient(srv.URL).ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"Be kind"}, rules[0].Rules)
}

func TestLoginURL(t *testing.T) {
	client := NewClient("https://guild.example/api/")
	assert.Equal(t,
		"https://guild.example/api/auth/discord/login?redirect_uri=http%3A%2F%2F127.0.0.1%3A8765%2Fcallback",
		client.LoginURL("http://127.0.0.1:8765/callback"))
}

func intPtr(v int) *int { return &v }
