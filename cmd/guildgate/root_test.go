package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/api/apitest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"check", "whoami"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	for _, flag := range []string{"project-dir", "api-url"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestWhoami(t *testing.T) {
	backend := apitest.NewServer(t)
	backend.AddUser("tok", api.User{ID: "u1", Username: "ada", GlobalName: "Ada", Roles: []string{"Manager"}})
	dir := t.TempDir()

	t.Setenv("GUILDGATE_TOKEN", "")
	out, err := execute(t, "whoami", "--project-dir", dir, "--api-url", backend.URL())
	require.NoError(t, err)
	assert.Equal(t, "not logged in\n", out)

	t.Setenv("GUILDGATE_TOKEN", "tok")
	out, err = execute(t, "whoami", "--project-dir", dir, "--api-url", backend.URL())
	require.NoError(t, err)
	assert.Equal(t, "Ada (u1)\nroles: manager\n", out)

	t.Setenv("GUILDGATE_TOKEN", "stale")
	out, err = execute(t, "whoami", "--project-dir", dir, "--api-url", backend.URL())
	require.NoError(t, err)
	assert.Equal(t, "not logged in (session expired)\n", out)
}

func TestCheck(t *testing.T) {
	backend := apitest.NewServer(t)
	backend.AddUser("tok", api.User{ID: "u1", Username: "ada"})
	dir := t.TempDir()
	t.Setenv("GUILDGATE_TOKEN", "tok")

	out, err := execute(t, "check", "--project-dir", dir, "--api-url", backend.URL())
	require.NoError(t, err)
	assert.Equal(t, "Eligible: you can submit an application.\n", out)

	days := 1
	backend.SetEligibility(api.Eligibility{Reason: api.ReasonCooldown, Message: "Recently rejected.", DaysRemaining: &days})
	out, err = execute(t, "check", "--project-dir", dir, "--api-url", backend.URL())
	require.NoError(t, err)
	assert.Equal(t, "Cooldown Active\nRecently rejected.\nYou can apply again in 1 day.\n", out)
}

func TestCheckRequiresLogin(t *testing.T) {
	backend := apitest.NewServer(t)
	t.Setenv("GUILDGATE_TOKEN", "")
	_, err := execute(t, "check", "--project-dir", t.TempDir(), "--api-url", backend.URL())
	assert.ErrorIs(t, err, errNotLoggedIn)
	assert.Empty(t, backend.CallsTo(apitest.RouteEligibility))
}
