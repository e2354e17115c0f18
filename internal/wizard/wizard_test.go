package wizard

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/api/apitest"
	"github.com/kingrea/guildgate/internal/notice"
)

type authFlag bool

func (a authFlag) Authenticated() bool { return bool(a) }

func twoStepSchema() Schema {
	return Schema{Steps: []Step{
		{Title: "One", Fields: []Field{{Name: "a", Label: "A", Kind: KindText, Required: true}}},
		{Title: "Two", Fields: []Field{{Name: "b", Label: "B", Kind: KindText}}},
	}}
}

func mounted(t *testing.T, schema Schema, backend *apitest.Server) *Wizard {
	t.Helper()
	w := New(schema, backend.Client("tok"), authFlag(true))
	_, err := w.CheckEligibility(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateStep, w.State())
	return w
}

func TestLoginRequiredWithoutSession(t *testing.T) {
	backend := apitest.NewServer(t)
	w := New(twoStepSchema(), backend.Client(""), authFlag(false))
	assert.Equal(t, StateLoginRequired, w.State())

	_, err := w.CheckEligibility(context.Background())
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Empty(t, backend.CallsTo(apitest.RouteEligibility))
}

func TestEligibilityCheckedOnce(t *testing.T) {
	backend := apitest.NewServer(t)
	w := mounted(t, twoStepSchema(), backend)

	_, err := w.CheckEligibility(context.Background())
	assert.ErrorIs(t, err, ErrEligibilityChecked)
	assert.Len(t, backend.CallsTo(apitest.RouteEligibility), 1)
}

func TestEligibilityFailureIsRetryable(t *testing.T) {
	backend := apitest.NewServer(t)
	backend.Fail(apitest.RouteEligibility, http.StatusBadGateway, `oops`)
	w := New(twoStepSchema(), backend.Client("tok"), authFlag(true))

	notices, err := w.CheckEligibility(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateEligibilityError, w.State())
	assert.Equal(t, []string{MsgEligibilityFailed}, notice.Texts(notices))

	_, err = w.CheckEligibility(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStep, w.State())
	assert.Len(t, backend.CallsTo(apitest.RouteEligibility), 2)
}

func TestBlockedHeadlines(t *testing.T) {
	days := 12
	cases := []struct {
		reason   api.EligibilityReason
		headline string
	}{
		{api.ReasonAlreadyMember, "Already a Member"},
		{api.ReasonPending, "Application Pending"},
		{api.ReasonCooldown, "Cooldown Active"},
		{"BANNED", "Cannot Apply"},
		{"", "Cannot Apply"},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			backend := apitest.NewServer(t)
			backend.SetEligibility(api.Eligibility{Eligible: false, Reason: tc.reason, Message: "details", DaysRemaining: &days})
			w := New(twoStepSchema(), backend.Client("tok"), authFlag(true))

			_, err := w.CheckEligibility(context.Background())
			require.NoError(t, err)
			assert.Equal(t, StateBlocked, w.State())
			blocked, ok := w.Blocked()
			require.True(t, ok)
			assert.Equal(t, tc.headline, blocked.Headline)
			assert.Equal(t, "details", blocked.Message)
			assert.Equal(t, "You can apply again in 12 days.", blocked.DaysHint)

			_, err = w.Next()
			assert.Error(t, err)
		})
	}
}

func TestBlockedCopyWithoutDays(t *testing.T) {
	b := BlockedCopy(api.Eligibility{Reason: api.ReasonPending})
	assert.Empty(t, b.DaysHint)
	one := 1
	assert.Equal(t, "You can apply again in 1 day.", BlockedCopy(api.Eligibility{DaysRemaining: &one}).DaysHint)
}

func TestStepGatingScenario(t *testing.T) {
	backend := apitest.NewServer(t)
	w := mounted(t, twoStepSchema(), backend)

	require.NoError(t, w.Set("a", ""))
	notices, err := w.Next()
	assert.ErrorIs(t, err, ErrRequiredMissing)
	assert.Equal(t, []string{MsgRequiredMissing}, notice.Texts(notices))
	assert.Equal(t, 0, w.Step())

	require.NoError(t, w.Set("a", "   "))
	_, err = w.Next()
	assert.ErrorIs(t, err, ErrRequiredMissing)
	assert.Equal(t, 0, w.Step())

	require.NoError(t, w.Set("a", "x"))
	_, err = w.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, w.Step())

	_, err = w.Next()
	require.NoError(t, err)
	assert.Equal(t, StateSubmitting, w.State())

	notices, err = w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, w.State())
	assert.Equal(t, MsgSubmitted, notices[0].Text)

	calls := backend.CallsTo(apitest.RouteSubmit)
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"a": "x"}, calls[0].Body)
}

func TestBackIsNoopOnFirstStep(t *testing.T) {
	backend := apitest.NewServer(t)
	w := mounted(t, twoStepSchema(), backend)
	require.NoError(t, w.Back())
	assert.Equal(t, 0, w.Step())

	require.NoError(t, w.Set("a", "x"))
	_, err := w.Next()
	require.NoError(t, err)
	require.NoError(t, w.Back())
	assert.Equal(t, 0, w.Step())
	assert.Equal(t, "x", w.Value("a"))
}

func TestSetRejectsFieldsOutsideStep(t *testing.T) {
	backend := apitest.NewServer(t)
	w := mounted(t, twoStepSchema(), backend)
	assert.Error(t, w.Set("b", "later"))
}

func TestDraftPreservedAcrossSubmitFailure(t *testing.T) {
	failures := map[string]struct {
		status int
		body   string
		want   string
	}{
		"string detail":          {http.StatusBadRequest, `{"detail":"Primary game is required"}`, "Primary game is required"},
		"structured detail":      {http.StatusForbidden, `{"detail":{"reason":"COOLDOWN","message":"Wait 3 days"}}`, "Wait 3 days"},
		"structured bare reason": {http.StatusForbidden, `{"detail":{"reason":"PENDING"}}`, MsgNotEligible},
		"no detail":              {http.StatusInternalServerError, `{}`, MsgSubmitFailed},
	}
	for name, tc := range failures {
		t.Run(name, func(t *testing.T) {
			backend := apitest.NewServer(t)
			w := mounted(t, twoStepSchema(), backend)
			require.NoError(t, w.Set("a", "alpha"))
			_, err := w.Next()
			require.NoError(t, err)
			require.NoError(t, w.Back())
			_, err = w.Next()
			require.NoError(t, err)
			require.NoError(t, w.Set("b", "beta"))
			before := w.Fields()
			_, err = w.Next()
			require.NoError(t, err)

			backend.Fail(apitest.RouteSubmit, tc.status, tc.body)
			notices, err := w.Submit(context.Background())
			require.Error(t, err)
			assert.Equal(t, []string{tc.want}, notice.Texts(notices))
			assert.Equal(t, notice.LevelError, notices[0].Level)
			assert.Equal(t, StateStep, w.State())
			assert.Equal(t, 1, w.Step())
			assert.Equal(t, before, w.Fields())

			_, err = w.Next()
			require.NoError(t, err)
			_, err = w.Submit(context.Background())
			require.NoError(t, err)
			calls := backend.CallsTo(apitest.RouteSubmit)
			require.Len(t, calls, 2)
			assert.Equal(t, calls[0].Body, calls[1].Body)
		})
	}
}

func TestSuccessNotices(t *testing.T) {
	backend := apitest.NewServer(t)
	backend.SetSubmitResult(map[string]any{
		"success":          true,
		"score":            87.26,
		"assigned_manager": map[string]any{"username": "rin"},
		"dm_sent":          false,
	})
	w := mounted(t, twoStepSchema(), backend)
	require.NoError(t, w.Set("a", "x"))
	_, _ = w.Next()
	_, _ = w.Next()

	notices, err := w.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, 4)
	assert.Equal(t, MsgSubmitted, notices[0].Text)
	assert.Equal(t, "Application score: 87.3", notices[1].Text)
	assert.Equal(t, "Assigned to manager: rin", notices[2].Text)
	assert.Equal(t, notice.LevelWarning, notices[3].Level)
	assert.Equal(t, MsgDMNotSent, notices[3].Text)
}

func TestSuccessNoticesMinimal(t *testing.T) {
	notices := successNotices(api.SubmitResult{Success: true, DMSent: true})
	assert.Equal(t, []string{MsgSubmitted}, notice.Texts(notices))
}

func TestSingleSubmissionInFlight(t *testing.T) {
	backend := apitest.NewServer(t)
	w := mounted(t, twoStepSchema(), backend)
	require.NoError(t, w.Set("a", "x"))
	_, _ = w.Next()
	_, _ = w.Next()

	gate := backend.Hold(apitest.RouteSubmit)
	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = w.Submit(context.Background())
	}()
	<-gate.Entered()

	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitting)
	_, err = w.Next()
	assert.ErrorIs(t, err, ErrSubmitting)

	gate.Release()
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Len(t, backend.CallsTo(apitest.RouteSubmit), 1)
}

func TestDefaultSchemaShape(t *testing.T) {
	schema := DefaultSchema()
	require.Equal(t, 4, schema.Len())
	titles := []string{}
	for _, step := range schema.Steps {
		titles = append(titles, step.Title)
	}
	assert.Equal(t, []string{"Basic Information", "Gaming Background", "Motivation", "Availability & Commitment"}, titles)
	assert.Contains(t, schema.FieldNames(), "primary_game")
	assert.Contains(t, schema.FieldNames(), "gameplay_hours")
}

func TestParseSchemaRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"no steps":      "steps: []\n",
		"unknown kind":  "steps:\n  - title: A\n    fields:\n      - {name: a, label: A, kind: slider}\n",
		"empty title":   "steps:\n  - title: ''\n    fields:\n      - {name: a, label: A, kind: text}\n",
		"bad name":      "steps:\n  - title: A\n    fields:\n      - {name: 'Full Name', label: A, kind: text}\n",
		"duplicate":     "steps:\n  - title: A\n    fields:\n      - {name: a, label: A, kind: text}\n  - title: B\n    fields:\n      - {name: a, label: B, kind: text}\n",
		"unknown key":   "steps:\n  - title: A\n    colour: red\n    fields:\n      - {name: a, label: A, kind: text}\n",
		"empty":         "",
		"not a mapping": "- a\n- b\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchema([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSchemaOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	doc := "steps:\n  - title: Only\n    fields:\n      - {name: handle, label: Handle, kind: text, required: true}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	schema, err := LoadSchema(path)
	require.NoError(t, err)
	require.Equal(t, 1, schema.Len())
	assert.True(t, schema.Steps[0].Fields[0].Required)

	schema, err = LoadSchema("")
	require.NoError(t, err)
	assert.Equal(t, 4, schema.Len())

	_, err = LoadSchema(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStateErrorMessage(t *testing.T) {
	err := error(&StateError{Op: "next", State: StateBlocked})
	assert.EqualError(t, err, "wizard: next not allowed in state blocked")
	assert.False(t, errors.Is(err, ErrSubmitting))
}
