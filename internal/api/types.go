package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a submitted application. Only
// pending -> accepted and pending -> rejected exist; both are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Facet filters the manager application list.
type Facet string

const (
	FacetAll      Facet = "all"
	FacetPending  Facet = "pending"
	FacetAccepted Facet = "accepted"
	FacetRejected Facet = "rejected"
)

// Facets lists the filters in display order.
var Facets = []Facet{FacetAll, FacetPending, FacetAccepted, FacetRejected}

// ParseFacet maps a free-form string onto a known facet.
func ParseFacet(value string) (Facet, error) {
	f := Facet(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Facets {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("api: unknown facet %q", value)
}

// EligibilityReason explains why an applicant may not start a new application.
type EligibilityReason string

const (
	ReasonAlreadyMember EligibilityReason = "ALREADY_MEMBER"
	ReasonPending       EligibilityReason = "PENDING"
	ReasonCooldown      EligibilityReason = "COOLDOWN"
)

// Eligibility is the backend verdict on whether the current user may apply.
type Eligibility struct {
	Eligible      bool              `json:"eligible"`
	Reason        EligibilityReason `json:"reason,omitempty"`
	Message       string            `json:"message,omitempty"`
	DaysRemaining *int              `json:"days_remaining,omitempty"`
}

// Manager identifies the manager a new application was routed to. The
// backend sends either a bare name or an object.
type Manager struct {
	ID         string `json:"id,omitempty"`
	Username   string `json:"username,omitempty"`
	GlobalName string `json:"global_name,omitempty"`
	Name       string `json:"name,omitempty"`
}

// UnmarshalJSON accepts both "name" and {"username": ...} shapes.
func (m *Manager) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*m = Manager{Name: name}
		return nil
	}
	type plain Manager
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*m = Manager(decoded)
	return nil
}

// DisplayName returns the best available human name.
func (m *Manager) DisplayName() string {
	if m == nil {
		return ""
	}
	for _, candidate := range []string{m.Name, m.GlobalName, m.Username, m.ID} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// SubmitResult is the response to a successful application submission.
type SubmitResult struct {
	Success         bool     `json:"success"`
	AssignedManager *Manager `json:"assigned_manager,omitempty"`
	DMSent          bool     `json:"dm_sent"`
	Score           *float64 `json:"score,omitempty"`
}

// UserInfo is the submitter snapshot stored with an application.
type UserInfo struct {
	ID         string `json:"id,omitempty"`
	DiscordID  string `json:"discord_id,omitempty"`
	Username   string `json:"username,omitempty"`
	GlobalName string `json:"global_name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Email      string `json:"email,omitempty"`
}

// DisplayName returns the global name when present, the username otherwise.
func (u *UserInfo) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.GlobalName); name != "" {
		return name
	}
	return strings.TrimSpace(u.Username)
}

// AIAnalysis is the backend's scoring commentary. Every part is optional.
type AIAnalysis struct {
	Summary        string   `json:"summary,omitempty"`
	Strengths      []string `json:"strengths,omitempty"`
	Concerns       []string `json:"concerns,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Empty reports whether there is nothing to render.
func (a *AIAnalysis) Empty() bool {
	return a == nil || (a.Summary == "" && len(a.Strengths) == 0 && len(a.Concerns) == 0 && a.Recommendation == "")
}

// DiscordDetails describes the applicant's Discord account.
type DiscordDetails struct {
	Username         string   `json:"username,omitempty"`
	JoinedAt         string   `json:"joined_at,omitempty"`
	AccountCreatedAt string   `json:"account_created_at,omitempty"`
	Roles            []string `json:"roles,omitempty"`
}

// Application is the client's read-only projection of a server record.
type Application struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	UserInfo       *UserInfo       `json:"user_info,omitempty"`
	Status         Status          `json:"status"`
	Score          *float64        `json:"score,omitempty"`
	PrimaryGame    string          `json:"primary_game,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Availability   string          `json:"availability,omitempty"`
	Experience     string          `json:"experience,omitempty"`
	Contribution   string          `json:"contribution,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	RejectReason   string          `json:"rejection_reason,omitempty"`
	ReviewedBy     string          `json:"reviewed_by,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	AIAnalysis     *AIAnalysis     `json:"ai_analysis,omitempty"`
	DiscordDetails *DiscordDetails `json:"discord_details,omitempty"`

	answers map[string]string
}

// UnmarshalJSON keeps every scalar answer so schema fields without a
// dedicated struct member can still be rendered.
func (a *Application) UnmarshalJSON(data []byte) error {
	type plain Application
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Application(decoded)
	a.answers = make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			a.answers[key] = v
		case float64:
			a.answers[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			a.answers[key] = strconv.FormatBool(v)
		}
	}
	if a.ID == "" {
		a.ID = a.answers["_id"]
	}
	return nil
}

// Answer returns the submitted value for a wizard field name.
func (a Application) Answer(name string) (string, bool) {
	value, ok := a.answers[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// ApplicantName returns a label for list rows.
func (a Application) ApplicantName() string {
	if name := a.UserInfo.DisplayName(); name != "" {
		return name
	}
	if a.DiscordDetails != nil && a.DiscordDetails.Username != "" {
		return a.DiscordDetails.Username
	}
	if a.UserID != "" {
		return a.UserID
	}
	return "unknown applicant"
}

// User is the authenticated account as reported by /auth/me.
type User struct {
	ID         string   `json:"id"`
	DiscordID  string   `json:"discord_id,omitempty"`
	Username   string   `json:"username"`
	GlobalName string   `json:"global_name,omitempty"`
	Avatar     string   `json:"avatar,omitempty"`
	Role       string   `json:"role,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// Game is a game catalog entry.
type Game struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Active      bool   `json:"active"`
}

// RuleSection is one titled block of community rules.
type RuleSection struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Rules    []string `json:"rules"`
	Active   bool     `json:"active"`
	Order    int      `json:"order"`
}
