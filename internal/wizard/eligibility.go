package wizard

import (
	"fmt"

	"github.com/kingrea/guildgate/internal/api"
)

// Blocked is the copy rendered for an ineligible applicant.
type Blocked struct {
	Headline string
	Message  string
	DaysHint string
}

// BlockedCopy maps an eligibility verdict onto its screen text. Reasons
// outside the known three fall back to "Cannot Apply".
func BlockedCopy(e api.Eligibility) Blocked {
	b := Blocked{Headline: headline(e.Reason), Message: e.Message}
	if e.DaysRemaining != nil {
		b.DaysHint = daysHint(*e.DaysRemaining)
	}
	return b
}

func headline(reason api.EligibilityReason) string {
	switch reason {
	case api.ReasonAlreadyMember:
		return "Already a Member"
	case api.ReasonPending:
		return "Application Pending"
	case api.ReasonCooldown:
		return "Cooldown Active"
	default:
		return "Cannot Apply"
	}
}

func daysHint(days int) string {
	if days == 1 {
		return "You can apply again in 1 day."
	}
	return fmt.Sprintf("You can apply again in %d days.", days)
}
