package review

import (
	"fmt"

	"github.com/kingrea/guildgate/internal/api"
)

// Action is a manager mutation on one application.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionDelete Action = "delete"
	ActionGrant  Action = "grant"
)

// MinJustification is the shortest accepted note or reason, in characters
// after trimming.
const MinJustification = 10

// Label is the menu text for an action.
func (a Action) Label() string {
	switch a {
	case ActionAccept:
		return "Accept"
	case ActionReject:
		return "Reject"
	case ActionDelete:
		return "Delete"
	case ActionGrant:
		return "Grant early reapply"
	default:
		return string(a)
	}
}

// NeedsJustification reports whether the action carries free text.
func (a Action) NeedsJustification() bool {
	return a == ActionAccept || a == ActionReject
}

func (a Action) fallback() string {
	switch a {
	case ActionAccept:
		return "Failed to accept application"
	case ActionReject:
		return "Failed to reject application"
	case ActionDelete:
		return "Failed to delete application"
	case ActionGrant:
		return "Failed to grant reapply"
	default:
		return "Action failed"
	}
}

func (a Action) success(app api.Application) string {
	switch a {
	case ActionAccept:
		return "Application accepted"
	case ActionReject:
		return "Application rejected"
	case ActionDelete:
		return "Application deleted"
	case ActionGrant:
		return "Early reapply granted to " + app.ApplicantName()
	default:
		return "Done"
	}
}

func (a Action) prompt(app api.Application) string {
	name := app.ApplicantName()
	switch a {
	case ActionAccept:
		return fmt.Sprintf("Accept the application from %s? Add notes (at least %d characters).", name, MinJustification)
	case ActionReject:
		return fmt.Sprintf("Reject the application from %s? Give a reason (at least %d characters).", name, MinJustification)
	case ActionDelete:
		return fmt.Sprintf("Delete the application from %s? This cannot be undone.", name)
	case ActionGrant:
		return fmt.Sprintf("Grant %s early reapply? This bypasses the 30-day cooldown and opens a 7-day window to reapply.", name)
	default:
		return ""
	}
}

// Offered lists the actions available for app. Accept and reject need a
// pending record, delete is always offered, and grant needs a CEO and a
// rejected record.
func Offered(app api.Application, ceo bool) []Action {
	var actions []Action
	if app.Status == api.StatusPending {
		actions = append(actions, ActionAccept, ActionReject)
	}
	actions = append(actions, ActionDelete)
	if ceo && app.Status == api.StatusRejected {
		actions = append(actions, ActionGrant)
	}
	return actions
}
