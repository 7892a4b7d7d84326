package rides

import (
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/models"
)

// Action is an operation an actor attempts on a ride.
type Action string

const (
	ActionCreate   Action = "create"
	ActionAccept   Action = "accept"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionRate     Action = "rate"
	ActionRead     Action = "read"
	ActionNearby   Action = "nearby"
)

// Authorize decides whether actor may perform action on ride. ride may be nil
// for actions that do not target an existing ride. It checks standing only;
// whether the ride's status allows the action is the caller's concern.
func Authorize(actor models.Actor, action Action, ride *models.Ride) error {
	switch action {
	case ActionCreate:
		if !actor.IsPassenger() {
			return common.NewForbiddenError("only passengers can request rides")
		}
		return nil

	case ActionAccept:
		if !actor.IsDriver() {
			return common.NewForbiddenError("only drivers can accept rides")
		}
		return nil

	case ActionNearby:
		if !actor.IsDriver() {
			return common.NewForbiddenError("only drivers can search for nearby rides")
		}
		return nil

	case ActionStart, ActionComplete:
		if !actor.IsDriver() || ride == nil || !ride.IsAssignedDriver(actor.ID) {
			return common.NewForbiddenError("only the assigned driver can " + string(action) + " this ride")
		}
		return nil

	case ActionCancel, ActionRate, ActionRead:
		if isParty(actor, ride) {
			return nil
		}
		return common.NewForbiddenError("you are not a participant of this ride")
	}

	return common.NewForbiddenError("action not permitted")
}

// isParty reports whether actor is the ride's passenger or its assigned
// driver, acting in the matching role.
func isParty(actor models.Actor, ride *models.Ride) bool {
	if ride == nil {
		return false
	}
	switch actor.Role {
	case models.RolePassenger:
		return ride.IsPassenger(actor.ID)
	case models.RoleDriver:
		return ride.IsAssignedDriver(actor.ID)
	}
	return false
}
