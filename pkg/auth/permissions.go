package auth

// Actions checked by the operational core. Role administration itself is
// external; this table is static configuration.
const (
	ActionUpdateLocation       = "update_trip_location"
	ActionReportIncident       = "report_incident"
	ActionReportDelay          = "report_delay"
	ActionCreateReservation    = "create_reservation"
	ActionValidatePassengers   = "validate_passenger_list"
	ActionTransitionIncident   = "transition_incident"
	ActionViewTripReservations = "view_trip_reservations"
)

// Permissions maps a role to the set of actions it may perform.
type Permissions map[Role]map[string]bool

// DefaultPermissions returns the standing role/action table for the
// operator console.
func DefaultPermissions() Permissions {
	return Permissions{
		RoleAdmin: {
			ActionUpdateLocation:       true,
			ActionReportIncident:       true,
			ActionReportDelay:          true,
			ActionCreateReservation:    true,
			ActionValidatePassengers:   true,
			ActionTransitionIncident:   true,
			ActionViewTripReservations: true,
		},
		RoleAgent: {
			ActionReportIncident:       true,
			ActionReportDelay:          true,
			ActionCreateReservation:    true,
			ActionValidatePassengers:   true,
			ActionViewTripReservations: true,
		},
		RoleDriver: {
			ActionUpdateLocation: true,
			ActionReportIncident: true,
			ActionReportDelay:    true,
		},
		RolePublic: {},
	}
}

func (p Permissions) Allowed(role Role, action string) bool {
	actions, ok := p[role]
	if !ok {
		return false
	}
	return actions[action]
}

// Checker resolves a user to a role and answers permission queries. The
// actual user directory is an external collaborator; Resolve is injected
// by the caller.
type Checker struct {
	Perms   Permissions
	Resolve func(userID string) Role
}

// HasPermission reports whether the given user may perform action.
func (c Checker) HasPermission(userID, action string) bool {
	if c.Resolve == nil {
		return false
	}
	return c.Perms.Allowed(c.Resolve(userID), action)
}
