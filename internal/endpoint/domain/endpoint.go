package domain

// PresenceState is the logon state of an endpoint.
type PresenceState string

const (
	StateLoggedIn  PresenceState = "logged_in"
	StateLoggedOut PresenceState = "logged_out"
	StateUnknown   PresenceState = "unknown"
)

// Endpoint is a monitored PC.
type Endpoint struct {
	ID             string
	OrganizationID string
	IPAddress      string
	MACAddress     string
	// AccessFlag is false while the endpoint is blocked at its gateway.
	AccessFlag    bool
	PresentUserID string
	State         PresenceState
}

// Transition returns the presence after a logon-channel activity ("Logon" or "Logoff") by userID.
// ok is false for any other activity, in which case presence is left unchanged.
func Transition(activity, userID string) (state PresenceState, presentUser string, ok bool) {
	switch activity {
	case "Logon":
		return StateLoggedIn, userID, true
	case "Logoff":
		return StateLoggedOut, "", true
	}
	return "", "", false
}
