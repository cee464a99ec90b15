package domain

// Gateway is a router / access point that enforces the MAC deny-list for the endpoints behind it.
type Gateway struct {
	ID             int64
	OrganizationID string
	// ControlIP is the management address reached over SSH.
	ControlIP     string
	State         string
	ConnectedMACs []string
}
