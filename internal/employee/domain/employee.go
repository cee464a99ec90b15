package domain

// RoleITAdmin is the role value that sets the ITAdmin feature column.
const RoleITAdmin = "ITAdmin"

// Employee is a monitored user and the endpoint relationships the encoder needs.
type Employee struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	Role           string
	// SupervisorID is the employee id of the supervisor; empty when none.
	SupervisorID string
	// AssignedPCID is the employee's own endpoint; empty when unassigned.
	AssignedPCID string
	SharedPCIDs  []string
	// AnomalyFlag is written back by the most recent detection run.
	AnomalyFlag bool
}

// IsITAdmin reports whether the employee holds the ITAdmin role.
func (e *Employee) IsITAdmin() bool {
	return e != nil && e.Role == RoleITAdmin
}
