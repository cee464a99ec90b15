package engine

import (
	"context"
	"time"
)

// ContainmentInput describes a logon that may trigger containment.
type ContainmentInput struct {
	OrganizationID string
	EmployeeID     string
	Role           string
	ITAdmin        bool
	AnomalyFlag    bool
	EndpointID     string
	// OwnEndpoint reports whether EndpointID is the employee's assigned endpoint.
	OwnEndpoint bool
	Activity    string
	Timestamp   time.Time
}

// Decision is the outcome of containment policy evaluation.
type Decision struct {
	// Block isolates the endpoint from the network.
	Block bool
	// Notify sends the live alert and the security-manager email.
	Notify bool
}

// Evaluator decides how to react to a logon.
type Evaluator interface {
	EvaluateContainment(ctx context.Context, in ContainmentInput) (Decision, error)
}
