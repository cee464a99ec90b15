package domain

import "time"

// Organization is a tenant whose employees, endpoints and gateways are monitored together.
type Organization struct {
	ID   string
	Name string
	// EmailDomain is the internal mail domain (e.g. "dtaa.com"); empty means use the configured fallback.
	EmailDomain string
	CreatedAt   time.Time
}

// SecurityManager receives containment alerts for an organization.
type SecurityManager struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
}
