package domain

import "time"

// BlockingRecord is one automated or manual containment of an endpoint. Records are append-only.
type BlockingRecord struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organization_id"`
	EndpointID     string    `json:"pc_id"`
	EmployeeID     string    `json:"employee_id"`
	LogonTime      time.Time `json:"logon_time"`
	BlockTime      time.Time `json:"blocking_time"`
}
