package features

import (
	empdomain "insiderwatch/backend/internal/employee/domain"
)

// NewRelationshipTable builds the relationship table of one organization's employees.
func NewRelationshipTable(employees []*empdomain.Employee) RelationshipTable {
	t := make(RelationshipTable, len(employees))
	for _, e := range employees {
		if e == nil {
			continue
		}
		t[e.ID] = Relationship{
			OwnPC:        e.AssignedPCID,
			SharedPCs:    append([]string(nil), e.SharedPCIDs...),
			SupervisorID: e.SupervisorID,
			ITAdmin:      e.IsITAdmin(),
		}
	}
	return t
}
