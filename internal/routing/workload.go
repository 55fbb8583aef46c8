package routing

import "leadflow_backend/internal/leads"

// SelectMember returns the member with the lowest current load; ties go to
// the first in input order. ok is false for an empty list.
func SelectMember(members []leads.TeamMember) (leads.TeamMember, bool) {
	if len(members) == 0 {
		return leads.TeamMember{}, false
	}
	best := 0
	for i := 1; i < len(members); i++ {
		if members[i].CurrentLoad < members[best].CurrentLoad {
			best = i
		}
	}
	return members[best], true
}
