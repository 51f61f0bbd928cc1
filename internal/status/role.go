package status

// Role is a coarse categorical label attached to a status. Roles form a
// total order: planning < work < review < terminal. Flows may introduce
// additional roles; anything unrecognized orders between review and
// terminal, so custom roles never satisfy a terminal threshold.
type Role string

const (
	RolePlanning Role = "planning"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleTerminal Role = "terminal"
)

var roleOrder = map[Role]int{
	RolePlanning: 10,
	RoleWork:     20,
	RoleReview:   30,
	RoleTerminal: 40,
}

// customRoleOrder is where unknown roles sit in the lattice: beyond review,
// strictly below terminal.
const customRoleOrder = 35

// Order returns the position of the role in the lattice.
func (r Role) Order() int {
	if v, ok := roleOrder[r]; ok {
		return v
	}
	return customRoleOrder
}

// AtOrBeyond reports whether r has progressed at least as far as threshold.
func (r Role) AtOrBeyond(threshold Role) bool {
	return r.Order() >= threshold.Order()
}

// IsTerminal reports whether the role is the terminal role.
func (r Role) IsTerminal() bool {
	return r.AtOrBeyond(RoleTerminal)
}

// ParseRole parses a role name, accepting both forms. Unknown names are
// returned as-is so flow-local roles survive the round trip.
func ParseRole(s string) Role {
	return Role(Normalize(s))
}

// defaultStatusRoles maps every built-in status to its role. Flow
// definitions may override individual entries for their own statuses.
var defaultStatusRoles = map[string]Role{
	"planning":       RolePlanning,
	"pending":        RolePlanning,
	"deferred":       RolePlanning,
	"in-development": RoleWork,
	"in-progress":    RoleWork,
	"in-review":      RoleReview,
	"completed":      RoleTerminal,
	"cancelled":      RoleTerminal,
	"archived":       RoleTerminal,
}

// DefaultRoleForStatus returns the role of a status under the default
// mapping. Statuses with no mapping sit at the planning role so they never
// trigger progression side effects.
func DefaultRoleForStatus(s string) Role {
	if r, ok := defaultStatusRoles[Normalize(s)]; ok {
		return r
	}
	return RolePlanning
}
