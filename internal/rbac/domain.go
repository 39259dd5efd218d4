// Package rbac decides which portal areas a session's role may enter.
package rbac

import "github.com/nast-payroll/portal/internal/session"

// Role requirements of the protected areas.
const (
	RoleAdmin      = "ADMIN"
	RoleAccountant = "ACCOUNTANT"
	RoleEmployee   = "EMPLOYEE"
)

const rolePrefix = "ROLE_"

// Area ties a role requirement to the path prefix it guards.
type Area struct {
	Requirement string
	Prefix      string
}

// Dashboard returns the dashboard path of the area.
func (a Area) Dashboard() string {
	return a.Prefix + "/dashboard"
}

// Areas lists the protected areas in routing order.
var Areas = []Area{
	{Requirement: RoleAdmin, Prefix: "/admin"},
	{Requirement: RoleAccountant, Prefix: "/accountant"},
	{Requirement: RoleEmployee, Prefix: "/employee"},
}

// Grant reports whether role satisfies requirement. Both sides are trimmed
// and upper-cased; a ROLE_ prefix on either side is tolerated.
func Grant(role, requirement string) bool {
	r := session.NormalizeRole(role)
	q := session.NormalizeRole(requirement)
	return r == q || r == rolePrefix+q || rolePrefix+r == q
}

// AreaFor returns the area whose requirement role satisfies.
func AreaFor(role string) (Area, bool) {
	for _, area := range Areas {
		if Grant(role, area.Requirement) {
			return area, true
		}
	}
	return Area{}, false
}

// DashboardFor returns the dashboard destination for role.
func DashboardFor(role string) (string, bool) {
	area, ok := AreaFor(role)
	if !ok {
		return "", false
	}
	return area.Dashboard(), true
}
