// Package routing decides which portal pages an identity may open. The
// HTTP auth middleware reuses the same role table for the API.
package routing

import (
	"strings"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

const (
	LoginPath     = "/login"
	RegisterPath  = "/register"
	DashboardPath = "/dashboard"
)

// Decision is the outcome of a navigation. Redirect is set whenever
// Allowed is false.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

type rule struct {
	prefix string
	roles  []model.Role
}

var anyRole = []model.Role{model.RolePatient, model.RoleDoctor, model.RoleAdmin}

var rules = []rule{
	{prefix: "/patient", roles: []model.Role{model.RolePatient}},
	{prefix: "/doctor", roles: []model.Role{model.RoleDoctor}},
	{prefix: "/admin", roles: []model.Role{model.RoleAdmin}},
	{prefix: DashboardPath, roles: anyRole},
}

func IsPublic(path string) bool {
	path = clean(path)
	return path == LoginPath || path == RegisterPath
}

// RolesFor returns the roles allowed on path, or nil when no rule covers it.
func RolesFor(path string) []model.Role {
	path = clean(path)
	for _, r := range rules {
		if path == r.prefix || strings.HasPrefix(path, r.prefix+"/") {
			return r.roles
		}
	}
	return nil
}

// Guard decides a navigation to path. user is nil when nobody is logged in.
// Paths no rule covers, including "/", land on the dashboard.
func Guard(path string, user *model.User) Decision {
	if IsPublic(path) {
		return Decision{Allowed: true}
	}
	if user == nil {
		return Decision{Redirect: LoginPath}
	}
	roles := RolesFor(path)
	if roles == nil {
		return Decision{Redirect: DashboardPath}
	}
	if !HasRole(roles, user.Role) {
		return Decision{Redirect: DashboardPath}
	}
	return Decision{Allowed: true}
}

func HasRole(roles []model.Role, role model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if trimmed := strings.TrimRight(path, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}
