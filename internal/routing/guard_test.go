package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

func TestGuard(t *testing.T) {
	patient := &model.User{ID: "u1", Role: model.RolePatient}
	doctor := &model.User{ID: "u2", Role: model.RoleDoctor}
	admin := &model.User{ID: "u3", Role: model.RoleAdmin}

	tests := []struct {
		name string
		path string
		user *model.User
		want Decision
	}{
		{"login is public", "/login", nil, Decision{Allowed: true}},
		{"register is public", "/register/", nil, Decision{Allowed: true}},
		{"anonymous to login", "/patient/book", nil, Decision{Redirect: LoginPath}},
		{"anonymous dashboard", "/dashboard", nil, Decision{Redirect: LoginPath}},
		{"patient books", "/patient/book", patient, Decision{Allowed: true}},
		{"patient nested", "/patient/medical-history/h1?tab=pdf", patient, Decision{Allowed: true}},
		{"patient on doctor page", "/doctor/schedule", patient, Decision{Redirect: DashboardPath}},
		{"doctor consultation", "/doctor/consultation/new", doctor, Decision{Allowed: true}},
		{"doctor on admin page", "/admin", doctor, Decision{Redirect: DashboardPath}},
		{"admin page", "/admin/users", admin, Decision{Allowed: true}},
		{"dashboard for any role", "/dashboard", admin, Decision{Allowed: true}},
		{"prefix must match a segment", "/patients", patient, Decision{Redirect: DashboardPath}},
		{"root goes to dashboard", "/", doctor, Decision{Redirect: DashboardPath}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Guard(tt.path, tt.user))
		})
	}
}

func TestRolesFor(t *testing.T) {
	assert.Equal(t, []model.Role{model.RoleDoctor}, RolesFor("/doctor/appointments"))
	assert.Len(t, RolesFor("/dashboard"), 3)
	assert.Nil(t, RolesFor("/settings"))
	assert.True(t, HasRole(RolesFor("/admin/x"), model.RoleAdmin))
	assert.False(t, HasRole(RolesFor("/admin/x"), model.RolePatient))
}
