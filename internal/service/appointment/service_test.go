package appointment

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/apiclient/apitest"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/session"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type captured struct {
	kinds []string
}

func (c *captured) Emit(_ context.Context, kind string, _ interface{}) {
	c.kinds = append(c.kinds, kind)
}

func setup(t *testing.T) (*apitest.Server, *session.Manager) {
	t.Helper()
	api := apitest.New(t)
	api.AddAccount("ana@clinic.test", "secret", model.User{ID: "u-pat", Role: model.RolePatient}, nil)
	api.AddAccount("doc@clinic.test", "secret", model.User{ID: "u-doc", Role: model.RoleDoctor, DoctorID: "D"}, nil)
	api.Patients = []model.Patient{{ID: "P", UserID: "u-pat"}}
	api.Appointments = []*model.Appointment{
		{ID: "a2", PatientID: "P", DoctorID: "D", AppointmentDate: "2026-10-21T00:00:00.000Z", AppointmentTime: "10:00:00", Status: model.AppointmentStatusScheduled},
		{ID: "a1", PatientID: "P", DoctorID: "D", AppointmentDate: "2026-10-21", AppointmentTime: "09:00:00", Status: model.AppointmentStatusConfirmed},
		{ID: "a0", PatientID: "P", DoctorID: "D", AppointmentDate: "2026-10-01", AppointmentTime: "09:00:00", Status: model.AppointmentStatusCompleted},
		{ID: "x", PatientID: "P2", DoctorID: "D2", AppointmentDate: "2026-10-22", AppointmentTime: "09:00:00", Status: model.AppointmentStatusScheduled},
	}
	client, err := apiclient.New(apiclient.Config{BaseURL: api.URL})
	require.NoError(t, err)
	return api, session.NewManager(session.ManagerConfig{Store: session.NewMemoryStore(time.Hour), API: client})
}

func login(t *testing.T, m *session.Manager, email string) *session.Session {
	t.Helper()
	sess, err := m.Login(context.Background(), email, "secret")
	require.NoError(t, err)
	return sess
}

func newService(events Events) *Service {
	s := NewService(events, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return s
}

func ids(list []model.Appointment) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

func TestListByRole(t *testing.T) {
	api, m := setup(t)
	svc := newService(nil)
	ctx := context.Background()

	patient := login(t, m, "ana@clinic.test")
	list, err := svc.List(ctx, patient, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "a1", "a2"}, ids(list))
	assert.Len(t, api.Calls(http.MethodGet, "/patients/user/u-pat"), 1)

	// The resolved patient id is kept on the session.
	_, err = svc.List(ctx, patient, Filter{Upcoming: true})
	require.NoError(t, err)
	assert.Len(t, api.Calls(http.MethodGet, "/patients/user/u-pat"), 1)

	upcoming, err := svc.List(ctx, patient, Filter{Upcoming: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids(upcoming))

	doctor := login(t, m, "doc@clinic.test")
	list, err = svc.List(ctx, doctor, Filter{Status: model.AppointmentStatusScheduled})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(list))
	assert.Len(t, api.Calls(http.MethodGet, "/appointments/doctor/D"), 1)
}

func TestGetHidesOtherUsersAppointments(t *testing.T) {
	_, m := setup(t)
	svc := newService(nil)
	patient := login(t, m, "ana@clinic.test")

	_, err := svc.Get(context.Background(), patient, "x")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	appt, err := svc.Get(context.Background(), patient, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", appt.ID)
}

func TestPatientMayOnlyCancel(t *testing.T) {
	api, m := setup(t)
	events := &captured{}
	svc := newService(events)
	ctx := context.Background()
	patient := login(t, m, "ana@clinic.test")

	for _, action := range []model.AppointmentAction{model.ActionConfirm, model.ActionComplete, model.ActionNoShow, model.ActionReschedule} {
		_, err := svc.Apply(ctx, patient, "a2", action, ActionForm{AppointmentDate: "2026-10-23", AppointmentTime: "10:00"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden), string(action))
	}
	assert.Empty(t, api.CallsWithPrefix(http.MethodPatch, "/appointments/"))

	updated, err := svc.Apply(ctx, patient, "a2", model.ActionCancel, ActionForm{CancellationReason: " Viaje "})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, updated.Status)
	var body model.ActionRequest
	require.NoError(t, api.Calls(http.MethodPatch, "/appointments/a2/cancel")[0].Decode(&body))
	assert.Equal(t, "Viaje", body.CancellationReason)
	assert.Equal(t, []string{"appointment.cancel"}, events.kinds)

	_, err = svc.Apply(ctx, patient, "a2", model.ActionCancel, ActionForm{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict), "already cancelled")
	assert.Len(t, api.CallsWithPrefix(http.MethodPatch, "/appointments/"), 1)
}

func TestDoctorActions(t *testing.T) {
	api, m := setup(t)
	svc := newService(nil)
	ctx := context.Background()
	doctor := login(t, m, "doc@clinic.test")

	_, err := svc.Apply(ctx, doctor, "a1", model.ActionConfirm, ActionForm{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict), "confirmed appointments cannot be confirmed again")

	_, err = svc.Apply(ctx, doctor, "a1", model.ActionReschedule, ActionForm{AppointmentDate: "2026-10-23"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	_, err = svc.Apply(ctx, doctor, "a1", "archive", ActionForm{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
	assert.Empty(t, api.CallsWithPrefix(http.MethodPatch, "/appointments/"))

	updated, err := svc.Apply(ctx, doctor, "a1", model.ActionReschedule, ActionForm{AppointmentDate: "2026-10-23", AppointmentTime: "11:30:00"})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRescheduled, updated.Status)
	var body model.ActionRequest
	require.NoError(t, api.Calls(http.MethodPatch, "/appointments/a1/reschedule")[0].Decode(&body))
	assert.Equal(t, "2026-10-23", body.AppointmentDate)
	assert.Equal(t, "11:30", body.AppointmentTime)

	_, err = svc.Apply(ctx, doctor, "x", model.ActionNoShow, ActionForm{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound), "another doctor's appointment")
}

func TestAllowed(t *testing.T) {
	scheduled := model.Appointment{Status: model.AppointmentStatusScheduled}
	assert.Equal(t, []model.AppointmentAction{model.ActionCancel}, Allowed(model.RolePatient, scheduled))
	assert.Len(t, Allowed(model.RoleDoctor, scheduled), 5)
	assert.Equal(t, []model.AppointmentAction{model.ActionCancel, model.ActionComplete, model.ActionNoShow, model.ActionReschedule},
		Allowed(model.RoleDoctor, model.Appointment{Status: model.AppointmentStatusConfirmed}))
	assert.Empty(t, Allowed(model.RoleDoctor, model.Appointment{Status: model.AppointmentStatusCompleted}))
}
