package consultation

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/apiclient/apitest"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type staticCreds string

func (c staticCreds) Token() string { return string(c) }
func (c staticCreds) HandleUnauthorized() {}

type fakeSession struct {
	user   model.User
	client *apiclient.Client
}

func (f fakeSession) ID() string { return "sess-" + f.user.ID }
func (f fakeSession) User() (model.User, bool) { return f.user, f.user.ID != "" }
func (f fakeSession) Client() *apiclient.Client { return f.client }

type fakeReconciler struct {
	mu      sync.Mutex
	tracked map[string]func(context.Context) error
	done    []string
}

func (f *fakeReconciler) Track(key string, retry func(context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tracked == nil {
		f.tracked = make(map[string]func(context.Context) error)
	}
	f.tracked[key] = retry
}

func (f *fakeReconciler) Done(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, key)
	f.done = append(f.done, key)
}

func intp(v int) *int { return &v }
func floatp(v float64) *float64 { return &v }

func newDoctor(t *testing.T) (*apitest.Server, fakeSession) {
	t.Helper()
	api := apitest.New(t)
	user := model.User{ID: "u-doc", Role: model.RoleDoctor, DoctorID: "D"}
	token := api.AddAccount("doc@clinic.test", "secret", user, nil)
	api.Patients = []model.Patient{{ID: "P", UserID: "u-pat", FirstName: "Ana"}}
	api.Appointments = []*model.Appointment{{
		ID: "A", PatientID: "P", DoctorID: "D", ServiceID: "S",
		AppointmentDate: "2026-10-19", AppointmentTime: "09:00:00", Duration: 30,
		Status: model.AppointmentStatusConfirmed,
	}}
	client, err := apiclient.New(apiclient.Config{BaseURL: api.URL})
	require.NoError(t, err)
	return api, fakeSession{user: user, client: client.For(staticCreds(token))}
}

func fillSteps(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.SubmitVitals(model.VitalSigns{
		BloodPressureSystolic:  intp(120),
		BloodPressureDiastolic: intp(80),
		Weight:                 floatp(70),
		Height:                 floatp(175),
	}))
	require.NoError(t, w.SubmitDiagnosis(DiagnosisForm{ChiefComplaint: "Dolor de cabeza", Diagnosis: "Migraña"}))
	require.NoError(t, w.SubmitPrescriptions(PrescriptionForm{Prescriptions: []model.Prescription{
		{Medication: "Ibuprofeno", Dosage: "400mg", Frequency: "cada 8 horas", Duration: "5 días", Instructions: "con comida"},
		{Medication: "Paracetamol", Dosage: "1g", Frequency: "cada 12 horas", Duration: "3 días"},
	}}))
	require.Equal(t, StepSummary, w.Step())
}

func TestBMIAndFlatten(t *testing.T) {
	bmi := BMI(floatp(70), floatp(175))
	require.NotNil(t, bmi)
	assert.Equal(t, 22.9, *bmi)
	assert.Nil(t, BMI(floatp(70), nil))
	assert.Nil(t, BMI(floatp(70), floatp(0)))

	text := FlattenPrescriptions([]model.Prescription{
		{Medication: "Ibuprofeno", Dosage: "400mg", Frequency: "cada 8 horas", Duration: "5 días", Instructions: "con comida"},
		{Medication: "Paracetamol", Dosage: "1g", Frequency: "cada 12 horas", Duration: "3 días"},
	})
	assert.Equal(t, "1. Ibuprofeno - 400mg - cada 8 horas - 5 días (con comida)\n2. Paracetamol - 1g - cada 12 horas - 3 días", text)
	assert.Empty(t, FlattenPrescriptions(nil))
}

func TestMissingPatientIsNavigationError(t *testing.T) {
	_, err := NewWizard(Options{Target: Target{AppointmentID: "A"}})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNavigation, appErr.Code)
	assert.Equal(t, "/doctor/appointments", appErr.Redirect)

	api, sess := newDoctor(t)
	svc := NewService(time.Hour, nil, nil, nil, nil)
	_, err = svc.Start(context.Background(), sess, Target{PatientID: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNavigation))
	_, err = svc.Start(context.Background(), sess, Target{PatientID: "nope"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNavigation))
	assert.Len(t, api.Calls(http.MethodGet, "/patients/nope"), 1)

	sess.user.Role = model.RolePatient
	_, err = svc.Start(context.Background(), sess, Target{PatientID: "P"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestStepValidation(t *testing.T) {
	w, err := NewWizard(Options{Target: Target{PatientID: "P"}})
	require.NoError(t, err)

	assert.True(t, apperrors.HasCode(w.SubmitDiagnosis(DiagnosisForm{ChiefComplaint: "x", Diagnosis: "y"}), apperrors.ErrConflict))
	assert.True(t, apperrors.HasCode(w.Back(), apperrors.ErrConflict))

	err = w.SubmitVitals(model.VitalSigns{BloodPressureSystolic: intp(80), BloodPressureDiastolic: intp(80)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation), "diastolic must be below systolic")
	err = w.SubmitVitals(model.VitalSigns{BloodPressureSystolic: intp(110), BloodPressureDiastolic: intp(130)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	err = w.SubmitVitals(model.VitalSigns{OxygenSaturation: intp(101)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	assert.Equal(t, StepVitalSigns, w.Step())
	assert.NotEmpty(t, w.Snapshot().Error)

	// Only one side of the pressure is fine; a supplied BMI is replaced.
	require.NoError(t, w.SubmitVitals(model.VitalSigns{
		BloodPressureDiastolic: intp(90),
		Weight:                 floatp(90),
		Height:                 floatp(180),
		BMI:                    floatp(99),
	}))
	snap := w.Snapshot()
	require.NotNil(t, snap.Data.VitalSigns.BMI)
	assert.Equal(t, 27.8, *snap.Data.VitalSigns.BMI)
	assert.Empty(t, snap.Error)

	assert.True(t, apperrors.HasCode(w.SubmitDiagnosis(DiagnosisForm{ChiefComplaint: " ", Diagnosis: "y"}), apperrors.ErrValidation))
	require.NoError(t, w.SubmitDiagnosis(DiagnosisForm{ChiefComplaint: "Tos", Diagnosis: "Resfriado"}))

	err = w.SubmitPrescriptions(PrescriptionForm{Prescriptions: []model.Prescription{{Medication: "Jarabe"}}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation), "dosage, frequency and duration are required")
	require.NoError(t, w.SubmitPrescriptions(PrescriptionForm{}))

	require.NoError(t, w.Back())
	assert.Equal(t, StepPrescription, w.Step())
	assert.Equal(t, "Resfriado", w.Snapshot().Data.Diagnosis.Diagnosis, "back keeps entered data")
}

func TestSubmitCreatesThenCompletes(t *testing.T) {
	api, sess := newDoctor(t)
	rec := &fakeReconciler{}
	svc := NewService(time.Hour, rec, nil, nil, nil)
	w, err := svc.Start(context.Background(), sess, Target{PatientID: "P", AppointmentID: "A"})
	require.NoError(t, err)
	fillSteps(t, w)

	_, err = w.Submit(context.Background(), SummaryForm{FollowUpDate: "2026/11/01"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	assert.Empty(t, api.Calls(http.MethodPost, "/consultations"))

	cons, err := w.Submit(context.Background(), SummaryForm{Notes: "Reposo", FollowUpDate: "2026-11-01"})
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, w.Phase())

	posts := api.Calls(http.MethodPost, "/consultations")
	require.Len(t, posts, 1)
	var body model.CreateConsultationRequest
	require.NoError(t, posts[0].Decode(&body))
	assert.Equal(t, "P", body.PatientID)
	assert.Equal(t, "D", body.DoctorID)
	assert.Equal(t, "A", body.AppointmentID)
	assert.Equal(t, "Migraña", body.Diagnosis)
	assert.Equal(t, 2, strings.Count(body.Prescriptions, "\n")+1)
	require.NotNil(t, body.BMI)
	assert.Equal(t, 22.9, *body.BMI)
	assert.Equal(t, cons.ID, w.Snapshot().Consultation.ID)

	require.Len(t, api.Calls(http.MethodPatch, "/appointments/A/complete"), 1)
	assert.Equal(t, model.AppointmentStatusCompleted, api.Appointments[0].Status)
	assert.Empty(t, rec.tracked)

	_, err = w.Submit(context.Background(), SummaryForm{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.Len(t, api.Calls(http.MethodPost, "/consultations"), 1)
}

func TestFailedCompletionIsPendingAndRecoverable(t *testing.T) {
	api, sess := newDoctor(t)
	rec := &fakeReconciler{}
	svc := NewService(time.Hour, rec, nil, nil, nil)
	w, err := svc.Start(context.Background(), sess, Target{PatientID: "P", AppointmentID: "A"})
	require.NoError(t, err)
	fillSteps(t, w)

	api.FailNext(http.MethodPatch, "/appointments/A/complete", http.StatusInternalServerError, "Error interno")
	cons, err := w.Submit(context.Background(), SummaryForm{})
	require.Error(t, err)
	require.NotNil(t, cons, "the consultation exists even though completion failed")
	assert.Equal(t, PhasePendingCompletion, w.Phase())
	assert.Equal(t, "Error interno", w.Snapshot().Error)
	assert.Equal(t, model.AppointmentStatusConfirmed, api.Appointments[0].Status)
	require.Contains(t, rec.tracked, "A")

	pending := svc.Pending(sess.ID())
	require.Len(t, pending, 1)
	assert.Equal(t, w.ID(), pending[0].ID)

	_, err = w.Submit(context.Background(), SummaryForm{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict), "no second consultation")

	require.NoError(t, w.RetryCompletion(context.Background()))
	assert.Equal(t, PhaseCompleted, w.Phase())
	assert.Equal(t, model.AppointmentStatusCompleted, api.Appointments[0].Status)
	assert.Equal(t, []string{"A"}, rec.done)
	assert.Empty(t, svc.Pending(sess.ID()))
	assert.Len(t, api.Calls(http.MethodPost, "/consultations"), 1)

	// Retrying again is a no-op.
	require.NoError(t, w.RetryCompletion(context.Background()))
	assert.Len(t, api.Calls(http.MethodPatch, "/appointments/A/complete"), 2)
}

func TestCompleteAppointmentSkipsCompleted(t *testing.T) {
	api, sess := newDoctor(t)
	api.Appointments[0].Status = model.AppointmentStatusCompleted
	require.NoError(t, CompleteAppointment(context.Background(), sess.client.Appointments, "A"))
	assert.Empty(t, api.CallsWithPrefix(http.MethodPatch, "/appointments/"))

	api.Appointments[0].Status = model.AppointmentStatusCancelled
	err := CompleteAppointment(context.Background(), sess.client.Appointments, "A")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.Empty(t, api.CallsWithPrefix(http.MethodPatch, "/appointments/"))
}

func TestConsultationWithoutAppointment(t *testing.T) {
	api, sess := newDoctor(t)
	w, err := NewService(time.Hour, nil, nil, nil, nil).Start(context.Background(), sess, Target{PatientID: "P"})
	require.NoError(t, err)
	fillSteps(t, w)

	_, err = w.Submit(context.Background(), SummaryForm{})
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, w.Phase())
	assert.Empty(t, api.CallsWithPrefix("", "/appointments"))
}

func TestDropSessionWithdrawsPendingCompletion(t *testing.T) {
	api, sess := newDoctor(t)
	rec := &fakeReconciler{}
	svc := NewService(time.Hour, rec, nil, nil, nil)
	w, err := svc.Start(context.Background(), sess, Target{PatientID: "P", AppointmentID: "A"})
	require.NoError(t, err)
	fillSteps(t, w)

	api.FailNext(http.MethodPatch, "/appointments/A/complete", http.StatusBadGateway, "Bad gateway")
	_, err = w.Submit(context.Background(), SummaryForm{})
	require.Error(t, err)
	require.Contains(t, rec.tracked, "A")

	svc.DropSession(sess.ID())
	assert.NotContains(t, rec.tracked, "A")
	assert.Equal(t, []string{"A"}, rec.done)
	_, err = svc.Get(sess.ID(), w.ID())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
