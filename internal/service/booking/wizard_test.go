package booking

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/apiclient/apitest"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/event"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/messaging"
)

// Monday 2026-10-19.
var fixedNow = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }

type staticCreds string

func (c staticCreds) Token() string { return string(c) }
func (c staticCreds) HandleUnauthorized() {}

type identity struct{ user model.User }

func (i identity) User() (model.User, bool) { return i.user, i.user.ID != "" }

type recordedEvent struct {
	kind    string
	payload interface{}
}

type eventSink struct{ events []recordedEvent }

func (e *eventSink) Emit(_ context.Context, kind string, payload interface{}) {
	e.events = append(e.events, recordedEvent{kind, payload})
}

type fixture struct {
	api    *apitest.Server
	client *apiclient.Client
	events *eventSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := apitest.New(t)
	token := api.AddAccount("ana@clinic.test", "secret", model.User{ID: "u1", Role: model.RolePatient, PatientID: "p1"}, nil)
	api.Doctors = []model.Doctor{
		{ID: "D", UserID: "u-doc", FirstName: "Luis", LastName: "Paz", Specialty: "Cardiología"},
		{ID: "D2", UserID: "u-doc2", FirstName: "Marta", LastName: "Ríos"},
	}
	api.Services = []model.MedicalService{
		{ID: "S", DoctorID: "D", Name: "Consulta", Price: 50, Duration: 30, IsActive: true},
		{ID: "S-off", DoctorID: "D", Name: "Old", Price: 10, Duration: 15, IsActive: false},
		{ID: "S2", DoctorID: "D2", Name: "Control", Price: 40, Duration: 20, IsActive: true},
	}
	api.Schedules = []model.DoctorSchedule{
		{ID: "sc1", DoctorID: "D", DayOfWeek: 1, StartTime: "08:00", EndTime: "17:00", IsActive: true},
		{ID: "sc2", DoctorID: "D", DayOfWeek: 2, StartTime: "08:00", EndTime: "12:00", IsActive: true},
	}
	api.SetSlots("D", "2026-10-20", []model.TimeSlot{
		{Time: "09:00:00", Available: true, Duration: 30},
		{Time: "09:30:00", Available: false, Duration: 30},
	})
	client, err := apiclient.New(apiclient.Config{BaseURL: api.URL})
	require.NoError(t, err)
	return &fixture{api: api, client: client.For(staticCreds(token)), events: &eventSink{}}
}

func (f *fixture) wizard(dates DateSource) *Wizard {
	if dates == nil {
		dates = PlaceholderDates{Days: 30, Now: fixedNow}
	}
	return NewWizard(Options{
		Deps:     DepsFromClient(f.client),
		Dates:    dates,
		Identity: identity{model.User{ID: "u1", Role: model.RolePatient, PatientID: "p1"}},
		Events:   f.events,
	})
}

func (f *fixture) walkToConfirm(t *testing.T, w *Wizard) {
	t.Helper()
	ctx := context.Background()
	_, err := w.LoadDoctors(ctx)
	require.NoError(t, err)
	require.NoError(t, w.SelectDoctor(ctx, "D"))
	require.NoError(t, w.SelectService(ctx, "S"))
	require.NoError(t, w.SelectDate(ctx, "2026-10-20"))
	require.NoError(t, w.SelectSlot("09:00"))
	require.NoError(t, w.SubmitReason(ReasonForm{ReasonForVisit: "Chequeo"}))
	require.Equal(t, StepConfirm, w.Step())
}

func TestBookingRoundTripSubmitsExactlyOnePost(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	f.walkToConfirm(t, w)

	// Nothing is submitted before confirm.
	assert.Empty(t, f.api.Calls(http.MethodPost, "/appointments"))

	appt, err := w.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, w.Step())
	assert.NotEmpty(t, appt.ID)

	posts := f.api.Calls(http.MethodPost, "/appointments")
	require.Len(t, posts, 1)
	var body map[string]interface{}
	require.NoError(t, posts[0].Decode(&body))
	assert.Equal(t, "D", body["doctorId"])
	assert.Equal(t, "S", body["serviceId"])
	assert.Equal(t, "p1", body["patientId"])
	assert.Equal(t, "2026-10-20", body["appointmentDate"])
	assert.Equal(t, "09:00", body["appointmentTime"])
	assert.Len(t, body["appointmentTime"], 5)
	assert.EqualValues(t, 30, body["duration"])
	assert.Equal(t, "Chequeo", body["reasonForVisit"])
	assert.NotContains(t, body, "notes")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, EventAppointmentBooked, f.events.events[0].kind)

	snap := w.Snapshot()
	assert.Equal(t, appt.ID, snap.Appointment.ID)
	assert.False(t, snap.CanGoBack)

	// A second confirm is rejected and sends nothing.
	_, err = w.Confirm(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.Len(t, f.api.Calls(http.MethodPost, "/appointments"), 1)
}

func TestPreconditionsCannotBeSkipped(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	ctx := context.Background()

	assert.True(t, apperrors.HasCode(w.SelectDoctor(ctx, "D"), apperrors.ErrConflict), "doctors not loaded")
	assert.True(t, apperrors.HasCode(w.SelectService(ctx, "S"), apperrors.ErrConflict))
	assert.True(t, apperrors.HasCode(w.SelectDate(ctx, "2026-10-20"), apperrors.ErrConflict))
	assert.True(t, apperrors.HasCode(w.SelectSlot("09:00"), apperrors.ErrConflict))
	assert.True(t, apperrors.HasCode(w.SubmitReason(ReasonForm{ReasonForVisit: "x"}), apperrors.ErrConflict))
	_, err := w.Confirm(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.True(t, apperrors.HasCode(w.Next(), apperrors.ErrConflict))
	assert.True(t, apperrors.HasCode(w.Back(), apperrors.ErrConflict))
	assert.Equal(t, StepSelectDoctor, w.Step())

	_, err = w.LoadDoctors(ctx)
	require.NoError(t, err)
	assert.True(t, apperrors.HasCode(w.SelectDoctor(ctx, "nope"), apperrors.ErrNotFound))
	require.NoError(t, w.SelectDoctor(ctx, "D"))
	assert.True(t, apperrors.HasCode(w.SelectService(ctx, "S-off"), apperrors.ErrNotFound), "inactive services are not offered")
	assert.True(t, apperrors.HasCode(w.SelectService(ctx, "S2"), apperrors.ErrNotFound), "other doctor's service")

	require.NoError(t, w.SelectService(ctx, "S"))
	assert.True(t, apperrors.HasCode(w.SelectDate(ctx, "2026-10-25"), apperrors.ErrValidation), "Sunday is not offered")
	assert.True(t, apperrors.HasCode(w.SelectDate(ctx, "20/10/2026"), apperrors.ErrValidation))

	require.NoError(t, w.SelectDate(ctx, "2026-10-20"))
	assert.True(t, apperrors.HasCode(w.SelectSlot("09:30"), apperrors.ErrValidation), "unavailable slot")
	assert.True(t, apperrors.HasCode(w.SelectSlot("10:00"), apperrors.ErrValidation), "unknown slot")
	assert.Equal(t, StepSelectTime, w.Step())
	assert.Empty(t, f.api.Calls(http.MethodPost, "/appointments"))
}

func TestReasonValidationNeverReachesNetwork(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	ctx := context.Background()
	_, err := w.LoadDoctors(ctx)
	require.NoError(t, err)
	require.NoError(t, w.SelectDoctor(ctx, "D"))
	require.NoError(t, w.SelectService(ctx, "S"))
	require.NoError(t, w.SelectDate(ctx, "2026-10-20"))
	require.NoError(t, w.SelectSlot("09:00:00"))

	calls := len(f.api.Calls("", ""))
	assert.True(t, apperrors.HasCode(w.SubmitReason(ReasonForm{ReasonForVisit: "   "}), apperrors.ErrValidation))
	assert.True(t, apperrors.HasCode(w.SubmitReason(ReasonForm{ReasonForVisit: strings.Repeat("a", 501)}), apperrors.ErrValidation))
	assert.True(t, apperrors.HasCode(w.SubmitReason(ReasonForm{ReasonForVisit: "ok", Notes: strings.Repeat("n", 1001)}), apperrors.ErrValidation))
	assert.Equal(t, StepAddReason, w.Step())
	assert.NotEmpty(t, w.Snapshot().Error)
	assert.True(t, apperrors.HasCode(w.Next(), apperrors.ErrConflict))
	assert.Len(t, f.api.Calls("", ""), calls)

	require.NoError(t, w.SubmitReason(ReasonForm{ReasonForVisit: strings.Repeat("a", 500), Notes: strings.Repeat("n", 1000)}))
	assert.Equal(t, StepConfirm, w.Step())
	assert.Equal(t, "09:00", w.Snapshot().Time)
}

func TestBackKeepsStateAndNextDoesNotRefetch(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	f.walkToConfirm(t, w)
	calls := len(f.api.Calls("", ""))

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Back())
	}
	assert.Equal(t, StepSelectDoctor, w.Step())
	snap := w.Snapshot()
	assert.Equal(t, "D", snap.Doctor.ID)
	assert.Equal(t, "S", snap.Service.ID)
	assert.Equal(t, "2026-10-20", snap.Date)
	assert.Equal(t, "09:00", snap.Time)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Next())
	}
	assert.Equal(t, StepConfirm, w.Step())
	assert.True(t, apperrors.HasCode(w.Next(), apperrors.ErrConflict), "confirm needs an explicit confirm")
	assert.Len(t, f.api.Calls("", ""), calls, "no request during re-traversal")

	// Re-selecting the same values also reuses the cache.
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Back())
	}
	require.NoError(t, w.SelectDoctor(context.Background(), "D"))
	require.NoError(t, w.SelectService(context.Background(), "S"))
	require.NoError(t, w.SelectDate(context.Background(), "2026-10-20"))
	assert.Len(t, f.api.Calls("", ""), calls)

	_, err := w.Confirm(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict), "still at select-time")
}

func TestReselectingDifferentDoctorInvalidatesDownstream(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	f.walkToConfirm(t, w)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Back())
	}

	require.NoError(t, w.SelectDoctor(context.Background(), "D2"))
	snap := w.Snapshot()
	assert.Equal(t, "D2", snap.Doctor.ID)
	assert.Nil(t, snap.Service)
	assert.Empty(t, snap.Date)
	assert.Empty(t, snap.Time)
	require.Len(t, snap.Services, 1)
	assert.Equal(t, "S2", snap.Services[0].ID)
	assert.True(t, apperrors.HasCode(w.Next(), apperrors.ErrConflict))
}

func TestSlotQueryFailureKeepsStepAndEmptiesSlots(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	ctx := context.Background()
	_, err := w.LoadDoctors(ctx)
	require.NoError(t, err)
	require.NoError(t, w.SelectDoctor(ctx, "D"))
	require.NoError(t, w.SelectService(ctx, "S"))

	f.api.FailNext(http.MethodGet, "/availability/doctor/D", http.StatusInternalServerError, "Servicio no disponible")
	err = w.SelectDate(ctx, "2026-10-20")
	require.Error(t, err)
	assert.Equal(t, StepSelectDate, w.Step())
	snap := w.Snapshot()
	assert.Equal(t, "Servicio no disponible", snap.Error)
	require.NotNil(t, snap.Slots)
	assert.True(t, snap.Slots.Empty)
	assert.True(t, apperrors.HasCode(w.Next(), apperrors.ErrConflict))

	// Retry succeeds and clears the error.
	require.NoError(t, w.SelectDate(ctx, "2026-10-20"))
	assert.Equal(t, StepSelectTime, w.Step())
	assert.Empty(t, w.Snapshot().Error)
}

func TestAllSlotsUnavailableShowsEmptyState(t *testing.T) {
	f := newFixture(t)
	f.api.SetSlots("D", "2026-10-21", []model.TimeSlot{{Time: "09:00", Available: false}})
	w := f.wizard(nil)
	ctx := context.Background()
	_, err := w.LoadDoctors(ctx)
	require.NoError(t, err)
	require.NoError(t, w.SelectDoctor(ctx, "D"))
	require.NoError(t, w.SelectService(ctx, "S"))
	require.NoError(t, w.SelectDate(ctx, "2026-10-21"))

	snap := w.Snapshot()
	require.NotNil(t, snap.Slots)
	assert.True(t, snap.Slots.Empty)
	assert.NotEmpty(t, snap.Slots.Message)
}

func TestConfirmFailureStaysAndCanRetry(t *testing.T) {
	f := newFixture(t)
	w := f.wizard(nil)
	f.walkToConfirm(t, w)

	f.api.FailNext(http.MethodPost, "/appointments", http.StatusConflict, "El horario ya no está disponible")
	_, err := w.Confirm(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepConfirm, w.Step())
	assert.Equal(t, "El horario ya no está disponible", w.Snapshot().Error)

	_, err = w.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, w.Step())
	assert.Len(t, f.api.Calls(http.MethodPost, "/appointments"), 2)
}

func TestConfirmResolvesPatientFromUser(t *testing.T) {
	f := newFixture(t)
	f.api.Patients = []model.Patient{{ID: "p-from-user", UserID: "u1"}}
	w := NewWizard(Options{
		Deps:     DepsFromClient(f.client),
		Dates:    PlaceholderDates{Days: 30, Now: fixedNow},
		Identity: identity{model.User{ID: "u1", Role: model.RolePatient}},
	})
	f.walkToConfirm(t, w)

	_, err := w.Confirm(context.Background())
	require.NoError(t, err)
	var body model.CreateAppointmentRequest
	require.NoError(t, f.api.Calls(http.MethodPost, "/appointments")[0].Decode(&body))
	assert.Equal(t, "p-from-user", body.PatientID)
}

func TestScheduleDateSource(t *testing.T) {
	f := newFixture(t)
	f.api.Exceptions = []model.ScheduleException{{ID: "e1", DoctorID: "D", ExceptionDate: "2026-10-26"}}
	src := ScheduleDates{Schedules: f.client.Schedules, Exceptions: f.client.Exceptions, Days: 14, Now: fixedNow}

	dates, err := src.AvailableDates(context.Background(), "D", model.MedicalService{})
	require.NoError(t, err)
	// Mondays and Tuesdays, minus the blocked Monday.
	assert.Equal(t, []string{"2026-10-19", "2026-10-20", "2026-10-27"}, dates)
}

func TestPlaceholderDatesSkipSundays(t *testing.T) {
	dates, err := PlaceholderDates{Days: 30, Now: fixedNow}.AvailableDates(context.Background(), "D", model.MedicalService{})
	require.NoError(t, err)
	assert.Len(t, dates, 26)
	assert.Equal(t, "2026-10-19", dates[0])
	for _, d := range dates {
		parsed, err := model.ParseDate(d, time.UTC)
		require.NoError(t, err)
		assert.NotEqual(t, time.Sunday, parsed.Weekday())
	}
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) Emit(context.Context, string, interface{}) {
	close(b.entered)
	<-b.release
}

func TestConfirmEmitsOutsideWizardLock(t *testing.T) {
	f := newFixture(t)
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	w := NewWizard(Options{
		Deps:     DepsFromClient(f.client),
		Dates:    PlaceholderDates{Days: 30, Now: fixedNow},
		Identity: identity{model.User{ID: "u1", Role: model.RolePatient, PatientID: "p1"}},
		Events:   sink,
	})
	f.walkToConfirm(t, w)

	done := make(chan error, 1)
	go func() {
		_, err := w.Confirm(context.Background())
		done <- err
	}()

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("event not emitted")
	}

	read := make(chan Snapshot, 1)
	go func() { read <- w.Snapshot() }()
	select {
	case snap := <-read:
		assert.Equal(t, StepSuccess, snap.Step)
		require.NotNil(t, snap.Appointment)
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked while the event was being delivered")
	}

	close(sink.release)
	require.NoError(t, <-done)
}

type downBroker struct{ messaging.Broker }

func (downBroker) Publish(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func TestConfirmNotDelayedByBrokerOutage(t *testing.T) {
	f := newFixture(t)
	events := event.NewService(downBroker{Broker: messaging.NewMemoryBroker()}, nil)
	w := NewWizard(Options{
		Deps:     DepsFromClient(f.client),
		Dates:    PlaceholderDates{Days: 30, Now: fixedNow},
		Identity: identity{model.User{ID: "u1", Role: model.RolePatient, PatientID: "p1"}},
		Events:   events,
	})
	f.walkToConfirm(t, w)

	start := time.Now()
	_, err := w.Confirm(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, StepSuccess, w.Step())
	events.Wait()
}
