// Package booking implements the appointment booking wizard as a state
// machine independent of any rendering layer.
package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-portal/internal/availability"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

type Step string

const (
	StepSelectDoctor  Step = "select-doctor"
	StepSelectService Step = "select-service"
	StepSelectDate    Step = "select-date"
	StepSelectTime    Step = "select-time"
	StepAddReason     Step = "add-reason"
	StepConfirm       Step = "confirm"
	StepSuccess       Step = "success"
)

// Steps is the fixed step order.
var Steps = []Step{
	StepSelectDoctor,
	StepSelectService,
	StepSelectDate,
	StepSelectTime,
	StepAddReason,
	StepConfirm,
	StepSuccess,
}

func (s Step) index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// EventAppointmentBooked is emitted after a successful confirm.
const EventAppointmentBooked = "appointment.booked"

// ReasonForm is the add-reason step input.
type ReasonForm struct {
	ReasonForVisit string `json:"reasonForVisit" validate:"required,max=500"`
	Notes          string `json:"notes" validate:"max=1000"`
}

// Options configure a Wizard.
type Options struct {
	Deps      Deps
	Dates     DateSource
	Identity  Identity
	Events    Events
	Validator validator.Validator
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// Wizard is one booking in progress. Actions are serialized: a second
// action waits for the first one's network call to finish, so a slow
// response can never overwrite a newer selection.
type Wizard struct {
	id       string
	deps     Deps
	dates    DateSource
	identity Identity
	events   Events
	validate validator.Validator
	log      *logger.Logger
	metrics  *metrics.Metrics

	// action serializes transitions; mu guards the fields below and is
	// released during network calls so Snapshot can report loading.
	action sync.Mutex
	mu     sync.Mutex

	step    Step
	loading Step
	errs    map[Step]string

	doctors       []model.Doctor
	doctorsLoaded bool
	services      []model.MedicalService
	servicesFor   string
	dateList      []string
	datesFor      string
	slots         []model.TimeSlot
	slotsFor      string

	doctor      *model.Doctor
	service     *model.MedicalService
	date        string
	slot        *model.TimeSlot
	reason      ReasonForm
	reasonValid bool
	patientID   string
	appointment *model.Appointment
}

func NewWizard(opts Options) *Wizard {
	if opts.Validator == nil {
		opts.Validator = validator.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Wizard{
		id:       uuid.NewString(),
		deps:     opts.Deps,
		dates:    opts.Dates,
		identity: opts.Identity,
		events:   opts.Events,
		validate: opts.Validator,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		step:     StepSelectDoctor,
		errs:     make(map[Step]string),
	}
}

func (w *Wizard) ID() string { return w.id }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// expect must be called with mu held.
func (w *Wizard) expect(step Step) error {
	if w.step != step {
		w.metrics.Transition("booking", string(step), "rejected")
		return apperrors.Conflict(fmt.Sprintf("action not allowed at step %s (current step is %s)", step, w.step))
	}
	return nil
}

// begin marks step as loading and clears its error. Called with mu held.
func (w *Wizard) begin(step Step) {
	w.loading = step
	delete(w.errs, step)
}

// fail records err in the step's error slot. Called with mu held.
func (w *Wizard) fail(ctx context.Context, step Step, err error) error {
	w.loading = ""
	w.errs[step] = apperrors.UserMessage(err)
	w.metrics.Transition("booking", string(step), "error")
	w.log.WithContext(ctx).Error(err, "booking step failed", "wizard", w.id, "step", string(step))
	return err
}

func (w *Wizard) advance(from, to Step) {
	w.loading = ""
	w.step = to
	w.metrics.Transition("booking", string(from), "ok")
}

// LoadDoctors fills the doctor list at select-doctor. The list is loaded
// once; later calls reuse it.
func (w *Wizard) LoadDoctors(ctx context.Context) ([]model.Doctor, error) {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	if w.doctorsLoaded {
		list := w.doctors
		w.mu.Unlock()
		return list, nil
	}
	w.begin(StepSelectDoctor)
	w.mu.Unlock()

	doctors, err := w.deps.Doctors.List(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		return nil, w.fail(ctx, StepSelectDoctor, fmt.Errorf("failed to load doctors: %w", err))
	}
	w.loading = ""
	w.doctors = doctors
	w.doctorsLoaded = true
	return doctors, nil
}

// SelectDoctor picks a doctor and loads that doctor's active services.
func (w *Wizard) SelectDoctor(ctx context.Context, doctorID string) error {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	if err := w.expect(StepSelectDoctor); err != nil {
		w.mu.Unlock()
		return err
	}
	doctor, err := w.findDoctor(doctorID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if w.servicesFor == doctor.ID {
		w.doctor = doctor
		w.advance(StepSelectDoctor, StepSelectService)
		w.mu.Unlock()
		return nil
	}
	w.invalidateFromDoctor()
	w.doctor = nil
	w.begin(StepSelectDoctor)
	w.mu.Unlock()

	services, err := w.deps.Services.ListByDoctor(ctx, doctor.ID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		return w.fail(ctx, StepSelectDoctor, fmt.Errorf("failed to load services: %w", err))
	}
	active := make([]model.MedicalService, 0, len(services))
	for _, s := range services {
		if s.IsActive {
			active = append(active, s)
		}
	}
	w.doctor = doctor
	w.services = active
	w.servicesFor = doctor.ID
	w.advance(StepSelectDoctor, StepSelectService)
	return nil
}

// findDoctor looks in the loaded list; a doctor id that was never offered
// is rejected. Called with mu held.
func (w *Wizard) findDoctor(id string) (*model.Doctor, error) {
	if !w.doctorsLoaded {
		return nil, apperrors.Conflict("doctors have not been loaded")
	}
	for i := range w.doctors {
		if w.doctors[i].ID == id {
			d := w.doctors[i]
			return &d, nil
		}
	}
	return nil, apperrors.NotFound("doctor", nil)
}

func (w *Wizard) invalidateFromDoctor() {
	w.services, w.servicesFor = nil, ""
	w.service = nil
	w.invalidateFromService()
}

func (w *Wizard) invalidateFromService() {
	w.dateList, w.datesFor = nil, ""
	w.date = ""
	w.invalidateFromDate()
}

func (w *Wizard) invalidateFromDate() {
	w.slots, w.slotsFor = nil, ""
	w.slot = nil
}

// SelectService picks a service and loads the offered dates.
func (w *Wizard) SelectService(ctx context.Context, serviceID string) error {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	if err := w.expect(StepSelectService); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.doctor == nil {
		w.mu.Unlock()
		return apperrors.Conflict("a doctor must be selected before choosing a service")
	}
	var service *model.MedicalService
	for i := range w.services {
		if w.services[i].ID == serviceID {
			s := w.services[i]
			service = &s
		}
	}
	if service == nil {
		w.mu.Unlock()
		return apperrors.NotFound("service", nil)
	}
	if w.datesFor == service.ID {
		w.service = service
		w.advance(StepSelectService, StepSelectDate)
		w.mu.Unlock()
		return nil
	}
	doctorID := w.doctor.ID
	w.invalidateFromService()
	w.service = nil
	w.begin(StepSelectService)
	w.mu.Unlock()

	dates, err := w.dates.AvailableDates(ctx, doctorID, *service)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		return w.fail(ctx, StepSelectService, fmt.Errorf("failed to load available dates: %w", err))
	}
	w.service = service
	w.dateList = dates
	w.datesFor = service.ID
	w.advance(StepSelectService, StepSelectDate)
	return nil
}

// SelectDate picks a date and queries its slots. On failure the slot list
// stays empty and the wizard stays at select-date.
func (w *Wizard) SelectDate(ctx context.Context, date string) error {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	if err := w.expect(StepSelectDate); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.service == nil {
		w.mu.Unlock()
		return apperrors.Conflict("a service must be selected before choosing a date")
	}
	date = model.NormalizeDate(date)
	if !validator.IsISODate(date) {
		w.mu.Unlock()
		return apperrors.Validation(fmt.Errorf("date must be a YYYY-MM-DD date"))
	}
	if !contains(w.dateList, date) {
		w.mu.Unlock()
		return apperrors.Validation(fmt.Errorf("date %s is not available", date))
	}
	if w.slotsFor == date {
		w.date = date
		w.advance(StepSelectDate, StepSelectTime)
		w.mu.Unlock()
		return nil
	}
	doctorID, duration := w.doctor.ID, w.service.Duration
	w.invalidateFromDate()
	w.date = date
	w.begin(StepSelectDate)
	w.mu.Unlock()

	slots, err := w.deps.Availability.Slots(ctx, doctorID, date, duration)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.slots = []model.TimeSlot{}
		return w.fail(ctx, StepSelectDate, fmt.Errorf("failed to load time slots: %w", err))
	}
	w.slots = slots
	w.slotsFor = date
	w.advance(StepSelectDate, StepSelectTime)
	return nil
}

// SelectSlot picks one available slot. No network call.
func (w *Wizard) SelectSlot(hhmm string) error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepSelectTime); err != nil {
		return err
	}
	if w.date == "" || w.slotsFor != w.date {
		return apperrors.Conflict("a date must be selected before choosing a time")
	}
	slot, ok := availability.FindAvailable(w.slots, hhmm)
	if !ok {
		return apperrors.Validation(fmt.Errorf("time %s is not available", hhmm))
	}
	slot.Time = model.TruncateTime(slot.Time)
	w.slot = &slot
	w.advance(StepSelectTime, StepAddReason)
	return nil
}

// SubmitReason validates the reason form. Invalid input never advances.
func (w *Wizard) SubmitReason(form ReasonForm) error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepAddReason); err != nil {
		return err
	}
	if w.slot == nil {
		return apperrors.Conflict("a time must be selected before adding a reason")
	}
	form.ReasonForVisit = strings.TrimSpace(form.ReasonForVisit)
	form.Notes = strings.TrimSpace(form.Notes)
	w.reason = form
	if err := w.validate.Validate(form); err != nil {
		w.reasonValid = false
		w.errs[StepAddReason] = err.Error()
		w.metrics.Transition("booking", string(StepAddReason), "invalid")
		return apperrors.Validation(err)
	}
	delete(w.errs, StepAddReason)
	w.reasonValid = true
	w.advance(StepAddReason, StepConfirm)
	return nil
}

// Confirm submits the appointment. The wizard reaches success only after
// the API accepted it; a failure keeps it at confirm for a retry.
func (w *Wizard) Confirm(ctx context.Context) (*model.Appointment, error) {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	if err := w.expect(StepConfirm); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if w.doctor == nil || w.service == nil || w.date == "" || w.slot == nil || !w.reasonValid {
		w.mu.Unlock()
		return nil, apperrors.Conflict("booking is incomplete")
	}
	user, ok := w.identity.User()
	if !ok {
		w.mu.Unlock()
		return nil, apperrors.Unauthorized(nil)
	}
	if user.Role != model.RolePatient {
		w.mu.Unlock()
		return nil, apperrors.Forbidden("only patients can book appointments")
	}
	patientID := w.patientID
	if patientID == "" {
		patientID = user.PatientID
	}
	req := model.CreateAppointmentRequest{
		DoctorID:        w.doctor.ID,
		ServiceID:       w.service.ID,
		AppointmentDate: w.date,
		AppointmentTime: model.TruncateTime(w.slot.Time),
		Duration:        w.service.Duration,
		ReasonForVisit:  w.reason.ReasonForVisit,
		Notes:           w.reason.Notes,
	}
	w.begin(StepConfirm)
	w.mu.Unlock()

	if patientID == "" {
		patient, err := w.deps.Patients.GetByUser(ctx, user.ID)
		if err != nil {
			w.mu.Lock()
			defer w.mu.Unlock()
			return nil, w.fail(ctx, StepConfirm, fmt.Errorf("failed to resolve patient: %w", err))
		}
		patientID = patient.ID
	}
	req.PatientID = patientID
	if err := w.validate.Validate(req); err != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		return nil, w.fail(ctx, StepConfirm, apperrors.Validation(err))
	}

	appt, err := w.deps.Appointments.Create(ctx, req)

	w.mu.Lock()
	w.patientID = patientID
	if err != nil {
		defer w.mu.Unlock()
		return nil, w.fail(ctx, StepConfirm, fmt.Errorf("failed to create appointment: %w", err))
	}
	w.appointment = appt
	w.advance(StepConfirm, StepSuccess)
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.AppointmentsBooked.Inc()
	}
	w.log.WithContext(ctx).Info("appointment booked", "wizard", w.id, "appointment", appt.ID)
	if w.events != nil {
		w.events.Emit(ctx, EventAppointmentBooked, appt)
	}
	return appt, nil
}

// Back re-enters the previous step keeping every selection. Success is
// terminal.
func (w *Wizard) Back() error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.step.index()
	if w.step == StepSuccess {
		return apperrors.Conflict("booking is already complete")
	}
	if i <= 0 {
		return apperrors.Conflict("already at the first step")
	}
	w.step = Steps[i-1]
	w.metrics.Transition("booking", string(w.step), "back")
	return nil
}

// Next moves forward over data already loaded, without any network call.
// It refuses when the current step's selection is missing or its data for
// the next step was never loaded.
func (w *Wizard) Next() error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	var ok bool
	switch w.step {
	case StepSelectDoctor:
		ok = w.doctor != nil && w.servicesFor == w.doctor.ID
	case StepSelectService:
		ok = w.service != nil && w.datesFor == w.service.ID
	case StepSelectDate:
		ok = w.date != "" && w.slotsFor == w.date
	case StepSelectTime:
		ok = w.slot != nil
	case StepAddReason:
		ok = w.reasonValid
	}
	if !ok {
		return apperrors.Conflict(fmt.Sprintf("cannot advance from %s", w.step))
	}
	next := Steps[w.step.index()+1]
	w.advance(w.step, next)
	return nil
}

// Snapshot is a read-only view of the wizard for rendering.
type Snapshot struct {
	ID             string                   `json:"id"`
	Step           Step                     `json:"step"`
	Loading        bool                     `json:"loading"`
	Error          string                   `json:"error,omitempty"`
	Doctors        []model.Doctor           `json:"doctors,omitempty"`
	Services       []model.MedicalService   `json:"services,omitempty"`
	AvailableDates []string                 `json:"availableDates,omitempty"`
	Slots          *availability.SlotPicker `json:"slots,omitempty"`
	Doctor         *model.Doctor            `json:"doctor,omitempty"`
	Service        *model.MedicalService    `json:"service,omitempty"`
	Date           string                   `json:"date,omitempty"`
	Time           string                   `json:"time,omitempty"`
	Reason         *ReasonForm              `json:"reason,omitempty"`
	Appointment    *model.Appointment       `json:"appointment,omitempty"`
	CanGoBack      bool                     `json:"canGoBack"`
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		ID:             w.id,
		Step:           w.step,
		Loading:        w.loading == w.step,
		Error:          w.errs[w.step],
		Doctors:        w.doctors,
		Services:       w.services,
		AvailableDates: w.dateList,
		Doctor:         w.doctor,
		Service:        w.service,
		Date:           w.date,
		Appointment:    w.appointment,
		CanGoBack:      w.step.index() > 0 && w.step != StepSuccess,
	}
	if w.slotsFor != "" || w.step == StepSelectTime || w.errs[StepSelectDate] != "" {
		picker := availability.GroupSlots(w.slots)
		s.Slots = &picker
	}
	if w.slot != nil {
		s.Time = w.slot.Time
	}
	if w.reason.ReasonForVisit != "" || w.reason.Notes != "" {
		r := w.reason
		s.Reason = &r
	}
	return s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
