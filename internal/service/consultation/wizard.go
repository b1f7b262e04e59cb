// Package consultation implements the four-step consultation registration
// wizard. The consultation is created once at the last step; when it came
// from an appointment, the appointment is then completed by a second call.
package consultation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

type Step string

const (
	StepVitalSigns   Step = "vital-signs"
	StepDiagnosis    Step = "diagnosis"
	StepPrescription Step = "prescription"
	StepSummary      Step = "summary"
)

var Steps = []Step{StepVitalSigns, StepDiagnosis, StepPrescription, StepSummary}

func (s Step) index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Phase tracks the submission, independent of the step.
type Phase string

const (
	PhaseEditing Phase = "editing"
	// PhasePendingCompletion means the consultation exists but its
	// appointment has not been marked completed yet.
	PhasePendingCompletion Phase = "pending-completion"
	PhaseCompleted         Phase = "completed"
)

// AppointmentsPath is where a wizard opened without a patient sends the user.
const AppointmentsPath = "/doctor/appointments"

type DiagnosisForm struct {
	ChiefComplaint string `json:"chiefComplaint" validate:"required,max=1000"`
	Diagnosis      string `json:"diagnosis" validate:"required,max=2000"`
	TreatmentPlan  string `json:"treatmentPlan,omitempty" validate:"max=2000"`
}

type PrescriptionForm struct {
	Prescriptions []model.Prescription `json:"prescriptions" validate:"max=20,dive"`
}

type SummaryForm struct {
	Notes        string `json:"notes,omitempty" validate:"max=5000"`
	FollowUpDate string `json:"followUpDate,omitempty" validate:"omitempty,isodate"`
}

// Data accumulates every step's input.
type Data struct {
	VitalSigns    model.VitalSigns     `json:"vitalSigns"`
	Diagnosis     DiagnosisForm        `json:"diagnosis"`
	Prescriptions []model.Prescription `json:"prescriptions"`
	Summary       SummaryForm          `json:"summary"`
}

// Target is what the consultation is registered for.
type Target struct {
	PatientID     string `json:"patientId"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

type ConsultationCreator interface {
	Create(ctx context.Context, req model.CreateConsultationRequest) (*model.Consultation, error)
}

type AppointmentCompleter interface {
	Get(ctx context.Context, id string) (*model.Appointment, error)
	Apply(ctx context.Context, id string, action model.AppointmentAction, body *model.ActionRequest) (*model.Appointment, error)
}

// Reconciler retries completions in the background. Track registers a
// retry; Done withdraws it.
type Reconciler interface {
	Track(key string, retry func(ctx context.Context) error)
	Done(key string)
}

type Options struct {
	Target        Target
	DoctorID      string
	Consultations ConsultationCreator
	Appointments  AppointmentCompleter
	Reconciler    Reconciler
	Validator     validator.Validator
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

type Wizard struct {
	id            string
	target        Target
	doctorID      string
	consultations ConsultationCreator
	appointments  AppointmentCompleter
	reconciler    Reconciler
	validate      validator.Validator
	log           *logger.Logger
	metrics       *metrics.Metrics

	action sync.Mutex
	mu     sync.Mutex

	step         Step
	done         map[Step]bool
	phase        Phase
	submitting   bool
	errs         map[Step]string
	data         Data
	consultation *model.Consultation
}

// NewWizard fails with a navigation error when no patient is given.
func NewWizard(opts Options) (*Wizard, error) {
	opts.Target.PatientID = strings.TrimSpace(opts.Target.PatientID)
	if opts.Target.PatientID == "" {
		return nil, apperrors.Navigation("a patient is required to register a consultation", AppointmentsPath)
	}
	if opts.Validator == nil {
		opts.Validator = validator.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Wizard{
		id:            uuid.NewString(),
		target:        opts.Target,
		doctorID:      opts.DoctorID,
		consultations: opts.Consultations,
		appointments:  opts.Appointments,
		reconciler:    opts.Reconciler,
		validate:      opts.Validator,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		step:          StepVitalSigns,
		done:          make(map[Step]bool),
		phase:         PhaseEditing,
		errs:          make(map[Step]string),
	}, nil
}

func (w *Wizard) ID() string { return w.id }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// expect must be called with mu held.
func (w *Wizard) expect(step Step) error {
	if w.phase != PhaseEditing {
		return apperrors.Conflict("consultation has already been submitted")
	}
	if w.step != step {
		w.metrics.Transition("consultation", string(step), "rejected")
		return apperrors.Conflict(fmt.Sprintf("action not allowed at step %s (current step is %s)", step, w.step))
	}
	return nil
}

// invalid records a validation failure on the step. Called with mu held.
func (w *Wizard) invalid(step Step, err error) error {
	w.errs[step] = err.Error()
	w.metrics.Transition("consultation", string(step), "invalid")
	return apperrors.Validation(err)
}

func (w *Wizard) complete(step Step) {
	delete(w.errs, step)
	w.done[step] = true
	w.metrics.Transition("consultation", string(step), "ok")
	if i := step.index(); i < len(Steps)-1 {
		w.step = Steps[i+1]
	}
}

// SubmitVitals records the vital signs. BMI is always recomputed from
// weight and height; any BMI sent in is ignored.
func (w *Wizard) SubmitVitals(v model.VitalSigns) error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepVitalSigns); err != nil {
		return err
	}
	v.BMI = BMI(v.Weight, v.Height)
	if err := w.validate.Validate(v); err != nil {
		return w.invalid(StepVitalSigns, err)
	}
	if err := checkBloodPressure(v); err != nil {
		return w.invalid(StepVitalSigns, err)
	}
	w.data.VitalSigns = v
	w.complete(StepVitalSigns)
	return nil
}

func (w *Wizard) SubmitDiagnosis(form DiagnosisForm) error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepDiagnosis); err != nil {
		return err
	}
	form.ChiefComplaint = strings.TrimSpace(form.ChiefComplaint)
	form.Diagnosis = strings.TrimSpace(form.Diagnosis)
	form.TreatmentPlan = strings.TrimSpace(form.TreatmentPlan)
	if err := w.validate.Validate(form); err != nil {
		return w.invalid(StepDiagnosis, err)
	}
	w.data.Diagnosis = form
	w.complete(StepDiagnosis)
	return nil
}

// SubmitPrescriptions records the medication list; an empty list is valid.
func (w *Wizard) SubmitPrescriptions(form PrescriptionForm) error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.expect(StepPrescription); err != nil {
		return err
	}
	list := make([]model.Prescription, 0, len(form.Prescriptions))
	for _, p := range form.Prescriptions {
		p.Medication = strings.TrimSpace(p.Medication)
		p.Dosage = strings.TrimSpace(p.Dosage)
		p.Frequency = strings.TrimSpace(p.Frequency)
		p.Duration = strings.TrimSpace(p.Duration)
		p.Instructions = strings.TrimSpace(p.Instructions)
		list = append(list, p)
	}
	form.Prescriptions = list
	if err := w.validate.Validate(form); err != nil {
		return w.invalid(StepPrescription, err)
	}
	w.data.Prescriptions = list
	w.complete(StepPrescription)
	return nil
}

// Back returns to the previous step keeping every entered value.
func (w *Wizard) Back() error {
	w.action.Lock()
	defer w.action.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != PhaseEditing {
		return apperrors.Conflict("consultation has already been submitted")
	}
	i := w.step.index()
	if i <= 0 {
		return apperrors.Conflict("already at the first step")
	}
	w.step = Steps[i-1]
	w.metrics.Transition("consultation", string(w.step), "back")
	return nil
}

// request builds the create request from the accumulated data. Called
// with mu held.
func (w *Wizard) request() model.CreateConsultationRequest {
	return model.CreateConsultationRequest{
		VitalSigns:     w.data.VitalSigns,
		AppointmentID:  w.target.AppointmentID,
		PatientID:      w.target.PatientID,
		DoctorID:       w.doctorID,
		ChiefComplaint: w.data.Diagnosis.ChiefComplaint,
		Diagnosis:      w.data.Diagnosis.Diagnosis,
		TreatmentPlan:  w.data.Diagnosis.TreatmentPlan,
		Prescriptions:  FlattenPrescriptions(w.data.Prescriptions),
		Notes:          w.data.Summary.Notes,
		FollowUpDate:   w.data.Summary.FollowUpDate,
	}
}

// Submit validates the summary, creates the consultation and, for an
// appointment-backed consultation, completes the appointment. When the
// second call fails the wizard is left in PhasePendingCompletion with the
// retry registered; the error is still returned.
func (w *Wizard) Submit(ctx context.Context, form SummaryForm) (*model.Consultation, error) {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	if err := w.expect(StepSummary); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	for _, s := range Steps[:len(Steps)-1] {
		if !w.done[s] {
			w.mu.Unlock()
			return nil, apperrors.Conflict(fmt.Sprintf("step %s is incomplete", s))
		}
	}
	form.Notes = strings.TrimSpace(form.Notes)
	form.FollowUpDate = strings.TrimSpace(form.FollowUpDate)
	if err := w.validate.Validate(form); err != nil {
		defer w.mu.Unlock()
		return nil, w.invalid(StepSummary, err)
	}
	w.data.Summary = form
	req := w.request()
	delete(w.errs, StepSummary)
	w.submitting = true
	w.mu.Unlock()

	cons, err := w.consultations.Create(ctx, req)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.errs[StepSummary] = apperrors.UserMessage(err)
		w.metrics.Transition("consultation", string(StepSummary), "error")
		w.mu.Unlock()
		w.log.WithContext(ctx).Error(err, "failed to create consultation", "wizard", w.id, "patient", req.PatientID)
		return nil, fmt.Errorf("failed to create consultation: %w", err)
	}
	w.consultation = cons
	w.done[StepSummary] = true
	w.log.WithContext(ctx).Info("consultation created", "wizard", w.id, "consultation", cons.ID)
	if w.target.AppointmentID == "" {
		w.phase = PhaseCompleted
		w.metrics.Transition("consultation", string(StepSummary), "ok")
		w.mu.Unlock()
		return cons, nil
	}
	w.phase = PhasePendingCompletion
	w.mu.Unlock()

	if err := w.finish(ctx); err != nil {
		if w.reconciler != nil {
			w.reconciler.Track(w.target.AppointmentID, w.RetryCompletion)
		}
		return cons, err
	}
	return cons, nil
}

// RetryCompletion completes the appointment of a consultation left pending.
// It is a no-op once completed.
func (w *Wizard) RetryCompletion(ctx context.Context) error {
	w.action.Lock()
	defer w.action.Unlock()

	w.mu.Lock()
	switch w.phase {
	case PhaseCompleted:
		w.mu.Unlock()
		return nil
	case PhaseEditing:
		w.mu.Unlock()
		return apperrors.Conflict("consultation has not been submitted")
	}
	w.mu.Unlock()

	if err := w.finish(ctx); err != nil {
		return err
	}
	if w.reconciler != nil {
		w.reconciler.Done(w.target.AppointmentID)
	}
	return nil
}

// finish runs the completion call and updates the phase.
func (w *Wizard) finish(ctx context.Context) error {
	err := CompleteAppointment(ctx, w.appointments, w.target.AppointmentID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.errs[StepSummary] = apperrors.UserMessage(err)
		w.metrics.Transition("consultation", "complete-appointment", "error")
		w.log.WithContext(ctx).Error(err, "consultation saved but appointment not completed",
			"wizard", w.id, "appointment", w.target.AppointmentID)
		return fmt.Errorf("failed to complete appointment: %w", err)
	}
	delete(w.errs, StepSummary)
	w.phase = PhaseCompleted
	w.metrics.Transition("consultation", "complete-appointment", "ok")
	return nil
}

// CompleteAppointment marks an appointment completed. An appointment that
// is already completed counts as success; a cancelled or no-show one
// cannot be completed.
func CompleteAppointment(ctx context.Context, appts AppointmentCompleter, id string) error {
	appt, err := appts.Get(ctx, id)
	if err != nil {
		return err
	}
	if appt.Status == model.AppointmentStatusCompleted {
		return nil
	}
	if !model.ActionComplete.CanApply(appt.Status) {
		return apperrors.Conflict(fmt.Sprintf("appointment in status %s cannot be completed", appt.Status))
	}
	_, err = appts.Apply(ctx, id, model.ActionComplete, nil)
	return err
}

// Snapshot is a read-only view for rendering.
type Snapshot struct {
	ID           string              `json:"id"`
	Step         Step                `json:"step"`
	Phase        Phase               `json:"phase"`
	Submitting   bool                `json:"submitting"`
	Error        string              `json:"error,omitempty"`
	Target       Target              `json:"target"`
	Data         Data                `json:"data"`
	Consultation *model.Consultation `json:"consultation,omitempty"`
	CanGoBack    bool                `json:"canGoBack"`
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		ID:           w.id,
		Step:         w.step,
		Phase:        w.phase,
		Submitting:   w.submitting,
		Error:        w.errs[w.step],
		Target:       w.target,
		Data:         w.data,
		Consultation: w.consultation,
		CanGoBack:    w.phase == PhaseEditing && w.step.index() > 0,
	}
}
