package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/validator"
)

// Session is what the appointment service needs from a portal session.
type Session interface {
	User() (model.User, bool)
	Client() *apiclient.Client
	PatientID(ctx context.Context) (string, error)
	DoctorID(ctx context.Context) (string, error)
}

type Events interface {
	Emit(ctx context.Context, eventType string, payload interface{})
}

// Filter narrows a listing. Zero values mean no filter.
type Filter struct {
	Status   model.AppointmentStatus
	From     string
	To       string
	Upcoming bool
}

// ActionForm is the body of a status action.
type ActionForm struct {
	CancellationReason string `json:"cancellationReason,omitempty" validate:"max=500"`
	AppointmentDate    string `json:"appointmentDate,omitempty"`
	AppointmentTime    string `json:"appointmentTime,omitempty"`
}

type Service struct {
	events   Events
	validate validator.Validator
	log      *logger.Logger
	now      func() time.Time
}

func NewService(events Events, v validator.Validator, log *logger.Logger) *Service {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{events: events, validate: v, log: log, now: time.Now}
}

// List returns the session user's appointments: a patient's own, or the
// ones booked with a doctor. Sorted by date and time.
func (s *Service) List(ctx context.Context, sess Session, f Filter) ([]model.Appointment, error) {
	user, ok := sess.User()
	if !ok {
		return nil, apperrors.Unauthorized(nil)
	}
	client := sess.Client()

	var (
		list []model.Appointment
		err  error
	)
	switch user.Role {
	case model.RolePatient:
		id, idErr := sess.PatientID(ctx)
		if idErr != nil {
			return nil, idErr
		}
		list, err = client.Appointments.ListByPatient(ctx, id)
	case model.RoleDoctor:
		id, idErr := sess.DoctorID(ctx)
		if idErr != nil {
			return nil, idErr
		}
		list, err = client.Appointments.ListByDoctor(ctx, id)
	default:
		return nil, apperrors.Forbidden("appointments are listed for patients and doctors only")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return s.apply(list, f), nil
}

func (s *Service) apply(list []model.Appointment, f Filter) []model.Appointment {
	today := model.FormatDate(s.now())
	out := make([]model.Appointment, 0, len(list))
	for _, a := range list {
		date := a.Date()
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.From != "" && date < f.From {
			continue
		}
		if f.To != "" && date > f.To {
			continue
		}
		if f.Upcoming && (date < today || a.Status.Terminal()) {
			continue
		}
		out = append(out, a)
	}
	SortChronologically(out)
	return out
}

// SortChronologically orders appointments by date, then time.
func SortChronologically(list []model.Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date() != list[j].Date() {
			return list[i].Date() < list[j].Date()
		}
		return model.TruncateTime(list[i].AppointmentTime) < model.TruncateTime(list[j].AppointmentTime)
	})
}

// Get returns one appointment the session user takes part in.
func (s *Service) Get(ctx context.Context, sess Session, id string) (*model.Appointment, error) {
	appt, err := sess.Client().Appointments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if err := s.checkOwner(ctx, sess, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) checkOwner(ctx context.Context, sess Session, appt *model.Appointment) error {
	user, ok := sess.User()
	if !ok {
		return apperrors.Unauthorized(nil)
	}
	switch user.Role {
	case model.RolePatient:
		id, err := sess.PatientID(ctx)
		if err != nil {
			return err
		}
		if appt.PatientID != id {
			return apperrors.NotFound("appointment", nil)
		}
	case model.RoleDoctor:
		id, err := sess.DoctorID(ctx)
		if err != nil {
			return err
		}
		if appt.DoctorID != id {
			return apperrors.NotFound("appointment", nil)
		}
	}
	return nil
}

// Allowed lists the actions role may take on appt right now.
func Allowed(role model.Role, appt model.Appointment) []model.AppointmentAction {
	candidates := []model.AppointmentAction{
		model.ActionConfirm, model.ActionCancel, model.ActionComplete,
		model.ActionNoShow, model.ActionReschedule,
	}
	if role == model.RolePatient {
		candidates = []model.AppointmentAction{model.ActionCancel}
	}
	var out []model.AppointmentAction
	for _, a := range candidates {
		if a.CanApply(appt.Status) {
			out = append(out, a)
		}
	}
	return out
}

// Apply runs a status action. Illegal transitions, a patient attempting
// anything but cancel, and an incomplete reschedule never reach the API.
func (s *Service) Apply(ctx context.Context, sess Session, id string, action model.AppointmentAction, form ActionForm) (*model.Appointment, error) {
	user, ok := sess.User()
	if !ok {
		return nil, apperrors.Unauthorized(nil)
	}
	if _, known := model.ParseAction(string(action)); !known {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown action %q", action), nil)
	}
	if user.Role == model.RolePatient && action != model.ActionCancel {
		return nil, apperrors.Forbidden("patients can only cancel appointments")
	}

	form.CancellationReason = strings.TrimSpace(form.CancellationReason)
	if err := s.validate.Validate(form); err != nil {
		return nil, apperrors.Validation(err)
	}
	var body *model.ActionRequest
	switch action {
	case model.ActionReschedule:
		date := model.NormalizeDate(form.AppointmentDate)
		tm := model.TruncateTime(form.AppointmentTime)
		if !validator.IsISODate(date) || !validator.IsHHMM(tm) {
			return nil, apperrors.Validation(fmt.Errorf("reschedule needs appointmentDate YYYY-MM-DD and appointmentTime HH:MM"))
		}
		body = &model.ActionRequest{AppointmentDate: date, AppointmentTime: tm}
	case model.ActionCancel:
		if form.CancellationReason != "" {
			body = &model.ActionRequest{CancellationReason: form.CancellationReason}
		}
	}

	current, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if !action.CanApply(current.Status) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot %s an appointment in status %s", action, current.Status))
	}

	updated, err := sess.Client().Appointments.Apply(ctx, id, action, body)
	if err != nil {
		return nil, fmt.Errorf("failed to %s appointment: %w", action, err)
	}
	s.log.WithContext(ctx).Info("appointment updated", "appointment", id, "action", string(action), "status", string(updated.Status))
	if s.events != nil {
		s.events.Emit(ctx, "appointment."+string(action), updated)
	}
	return updated, nil
}
