package model

import "strings"

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "SCHEDULED"
	AppointmentStatusConfirmed   AppointmentStatus = "CONFIRMED"
	AppointmentStatusCancelled   AppointmentStatus = "CANCELLED"
	AppointmentStatusCompleted   AppointmentStatus = "COMPLETED"
	AppointmentStatusNoShow      AppointmentStatus = "NO_SHOW"
	AppointmentStatusRescheduled AppointmentStatus = "RESCHEDULED"
)

// Terminal reports whether no further action is possible.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCancelled, AppointmentStatusCompleted, AppointmentStatusNoShow:
		return true
	}
	return false
}

// AppointmentAction is a status transition endpoint on the clinic API.
type AppointmentAction string

const (
	ActionConfirm    AppointmentAction = "confirm"
	ActionCancel     AppointmentAction = "cancel"
	ActionComplete   AppointmentAction = "complete"
	ActionNoShow     AppointmentAction = "no-show"
	ActionReschedule AppointmentAction = "reschedule"
)

var allowedFrom = map[AppointmentAction][]AppointmentStatus{
	ActionConfirm:    {AppointmentStatusScheduled, AppointmentStatusRescheduled},
	ActionCancel:     {AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusRescheduled},
	ActionComplete:   {AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusRescheduled},
	ActionNoShow:     {AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusRescheduled},
	ActionReschedule: {AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusRescheduled},
}

// ParseAction maps a path segment to a known action.
func ParseAction(s string) (AppointmentAction, bool) {
	a := AppointmentAction(strings.ToLower(s))
	_, ok := allowedFrom[a]
	return a, ok
}

// CanApply reports whether action is legal from status.
func (a AppointmentAction) CanApply(status AppointmentStatus) bool {
	for _, s := range allowedFrom[a] {
		if s == status {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID                 string            `json:"id"`
	PatientID          string            `json:"patientId"`
	DoctorID           string            `json:"doctorId"`
	ServiceID          string            `json:"serviceId"`
	AppointmentDate    string            `json:"appointmentDate"`
	AppointmentTime    string            `json:"appointmentTime"`
	Duration           int               `json:"duration"`
	Status             AppointmentStatus `json:"status"`
	ReasonForVisit     string            `json:"reasonForVisit,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CancellationReason string            `json:"cancellationReason,omitempty"`
	Doctor             *Doctor           `json:"doctor,omitempty"`
	Patient            *Patient          `json:"patient,omitempty"`
	Service            *MedicalService   `json:"service,omitempty"`
}

// Date returns the appointment date cut to YYYY-MM-DD.
func (a Appointment) Date() string {
	return NormalizeDate(a.AppointmentDate)
}

type CreateAppointmentRequest struct {
	PatientID       string `json:"patientId" validate:"required"`
	DoctorID        string `json:"doctorId" validate:"required"`
	ServiceID       string `json:"serviceId" validate:"required"`
	AppointmentDate string `json:"appointmentDate" validate:"required,isodate"`
	AppointmentTime string `json:"appointmentTime" validate:"required,hhmm"`
	Duration        int    `json:"duration" validate:"gt=0"`
	ReasonForVisit  string `json:"reasonForVisit" validate:"required,max=500"`
	Notes           string `json:"notes,omitempty" validate:"max=1000"`
}

// ActionRequest is the optional body of a status transition.
type ActionRequest struct {
	CancellationReason string `json:"cancellationReason,omitempty" validate:"max=500"`
	AppointmentDate    string `json:"appointmentDate,omitempty" validate:"omitempty,isodate"`
	AppointmentTime    string `json:"appointmentTime,omitempty" validate:"omitempty,hhmm"`
}

// TimeSlot is one server-computed slot.
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Duration  int    `json:"duration"`
	Reason    string `json:"reason,omitempty"`
}
