package booking

import (
	"context"

	"github.com/jwalitptl/clinic-portal/internal/apiclient"
	"github.com/jwalitptl/clinic-portal/internal/model"
)

type DoctorLister interface {
	List(ctx context.Context) ([]model.Doctor, error)
}

type ServiceLister interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]model.MedicalService, error)
}

type SlotFinder interface {
	Slots(ctx context.Context, doctorID, date string, duration int) ([]model.TimeSlot, error)
}

type AppointmentCreator interface {
	Create(ctx context.Context, req model.CreateAppointmentRequest) (*model.Appointment, error)
}

type PatientFinder interface {
	GetByUser(ctx context.Context, userID string) (*model.Patient, error)
}

type ScheduleLister interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]model.DoctorSchedule, error)
}

type ExceptionLister interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]model.ScheduleException, error)
}

// Deps are the resource clients the wizard calls.
type Deps struct {
	Doctors      DoctorLister
	Services     ServiceLister
	Availability SlotFinder
	Appointments AppointmentCreator
	Patients     PatientFinder
}

// DepsFromClient wires Deps to an authenticated API client.
func DepsFromClient(c *apiclient.Client) Deps {
	return Deps{
		Doctors:      c.Doctors,
		Services:     c.Services,
		Availability: c.Availability,
		Appointments: c.Appointments,
		Patients:     c.Patients,
	}
}

// Identity is the logged-in user the wizard books for.
type Identity interface {
	User() (model.User, bool)
}

// Events receives domain events. Emit must not block on delivery.
type Events interface {
	Emit(ctx context.Context, eventType string, payload interface{})
}
