package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type AppointmentsClient struct{ c *Client }

func (a *AppointmentsClient) Create(ctx context.Context, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	var out model.Appointment
	if err := a.c.do(ctx, http.MethodPost, "/appointments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AppointmentsClient) Get(ctx context.Context, id string) (*model.Appointment, error) {
	var out model.Appointment
	if err := a.c.do(ctx, http.MethodGet, "/appointments/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AppointmentsClient) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	var out []model.Appointment
	if err := a.c.do(ctx, http.MethodGet, "/appointments/patient/"+escape(patientID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AppointmentsClient) ListByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	var out []model.Appointment
	if err := a.c.do(ctx, http.MethodGet, "/appointments/doctor/"+escape(doctorID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply calls PATCH /appointments/:id/<action>. body may be nil.
func (a *AppointmentsClient) Apply(ctx context.Context, id string, action model.AppointmentAction, body *model.ActionRequest) (*model.Appointment, error) {
	var in interface{}
	if body != nil {
		in = body
	}
	var out model.Appointment
	path := fmt.Sprintf("/appointments/%s/%s", escape(id), action)
	if err := a.c.do(ctx, http.MethodPatch, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
