package apiclient

import (
	"context"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type SchedulesClient struct{ c *Client }

func (s *SchedulesClient) ListByDoctor(ctx context.Context, doctorID string) ([]model.DoctorSchedule, error) {
	var out []model.DoctorSchedule
	if err := s.c.do(ctx, http.MethodGet, "/schedules/doctor/"+escape(doctorID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SchedulesClient) Create(ctx context.Context, req model.CreateScheduleRequest) (*model.DoctorSchedule, error) {
	var out model.DoctorSchedule
	if err := s.c.do(ctx, http.MethodPost, "/schedules", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SchedulesClient) Update(ctx context.Context, id string, req model.UpdateScheduleRequest) (*model.DoctorSchedule, error) {
	var out model.DoctorSchedule
	if err := s.c.do(ctx, http.MethodPatch, "/schedules/"+escape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetActive calls the activate or deactivate endpoint.
func (s *SchedulesClient) SetActive(ctx context.Context, id string, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	return s.c.do(ctx, http.MethodPatch, "/schedules/"+escape(id)+"/"+action, nil, nil)
}

func (s *SchedulesClient) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, "/schedules/"+escape(id), nil, nil)
}

type ExceptionsClient struct{ c *Client }

func (e *ExceptionsClient) ListByDoctor(ctx context.Context, doctorID string) ([]model.ScheduleException, error) {
	var out []model.ScheduleException
	if err := e.c.do(ctx, http.MethodGet, "/schedule-exceptions/doctor/"+escape(doctorID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ExceptionsClient) Create(ctx context.Context, req model.CreateExceptionRequest) (*model.ScheduleException, error) {
	var out model.ScheduleException
	if err := e.c.do(ctx, http.MethodPost, "/schedule-exceptions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *ExceptionsClient) Delete(ctx context.Context, id string) error {
	return e.c.do(ctx, http.MethodDelete, "/schedule-exceptions/"+escape(id), nil, nil)
}
