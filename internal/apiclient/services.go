package apiclient

import (
	"context"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type ServicesClient struct{ c *Client }

func (s *ServicesClient) ListByDoctor(ctx context.Context, doctorID string) ([]model.MedicalService, error) {
	var out []model.MedicalService
	if err := s.c.do(ctx, http.MethodGet, "/services/doctor/"+escape(doctorID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ServicesClient) Create(ctx context.Context, req model.CreateServiceRequest) (*model.MedicalService, error) {
	var out model.MedicalService
	if err := s.c.do(ctx, http.MethodPost, "/services", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ServicesClient) Update(ctx context.Context, id string, req model.UpdateServiceRequest) (*model.MedicalService, error) {
	var out model.MedicalService
	if err := s.c.do(ctx, http.MethodPatch, "/services/"+escape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ServicesClient) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, "/services/"+escape(id), nil, nil)
}
