package apiclient

import (
	"context"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type ConsultationsClient struct{ c *Client }

func (s *ConsultationsClient) Create(ctx context.Context, req model.CreateConsultationRequest) (*model.Consultation, error) {
	var out model.Consultation
	if err := s.c.do(ctx, http.MethodPost, "/consultations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConsultationsClient) Get(ctx context.Context, id string) (*model.Consultation, error) {
	var out model.Consultation
	if err := s.c.do(ctx, http.MethodGet, "/consultations/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConsultationsClient) ListByPatient(ctx context.Context, patientID string) ([]model.Consultation, error) {
	var out []model.Consultation
	if err := s.c.do(ctx, http.MethodGet, "/consultations/patient/"+escape(patientID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
