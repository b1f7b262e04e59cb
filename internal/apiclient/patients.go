package apiclient

import (
	"context"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type PatientsClient struct{ c *Client }

func (p *PatientsClient) Get(ctx context.Context, id string) (*model.Patient, error) {
	var out model.Patient
	if err := p.c.do(ctx, http.MethodGet, "/patients/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PatientsClient) GetByUser(ctx context.Context, userID string) (*model.Patient, error) {
	var out model.Patient
	if err := p.c.do(ctx, http.MethodGet, "/patients/user/"+escape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
