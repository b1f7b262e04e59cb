package apiclient

import (
	"context"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type DoctorsClient struct{ c *Client }

func (d *DoctorsClient) List(ctx context.Context) ([]model.Doctor, error) {
	var out []model.Doctor
	if err := d.c.do(ctx, http.MethodGet, "/doctors", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DoctorsClient) Get(ctx context.Context, id string) (*model.Doctor, error) {
	var out model.Doctor
	if err := d.c.do(ctx, http.MethodGet, "/doctors/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByUser resolves the doctor profile owned by a user account.
func (d *DoctorsClient) GetByUser(ctx context.Context, userID string) (*model.Doctor, error) {
	var out model.Doctor
	if err := d.c.do(ctx, http.MethodGet, "/doctors/user/"+escape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
