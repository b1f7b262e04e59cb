package apiclient

import (
	"context"
	"net/http"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

type AuthClient struct{ c *Client }

// Login exchanges credentials for an access token. A 401 here is reported
// to the caller as an inline error and never triggers the forced logout.
func (a *AuthClient) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	var out model.LoginResponse
	if err := a.c.do(ctx, http.MethodPost, "/auth/login", req, &out, withoutAuthHook()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the user behind the current token.
func (a *AuthClient) Profile(ctx context.Context) (*model.RemoteUser, error) {
	var out model.RemoteUser
	if err := a.c.do(ctx, http.MethodGet, "/auth/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
