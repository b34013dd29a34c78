package api

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/client"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
)

// Doer sends a request through the gateway.
type Doer interface {
	Do(ctx context.Context, req *client.Request) (*resty.Response, error)
}

// AuthAPI talks to the /auth endpoints. It satisfies session.Authenticator.
type AuthAPI struct {
	gw Doer
}

func NewAuthAPI(gw Doer) *AuthAPI {
	return &AuthAPI{gw: gw}
}

// Login authenticates user with email and password
func (a *AuthAPI) Login(ctx context.Context, creds session.Credentials) (*session.LoginResult, error) {
	logger.Debug("Attempting login", "email", creds.Email)

	resp, err := a.gw.Do(ctx, &client.Request{
		Method:   http.MethodPost,
		Path:     "/auth/login",
		Body:     LoginRequest{Email: creds.Email, Password: creds.Password},
		NoReauth: true,
	})

	var loginResp LoginResponse
	if err := decode(resp, err, &loginResp); err != nil {
		return nil, err
	}

	logger.Debug("Login successful", "user_id", loginResp.User.ID)
	return toLoginResult(&loginResp), nil
}

// Logout ends the server session and returns the server's message.
func (a *AuthAPI) Logout(ctx context.Context) (string, error) {
	logger.Debug("Logging out")

	resp, err := a.gw.Do(ctx, &client.Request{
		Method:   http.MethodPost,
		Path:     "/auth/logout",
		NoReauth: true,
	})

	var out MessageResponse
	if err := decode(resp, err, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ChangePassword changes the password. The backend bumps the token version,
// so every session, this one included, must log in again.
func (a *AuthAPI) ChangePassword(ctx context.Context, current, next string) (string, error) {
	resp, err := a.gw.Do(ctx, &client.Request{
		Method: http.MethodPost,
		Path:   "/auth/change-password",
		Body:   ChangePasswordRequest{CurrentPassword: current, NewPassword: next},
	})

	var out MessageResponse
	if err := decode(resp, err, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func toLoginResult(r *LoginResponse) *session.LoginResult {
	version := 0
	switch {
	case r.TokenVersion != nil:
		version = *r.TokenVersion
	case r.User.TokenVersion != nil:
		version = *r.User.TokenVersion
	}

	user := session.User{
		ID:    r.User.ID,
		Name:  r.User.Name,
		Email: r.User.Email,
		Role:  r.User.Role,
	}
	if r.User.Department != nil {
		user.Department = &session.DepartmentRef{ID: r.User.Department.ID, Name: r.User.Department.Name}
	}

	return &session.LoginResult{User: user, TokenVersion: version, Message: r.Message}
}
