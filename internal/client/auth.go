package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/robfarr/markpilot/internal/models"
)

var validate = validator.New()

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SignupInput is the account-creation payload.
type SignupInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// authResponse is the backend's shape for login/signup/me.
type authResponse struct {
	User *models.User `json:"user"`
}

// Login authenticates and establishes the session cookie.
func (c *Client) Login(ctx context.Context, creds Credentials) (*models.User, error) {
	if err := validateInput(creds); err != nil {
		return nil, err
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &APIError{Status: http.StatusOK, Message: "login response missing user"}
	}
	return resp.User, nil
}

// Signup creates an account and establishes the session cookie.
func (c *Client) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", input, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &APIError{Status: http.StatusOK, Message: "signup response missing user"}
	}
	return resp.User, nil
}

// Logout invalidates the server session and drops the local cookie.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	// The local cookie is gone either way.
	c.SetSession("")
	return err
}

// CurrentUser returns the user the server-side session belongs to. A 401
// means the session cookie is no longer valid, whatever the local cache says.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// validateInput converts validator failures into pre-flight ValidationErrors.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &ValidationError{Message: err.Error()}
}
