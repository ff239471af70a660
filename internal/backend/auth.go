package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"contxtra_bot/internal/model"
)

// ErrInvalidCredentials is returned when sign-in is rejected.
var ErrInvalidCredentials = errors.New("invalid email or password")

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (model.Session, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password",
		signInRequest{Email: email, Password: password}, &out, nil)
	if rejected(err) {
		return model.Session{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("sign in: %w", err)
	}
	return c.session(out)
}

// Refresh exchanges a refresh token for a new session. A rejected token
// returns an error matching ErrUnauthorized.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.Session, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token",
		refreshRequest{RefreshToken: refreshToken}, &out, nil)
	if rejected(err) {
		return model.Session{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("refresh session: %w", err)
	}
	return c.session(out)
}

// rejected reports a GoTrue invalid_grant style response.
func rejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized
}

func (c *Client) session(out tokenResponse) (model.Session, error) {
	if out.User.ID == "" || out.AccessToken == "" {
		return model.Session{}, errors.New("token response missing user or access token")
	}
	expiresAt := out.ExpiresAt
	if expiresAt == 0 && out.ExpiresIn > 0 {
		expiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second).Unix()
	}
	return model.Session{
		UserID:       out.User.ID,
		Email:        out.User.Email,
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
