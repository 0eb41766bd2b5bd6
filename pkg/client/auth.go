package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/domain"
)

// TokenResponse is returned by the login and refresh endpoints.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"` // seconds
	User         *AuthUser `json:"user,omitempty"`
}

// AuthUser is the profile returned alongside a login.
type AuthUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login exchanges email and password for tokens. A 401 here means bad
// credentials, not an expired session, so no AuthExpired is raised.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return TokenResponse{}, &domain.ValidationError{Field: "email", Message: "is required"}
	}
	if password == "" {
		return TokenResponse{}, &domain.ValidationError{Field: "password", Message: "is required"}
	}

	var out TokenResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "auth/login",
		endpoint: endpointLogin,
		body:     map[string]string{"email": email, "password": password},
		out:      &out,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("login response carried no access token")
	}
	return out, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	if refreshToken == "" {
		return TokenResponse{}, &domain.ValidationError{Field: "refresh_token", Message: "is required"}
	}

	var out TokenResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "auth/refresh",
		endpoint: endpointRefresh,
		body:     map[string]string{"refresh_token": refreshToken},
		out:      &out,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("refresh response carried no access token")
	}
	return out, nil
}
