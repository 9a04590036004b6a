package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/straye-as/finance-dashboard/internal/domain"
)

type loginResponse struct {
	Token       string             `json:"token"`
	AccessToken string             `json:"access_token"`
	User        domain.SessionUser `json:"user"`
}

// Login exchanges credentials for an API token and the session user object,
// which carries the caller's permissions
func (c *Client) Login(ctx context.Context, email, password string) (*domain.UpstreamLogin, error) {
	body := map[string]string{"email": email, "password": password}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "auth/login", nil, body, &resp); err != nil {
		return nil, err
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return nil, &TransportError{Op: "POST auth/login", Err: fmt.Errorf("response carries no token")}
	}

	return &domain.UpstreamLogin{Token: token, User: resp.User}, nil
}

// Logout revokes the API token of the caller
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "auth/logout", nil, nil, nil)
}

// CurrentUser fetches the session user object of the caller, including permissions.
// The API answers with either {"user": {...}} or the bare user.
func (c *Client) CurrentUser(ctx context.Context) (*domain.SessionUser, error) {
	raw, err := c.send(ctx, http.MethodGet, "auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		User *domain.SessionUser `json:"user"`
	}
	if err := decodeData(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}

	var user domain.SessionUser
	if err := decodeData(raw, &user); err != nil || user.ID.IsZero() {
		if err == nil {
			err = fmt.Errorf("response carries no user")
		}
		return nil, &TransportError{Op: "GET auth/me", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &user, nil
}
