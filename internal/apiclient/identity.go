package apiclient

import (
	"context"
	"net/http"
)

// RequestPasswordReset asks the API to send a reset code to email
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "auth/forgot-password", nil, body, nil)
}

// VerifyPasswordResetCode checks a reset code without consuming it
func (c *Client) VerifyPasswordResetCode(ctx context.Context, email, code string) error {
	body := map[string]string{"email": email, "otp": code}
	return c.do(ctx, http.MethodPost, "auth/verify-otp", nil, body, nil)
}

// ResetPassword sets a new password using a previously verified code
func (c *Client) ResetPassword(ctx context.Context, email, code, password, confirmation string) error {
	body := map[string]string{
		"email":                 email,
		"otp":                   code,
		"password":              password,
		"password_confirmation": confirmation,
	}
	return c.do(ctx, http.MethodPost, "auth/reset-password", nil, body, nil)
}

// RequestEmailChange asks the API to send a confirmation code to newEmail
func (c *Client) RequestEmailChange(ctx context.Context, newEmail, currentPassword string) error {
	body := map[string]string{"new_email": newEmail, "current_password": currentPassword}
	return c.do(ctx, http.MethodPost, "profile/email/request", nil, body, nil)
}

// ConfirmEmailChange commits the email change with the code sent to newEmail
func (c *Client) ConfirmEmailChange(ctx context.Context, newEmail, code string) error {
	body := map[string]string{"new_email": newEmail, "otp": code}
	return c.do(ctx, http.MethodPost, "profile/email/confirm", nil, body, nil)
}
