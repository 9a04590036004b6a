package auth

import (
	"context"

	"github.com/straye-as/finance-dashboard/internal/domain"
)

// UserContext holds authenticated user information
type UserContext struct {
	UserID      domain.ID
	DisplayName string
	Email       string
	Permissions domain.PermissionSet
	// AccessToken is the remote API token the session was opened with
	AccessToken string
	SessionID   string
}

type contextKey string

const userContextKey contextKey = "userContext"
const requestIDKey contextKey = "requestID"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok && user != nil
}

// MustFromContext extracts user context or panics
func MustFromContext(ctx context.Context) *UserContext {
	user, ok := FromContext(ctx)
	if !ok {
		panic("user context not found in context")
	}
	return user
}

// AccessTokenFromContext returns the remote API token of the caller, or "".
// It is the token source of the shared API client.
func AccessTokenFromContext(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok {
		return user.AccessToken
	}
	return ""
}

// HasPermission checks the permission set fetched at session load
func (u *UserContext) HasPermission(permission domain.PermissionType) bool {
	return u.Permissions.Has(permission)
}

// WithRequestID stores the request id for downstream logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
