package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/straye-as/finance-dashboard/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator validates a session token
type TokenValidator interface {
	Validate(ctx context.Context, tokenString string) (*UserContext, error)
}

// Middleware handles authentication for HTTP requests
type Middleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(validator TokenValidator, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    logger,
	}
}

// Authenticate requires a valid session bearer token
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeAuthError(w, http.StatusUnauthorized, domain.ErrorTypeUnauthorized, "Unauthorized", "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeAuthError(w, http.StatusUnauthorized, domain.ErrorTypeUnauthorized, "Unauthorized", "invalid authorization header format")
			return
		}

		userCtx, err := m.validator.Validate(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.Warn("session token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			switch {
			case errors.Is(err, ErrExpiredToken):
				writeAuthError(w, http.StatusUnauthorized, domain.ErrorTypeUnauthorized, "Unauthorized", "session has expired")
			case errors.Is(err, ErrInvalidToken):
				writeAuthError(w, http.StatusUnauthorized, domain.ErrorTypeUnauthorized, "Unauthorized", "invalid session token")
			default:
				// the session store could not be read
				writeAuthError(w, http.StatusServiceUnavailable, domain.ErrorTypeInternal, "Service Unavailable", "session could not be verified, please try again")
			}
			return
		}

		m.logger.Debug("request authenticated",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user_id", userCtx.UserID.String()),
			zap.Strings("permissions", userCtx.Permissions.Strings()),
			zap.Duration("auth_duration", time.Since(start)),
		)

		ctx := WithUserContext(r.Context(), userCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
