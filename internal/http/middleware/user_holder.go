package middleware

import (
	"context"
	"net/http"

	"github.com/straye-as/finance-dashboard/internal/auth"
)

type userHolder struct {
	user *auth.UserContext
}

type holderKey struct{}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// CaptureUser hands the authenticated user back to the request logger.
// Mount it right after authentication.
func CaptureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(holderKey{}).(*userHolder); ok {
			if user, ok := auth.FromContext(r.Context()); ok {
				h.user = user
			}
		}
		next.ServeHTTP(w, r)
	})
}
